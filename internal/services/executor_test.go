package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybaranov/adpanel/internal/models"
	"github.com/ybaranov/adpanel/internal/sshx"
	"github.com/ybaranov/adpanel/internal/store"
)

// ─── Fakes ──────────────────────────────────────────────────────────────

type fakeCredStore struct {
	servers map[uuid.UUID]*models.Server
	err     error
}

func (f *fakeCredStore) Lookup(_ context.Context, id uuid.UUID) (*models.Server, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.servers[id]; ok {
		return s, nil
	}
	return nil, store.ErrServerNotFound
}

type fakeLedger struct {
	mu        sync.Mutex
	created   []*models.Command
	finished  map[uuid.UUID][]store.CommandResult
	createErr error
	finishErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{finished: make(map[uuid.UUID][]store.CommandResult)}
}

func (f *fakeLedger) Create(_ context.Context, serverID uuid.UUID, command string) (*models.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	cmd := &models.Command{
		ID:       uuid.New(),
		ServerID: serverID,
		Command:  command,
		Status:   models.CommandStatusExecuting,
	}
	f.created = append(f.created, cmd)
	return cmd, nil
}

func (f *fakeLedger) Finish(_ context.Context, id uuid.UUID, res store.CommandResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finished[id] = append(f.finished[id], res)
	return nil
}

func (f *fakeLedger) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeLedger) finishesFor(id uuid.UUID) []store.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[id]
}

type fakeDialer struct {
	mu      sync.Mutex
	opens   int
	closes  int
	dialErr error
	// results keyed by command text, so concurrent submissions can be
	// told apart
	results  map[string]*sshx.Result
	runErr   error
	blockCtx bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(map[string]*sshx.Result)}
}

func (d *fakeDialer) Dial(_ context.Context, _ sshx.Target) (sshx.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.opens++
	return &commandAwareSession{dialer: d}, nil
}

type commandAwareSession struct {
	dialer *fakeDialer
	closed bool
}

func (s *commandAwareSession) Run(ctx context.Context, command string) (*sshx.Result, error) {
	if s.dialer.blockCtx {
		<-ctx.Done()
		return nil, fmt.Errorf("command aborted: %w", ctx.Err())
	}
	if s.dialer.runErr != nil {
		return nil, s.dialer.runErr
	}
	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	if res, ok := s.dialer.results[command]; ok {
		return res, nil
	}
	return &sshx.Result{}, nil
}

func (s *commandAwareSession) Close() error {
	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.dialer.closes++
	}
	return nil
}

type identityDecrypter struct{ err error }

func (d identityDecrypter) Decrypt(s string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return s, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

func testServer(id uuid.UUID) *models.Server {
	return &models.Server{
		ID:                  id,
		Name:                "web-1",
		Host:                "10.1.2.3",
		Port:                22,
		SSHUsername:         "root",
		EncryptedPrivateKey: "sealed-key-material",
	}
}

func newTestExecutor(creds *fakeCredStore, ledger *fakeLedger, dialer *fakeDialer) *Executor {
	return NewExecutor(creds, ledger, dialer, identityDecrypter{}, time.Second)
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var execError *ExecError
	require.ErrorAs(t, err, &execError)
	return execError.Kind
}

// ─── Tests ──────────────────────────────────────────────────────────────

func TestExecuteSuccess(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.results["uptime"] = &sshx.Result{Stdout: "14:02 up 3 days, load averages: 0.21 0.18 0.12\n"}

	outcome, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")
	require.NoError(t, err)

	assert.Equal(t, models.CommandStatusCompleted, outcome.Status)
	assert.Contains(t, outcome.Output, "up 3 days")
	assert.Equal(t, 0, outcome.ExitCode)

	// Exactly one row, exactly one terminal transition.
	require.Equal(t, 1, ledger.createdCount())
	finishes := ledger.finishesFor(ledger.created[0].ID)
	require.Len(t, finishes, 1)
	assert.Equal(t, models.CommandStatusCompleted, finishes[0].Status)
	assert.False(t, finishes[0].ExecutedAt.IsZero())

	// Transport released exactly once.
	assert.Equal(t, 1, dialer.opens)
	assert.Equal(t, 1, dialer.closes)
}

func TestValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		serverID string
		command  string
	}{
		{"empty server id", "", "uptime"},
		{"blank server id", "   ", "uptime"},
		{"empty command", uuid.NewString(), ""},
		{"blank command", uuid.NewString(), "  \t"},
		{"malformed server id", "not-a-uuid", "uptime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			dialer := newFakeDialer()
			exec := newTestExecutor(&fakeCredStore{}, ledger, dialer)

			_, err := exec.Execute(context.Background(), tt.serverID, tt.command)
			assert.Equal(t, KindValidation, kindOf(t, err))
			assert.Zero(t, ledger.createdCount(), "no ledger row on validation failure")
			assert.Zero(t, dialer.opens, "no network attempt on validation failure")
		})
	}
}

func TestUnknownServerCreatesNoLedgerRow(t *testing.T) {
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	exec := newTestExecutor(&fakeCredStore{}, ledger, dialer)

	_, err := exec.Execute(context.Background(), uuid.NewString(), "uptime")

	assert.Equal(t, KindNotFound, kindOf(t, err))
	assert.ErrorIs(t, err, store.ErrServerNotFound)
	assert.Zero(t, ledger.createdCount())
	assert.Zero(t, dialer.opens)
}

func TestLedgerCreateFailureBlocksNetwork(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	ledger.createErr = errors.New("storage unavailable")
	dialer := newFakeDialer()

	_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")

	assert.Equal(t, KindLedger, kindOf(t, err))
	assert.Zero(t, dialer.opens, "ledger row must exist before any SSH attempt")
}

func TestNonzeroExitRecordsStderr(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.results["false"] = &sshx.Result{Stderr: "boom\n", ExitCode: 1}

	outcome, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "false")
	require.NoError(t, err)

	assert.Equal(t, models.CommandStatusError, outcome.Status)
	assert.Contains(t, outcome.Output, "boom")
	assert.Equal(t, 1, outcome.ExitCode)

	finishes := ledger.finishesFor(ledger.created[0].ID)
	require.Len(t, finishes, 1)
	assert.Equal(t, models.CommandStatusError, finishes[0].Status)
	assert.Contains(t, finishes[0].Output, "boom")
	assert.Equal(t, "boom\n", finishes[0].Stderr)
	assert.Equal(t, 1, finishes[0].ExitCode)
}

func TestStderrWithZeroExitStaysCompleted(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.results["apt-get update"] = &sshx.Result{
		Stdout: "Reading package lists...\n",
		Stderr: "W: deprecated keyring\n",
	}

	outcome, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "apt-get update")
	require.NoError(t, err)

	// Exit code drives status; stderr only shapes the displayed output.
	assert.Equal(t, models.CommandStatusCompleted, outcome.Status)
	assert.Equal(t, "W: deprecated keyring\n", outcome.Output)
	assert.Equal(t, "Reading package lists...\n", outcome.Stdout)
}

func TestMalformedKeyFailsAfterLedgerCreate(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.dialErr = fmt.Errorf("%w: no armor", sshx.ErrKeyParse)

	_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")

	assert.Equal(t, KindKeyParse, kindOf(t, err))
	require.Equal(t, 1, ledger.createdCount())
	finishes := ledger.finishesFor(ledger.created[0].ID)
	require.Len(t, finishes, 1, "exactly one ledger update on key failure")
	assert.Equal(t, models.CommandStatusError, finishes[0].Status)
	assert.Contains(t, finishes[0].Output, "no armor")
}

func TestMissingPrivateKeyFailsBeforeDial(t *testing.T) {
	serverID := uuid.New()
	server := testServer(serverID)
	server.EncryptedPrivateKey = ""
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: server}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()

	_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")

	assert.Equal(t, KindKeyParse, kindOf(t, err))
	assert.Zero(t, dialer.opens)
	require.Len(t, ledger.finishesFor(ledger.created[0].ID), 1)
}

func TestDialFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"auth rejected", fmt.Errorf("%w: handshake: no supported methods", sshx.ErrAuth), KindAuth},
		{"host unreachable", fmt.Errorf("%w: connect 10.1.2.3:22: timeout", sshx.ErrHandshake), KindHandshake},
		{"unknown", errors.New("weird transport failure"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serverID := uuid.New()
			creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
			ledger := newFakeLedger()
			dialer := newFakeDialer()
			dialer.dialErr = tt.err

			_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")

			assert.Equal(t, tt.kind, kindOf(t, err))
			require.Len(t, ledger.finishesFor(ledger.created[0].ID), 1)
		})
	}
}

func TestHungCommandTimesOut(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.blockCtx = true

	exec := NewExecutor(creds, ledger, dialer, identityDecrypter{}, 30*time.Millisecond)
	_, err := exec.Execute(context.Background(), serverID.String(), "sleep 3600")

	assert.Equal(t, KindTimeout, kindOf(t, err))

	finishes := ledger.finishesFor(ledger.created[0].ID)
	require.Len(t, finishes, 1, "timeout must still be recorded")
	assert.Equal(t, models.CommandStatusError, finishes[0].Status)

	// The hung session was still torn down.
	assert.Equal(t, 1, dialer.opens)
	assert.Equal(t, 1, dialer.closes)
}

func TestCallerCancellationPropagates(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.blockCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	exec := NewExecutor(creds, ledger, dialer, identityDecrypter{}, time.Minute)
	_, err := exec.Execute(ctx, serverID.String(), "tail -f /var/log/syslog")

	assert.Equal(t, KindTimeout, kindOf(t, err))
	assert.Equal(t, 1, dialer.closes)
	// Ledger write survives the dead caller context.
	require.Len(t, ledger.finishesFor(ledger.created[0].ID), 1)
}

func TestSessionReleasedOnEveryPath(t *testing.T) {
	serverID := uuid.New()

	t.Run("run failure", func(t *testing.T) {
		creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
		ledger := newFakeLedger()
		dialer := newFakeDialer()
		dialer.runErr = errors.New("channel collapsed")

		_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")
		assert.Equal(t, KindRemote, kindOf(t, err))
		assert.Equal(t, dialer.opens, dialer.closes)
	})

	t.Run("success", func(t *testing.T) {
		creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
		ledger := newFakeLedger()
		dialer := newFakeDialer()

		_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")
		require.NoError(t, err)
		assert.Equal(t, dialer.opens, dialer.closes)
	})
}

func TestDecryptFailureIsRecorded(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()

	exec := NewExecutor(creds, ledger, dialer, identityDecrypter{err: errors.New("bad ciphertext")}, time.Second)
	_, err := exec.Execute(context.Background(), serverID.String(), "uptime")

	assert.Equal(t, KindInternal, kindOf(t, err))
	assert.Zero(t, dialer.opens)
	require.Len(t, ledger.finishesFor(ledger.created[0].ID), 1)
}

func TestLedgerFailureAfterExecutionSurfaces(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	ledger.finishErr = errors.New("storage gone")
	dialer := newFakeDialer()

	_, err := newTestExecutor(creds, ledger, dialer).Execute(context.Background(), serverID.String(), "uptime")

	assert.Equal(t, KindLedger, kindOf(t, err))
	// The session still ran and was released; only the record is lost.
	assert.Equal(t, 1, dialer.opens)
	assert.Equal(t, 1, dialer.closes)
}

func TestConcurrentSubmissionsAreIndependent(t *testing.T) {
	serverID := uuid.New()
	creds := &fakeCredStore{servers: map[uuid.UUID]*models.Server{serverID: testServer(serverID)}}
	ledger := newFakeLedger()
	dialer := newFakeDialer()
	dialer.results["hostname"] = &sshx.Result{Stdout: "web-1\n"}
	dialer.results["whoami"] = &sshx.Result{Stdout: "root\n"}

	exec := newTestExecutor(creds, ledger, dialer)

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make(map[string]*Outcome, 2)
	errs := make(map[string]error, 2)
	for _, command := range []string{"hostname", "whoami"} {
		wg.Add(1)
		go func(command string) {
			defer wg.Done()
			outcome, err := exec.Execute(context.Background(), serverID.String(), command)
			mu.Lock()
			outcomes[command] = outcome
			errs[command] = err
			mu.Unlock()
		}(command)
	}
	wg.Wait()

	require.NoError(t, errs["hostname"])
	require.NoError(t, errs["whoami"])

	assert.Equal(t, "web-1\n", outcomes["hostname"].Output)
	assert.Equal(t, "root\n", outcomes["whoami"].Output)
	assert.NotEqual(t, outcomes["hostname"].CommandID, outcomes["whoami"].CommandID)
	assert.Equal(t, 2, ledger.createdCount())
	assert.Equal(t, 2, dialer.opens)
	assert.Equal(t, 2, dialer.closes)
}
