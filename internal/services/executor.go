package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/models"
	"github.com/ybaranov/adpanel/internal/sshx"
	"github.com/ybaranov/adpanel/internal/store"
)

// CredentialStore resolves server credential records. Not-found must be
// distinguishable from other storage failures.
type CredentialStore interface {
	Lookup(ctx context.Context, id uuid.UUID) (*models.Server, error)
}

// CommandLedger persists the execution lifecycle. Create must succeed
// before any SSH attempt; Finish is called exactly once per submission.
type CommandLedger interface {
	Create(ctx context.Context, serverID uuid.UUID, command string) (*models.Command, error)
	Finish(ctx context.Context, id uuid.UUID, res store.CommandResult) error
}

type Decrypter interface {
	Decrypt(string) (string, error)
}

// Executor orchestrates one command submission: validate, resolve
// credentials, open the ledger row, run over SSH, write the terminal
// state. Every submission is attempted exactly once; failures are
// terminal and visible, never retried.
type Executor struct {
	servers     CredentialStore
	ledger      CommandLedger
	dialer      sshx.Dialer
	decrypter   Decrypter
	execTimeout time.Duration
}

func NewExecutor(servers CredentialStore, ledger CommandLedger, dialer sshx.Dialer, decrypter Decrypter, execTimeout time.Duration) *Executor {
	return &Executor{
		servers:     servers,
		ledger:      ledger,
		dialer:      dialer,
		decrypter:   decrypter,
		execTimeout: execTimeout,
	}
}

type Outcome struct {
	CommandID  uuid.UUID `json:"command_id"`
	Status     string    `json:"status"`
	Output     string    `json:"output"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int       `json:"duration_ms"`
}

func (e *Executor) Execute(ctx context.Context, rawServerID, command string) (*Outcome, error) {
	if strings.TrimSpace(rawServerID) == "" {
		return nil, execErr(KindValidation, errors.New("server id is required"))
	}
	if strings.TrimSpace(command) == "" {
		return nil, execErr(KindValidation, errors.New("command is required"))
	}
	serverID, err := uuid.Parse(rawServerID)
	if err != nil {
		return nil, execErr(KindValidation, fmt.Errorf("invalid server id: %w", err))
	}

	server, err := e.servers.Lookup(ctx, serverID)
	if errors.Is(err, store.ErrServerNotFound) {
		return nil, execErr(KindNotFound, err)
	}
	if err != nil {
		return nil, execErr(KindInternal, fmt.Errorf("credential lookup: %w", err))
	}

	entry, err := e.ledger.Create(ctx, serverID, command)
	if err != nil {
		return nil, execErr(KindLedger, fmt.Errorf("ledger create: %w", err))
	}

	start := time.Now()

	// From here on, every outcome lands in the ledger exactly once.
	res, runErr := e.run(ctx, server, command)
	if runErr != nil {
		e.finishError(ctx, entry.ID, start, runErr)
		return nil, runErr
	}

	status := models.CommandStatusCompleted
	if res.ExitCode != 0 {
		status = models.CommandStatusError
	}
	// History keeps the stderr text front and center when present;
	// the raw streams are stored alongside for auditing.
	output := res.Stdout
	if res.Stderr != "" {
		output = res.Stderr
	}

	outcome := &Outcome{
		CommandID:  entry.ID,
		Status:     status,
		Output:     output,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMs: int(time.Since(start).Milliseconds()),
	}

	if err := e.ledger.Finish(context.WithoutCancel(ctx), entry.ID, store.CommandResult{
		Status:     status,
		Output:     output,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		ExecutedAt: time.Now(),
		DurationMs: outcome.DurationMs,
	}); err != nil {
		// The remote side effects have already happened; the record of
		// them is what failed. Surface that asymmetry to the caller.
		return nil, execErr(KindLedger, fmt.Errorf("ledger update after execution: %w", err))
	}

	return outcome, nil
}

// run opens a fresh transport, executes the command and always releases
// the session. Failures come back classified.
func (e *Executor) run(ctx context.Context, server *models.Server, command string) (*sshx.Result, *ExecError) {
	if !server.HasPrivateKey() {
		return nil, execErr(KindKeyParse, errors.New("server has no private key configured"))
	}
	key, err := e.decrypter.Decrypt(server.EncryptedPrivateKey)
	if err != nil {
		return nil, execErr(KindInternal, fmt.Errorf("decrypt private key: %w", err))
	}

	runCtx := ctx
	if e.execTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.execTimeout)
		defer cancel()
	}

	session, err := e.dialer.Dial(runCtx, sshx.Target{
		Host:       server.Host,
		Port:       server.Port,
		Username:   server.SSHUsername,
		PrivateKey: key,
	})
	if err != nil {
		return nil, execErr(classifyDialError(err), err)
	}
	defer session.Close()

	res, err := session.Run(runCtx, command)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, execErr(KindTimeout, err)
		}
		return nil, execErr(KindRemote, err)
	}
	return res, nil
}

// finishError records a post-ledger failure. The ledger write uses a
// detached context so a caller disconnect cannot leave the row stuck
// in "executing".
func (e *Executor) finishError(ctx context.Context, id uuid.UUID, start time.Time, runErr *ExecError) {
	err := e.ledger.Finish(context.WithoutCancel(ctx), id, store.CommandResult{
		Status:     models.CommandStatusError,
		Output:     runErr.Error(),
		ExitCode:   -1,
		ExecutedAt: time.Now(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	if err != nil {
		slog.Error("Ledger update failed after execution error",
			"command_id", id, "exec_error", runErr.Error(), "ledger_error", err)
	}
}

func classifyDialError(err error) ErrorKind {
	switch {
	case errors.Is(err, sshx.ErrKeyParse):
		return KindKeyParse
	case errors.Is(err, sshx.ErrAuth):
		return KindAuth
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, sshx.ErrHandshake):
		return KindHandshake
	default:
		return KindInternal
	}
}
