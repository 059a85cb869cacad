package sshx

import (
	"fmt"
	"log/slog"

	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// hostKeyPolicy builds the verification callback for one dial. The
// known_hosts database is re-read per call so freshly pinned keys take
// effect without a restart. The insecure opt-out exists for lab hosts
// whose keys are not pre-provisioned and is always logged.
func (d *NetDialer) hostKeyPolicy(addr string) (ssh.HostKeyCallback, []string, error) {
	if d.cfg.InsecureSkipHostKey {
		slog.Warn("Host key verification disabled", "addr", addr)
		return ssh.InsecureIgnoreHostKey(), d.cfg.HostKeyAlgorithms, nil
	}

	db, err := knownhosts.NewDB(d.cfg.KnownHostsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load known_hosts %q: %w", d.cfg.KnownHostsFile, err)
	}

	algos := d.cfg.HostKeyAlgorithms
	if len(algos) == 0 {
		// Prefer algorithms we already have pinned keys for.
		algos = db.HostKeyAlgorithms(addr)
	}
	return db.HostKeyCallback(), algos, nil
}
