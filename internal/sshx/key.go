package sshx

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrKeyParse marks key material that cannot possibly authenticate.
// Callers should fail fast instead of attempting a handshake with it.
var ErrKeyParse = errors.New("private key unusable")

// NormalizeKey cleans up pasted key material: Windows line endings,
// surrounding whitespace, and a missing trailing newline (which the
// OpenSSH armor parser rejects).
func NormalizeKey(raw string) (string, error) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty key material", ErrKeyParse)
	}
	if strings.Contains(s, "-----BEGIN") && !strings.Contains(s, "-----END") {
		return "", fmt.Errorf("%w: truncated armor, END marker missing", ErrKeyParse)
	}
	return s + "\n", nil
}

// ParseKey normalizes and parses private key material into a signer.
func ParseKey(raw string) (ssh.Signer, error) {
	normalized, err := NormalizeKey(raw)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey([]byte(normalized))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyParse, err)
	}
	return signer, nil
}
