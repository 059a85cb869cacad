package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "adpanel_db", cfg.DBName)
	assert.Equal(t, 10*time.Second, cfg.SSHConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.SSHExecTimeout)
	assert.Nil(t, cfg.SSHKeyExchanges)
	assert.False(t, cfg.SSHInsecureSkipHostKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SSH_CONNECT_TIMEOUT", "3")
	t.Setenv("SSH_INSECURE_SKIP_HOST_KEY", "true")
	t.Setenv("SSH_KNOWN_HOSTS_FILE", "/etc/ssh/pinned_hosts")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.SSHConnectTimeout)
	assert.True(t, cfg.SSHInsecureSkipHostKey)
	assert.Equal(t, "/etc/ssh/pinned_hosts", cfg.SSHKnownHostsFile)
}

func TestGetEnvListParsing(t *testing.T) {
	t.Setenv("SSH_CIPHERS", "aes128-gcm@openssh.com, aes256-ctr ,,chacha20-poly1305@openssh.com")

	cfg := Load()

	assert.Equal(t, []string{
		"aes128-gcm@openssh.com",
		"aes256-ctr",
		"chacha20-poly1305@openssh.com",
	}, cfg.SSHCiphers)
}
