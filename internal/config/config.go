package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth (single user)
	AdminUsername string
	AdminPassword string // plaintext in env, bcrypt-hashed at startup
	JWTSecret     string

	// SSH credential encryption
	SSHEncryptionKey string // 32-byte hex for AES-256-GCM

	// SSH transport
	SSHConnectTimeout      time.Duration
	SSHExecTimeout         time.Duration
	SSHKeyExchanges        []string
	SSHCiphers             []string
	SSHMACs                []string
	SSHHostKeyAlgorithms   []string
	SSHKnownHostsFile      string
	SSHInsecureSkipHostKey bool

	// Yandex.Direct
	YandexAPIURL string
}

func Load() *Config {
	connectTimeout, _ := strconv.Atoi(getEnv("SSH_CONNECT_TIMEOUT", "10"))
	execTimeout, _ := strconv.Atoi(getEnv("SSH_EXEC_TIMEOUT", "30"))

	return &Config{
		Port:       getEnv("PORT", "8090"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "adpanel_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		SSHEncryptionKey: getEnv("SSH_ENCRYPTION_KEY", ""),

		SSHConnectTimeout:      time.Duration(connectTimeout) * time.Second,
		SSHExecTimeout:         time.Duration(execTimeout) * time.Second,
		SSHKeyExchanges:        getEnvList("SSH_KEX_ALGORITHMS"),
		SSHCiphers:             getEnvList("SSH_CIPHERS"),
		SSHMACs:                getEnvList("SSH_MACS"),
		SSHHostKeyAlgorithms:   getEnvList("SSH_HOST_KEY_ALGORITHMS"),
		SSHKnownHostsFile:      getEnv("SSH_KNOWN_HOSTS_FILE", defaultKnownHosts()),
		SSHInsecureSkipHostKey: getEnv("SSH_INSECURE_SKIP_HOST_KEY", "false") == "true",

		YandexAPIURL: getEnv("YANDEX_API_URL", "https://api.direct.yandex.com"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList parses a comma-separated ordered preference list. An unset
// variable returns nil, which leaves the library defaults in place.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.ssh/known_hosts"
}
