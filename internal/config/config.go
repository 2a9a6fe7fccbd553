package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SecurityConfig holds 2FA, session, and brute-force protection settings
type SecurityConfig struct {
	// Issuer is the name rendered into otpauth:// provisioning URIs
	Issuer string
	// TOTPPeriod is the TOTP time step
	TOTPPeriod time.Duration
	// TOTPWindow is the number of time steps tolerated on each side
	// of the current step during verification
	TOTPWindow int
	// BackupCodeCount is the number of backup codes issued at setup
	BackupCodeCount int
	// SessionTTL is the lifetime of a newly created session
	SessionTTL time.Duration
	// BruteForceWindow is the rolling window over which failed login
	// attempts are counted
	BruteForceWindow time.Duration
	// BruteForceMaxAttempts is the failed-attempt threshold within the window
	BruteForceMaxAttempts int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "account_security"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Security: SecurityConfig{
			Issuer:                getEnv("TOTP_ISSUER", "BizBoard"),
			TOTPPeriod:            getDurationEnv("TOTP_PERIOD", 30*time.Second),
			TOTPWindow:            getIntEnv("TOTP_WINDOW", 1),
			BackupCodeCount:       getIntEnv("BACKUP_CODE_COUNT", 8),
			SessionTTL:            getDurationEnv("SESSION_TTL", 24*time.Hour),
			BruteForceWindow:      getDurationEnv("BRUTE_FORCE_WINDOW", 15*time.Minute),
			BruteForceMaxAttempts: getIntEnv("BRUTE_FORCE_MAX_ATTEMPTS", 5),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("30s", "15m") or a bare number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
