package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/credential"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/ledger"
	"gopkg.in/yaml.v3"
)

// Ledger backends.
const (
	LedgerRedis  = "redis"
	LedgerSQLite = "sqlite"
)

// Config is the service configuration. Values come from defaults, then the
// YAML file named by AUTHKIT_CONFIG, then AUTHKIT_* environment variables.
type Config struct {
	Issuer        string `yaml:"issuer"`
	Algorithm     string `yaml:"algorithm"`       // HS256/384/512, EdDSA, ES256, RS256 (default: HS256)
	SecretKey     string `yaml:"secret_key"`      // HMAC secret or PEM private key
	SecretKeyFile string `yaml:"secret_key_file"` // Read into SecretKey when set
	KeyID         string `yaml:"key_id"`

	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	ClockSkew  time.Duration `yaml:"clock_skew"`

	MinPasswordLength    int  `yaml:"min_password_length"`
	RequireNonAlphabetic bool `yaml:"require_non_alphabetic"`

	LedgerBackend     string        `yaml:"ledger_backend"` // redis or sqlite (default: redis)
	RedisURL          string        `yaml:"redis_url"`
	LedgerPrefix      string        `yaml:"ledger_prefix"`
	LedgerTimeout     time.Duration `yaml:"ledger_timeout"`
	RepositoryTimeout time.Duration `yaml:"repository_timeout"`

	DatabaseFile string `yaml:"database_file"`
	PepperFile   string `yaml:"pepper_file"` // Empty disables the pepper

	MFAIssuer      string        `yaml:"mfa_issuer"`
	MFATicketTTL   time.Duration `yaml:"mfa_ticket_ttl"`
	MaxMFAAttempts int           `yaml:"max_mfa_attempts"`

	// BootstrapEmail and BootstrapPassword seed an admin on an empty database.
	BootstrapEmail    string `yaml:"bootstrap_email"`
	BootstrapPassword string `yaml:"bootstrap_password"`

	Env                  string        `yaml:"env"`
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
	Port                 int           `yaml:"port"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
	MetricsEnabled       bool          `yaml:"metrics_enabled"`

	// LogOutput overrides stdout for the process logger.
	LogOutput io.Writer `yaml:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:               "authkit",
		Algorithm:            jwtx.AlgHS256,
		AccessTTL:            jwtx.DefaultAccessTokenTTL,
		RefreshTTL:           jwtx.DefaultRefreshTokenTTL,
		MinPasswordLength:    credential.DefaultMinLength,
		RequireNonAlphabetic: true,
		LedgerBackend:        LedgerRedis,
		RedisURL:             "redis://localhost:6379/0",
		LedgerPrefix:         ledger.DefaultPrefix,
		LedgerTimeout:        ledger.DefaultTimeout,
		RepositoryTimeout:    authkit.DefaultRepositoryTimeout,
		DatabaseFile:         "authkit.db",
		PepperFile:           "pepper",
		MFAIssuer:            "authkit",
		MFATicketTTL:         authkit.DefaultMFATicketTTL,
		MaxMFAAttempts:       authkit.DefaultMaxMFAAttempts,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
		MetricsEnabled:       true,
	}
}

// LoadConfig builds the Config and validates it.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("AUTHKIT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if cfg.SecretKeyFile != "" {
		b, err := os.ReadFile(cfg.SecretKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading secret key file: %w", err)
		}
		cfg.SecretKey = strings.TrimSpace(string(b))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadFile overlays the YAML file at path. ${VAR} references are expanded
// from the environment first, so secrets can stay out of the file.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := envRef.ReplaceAllStringFunc(string(data), func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Issuer = getEnvOrDefault("AUTHKIT_ISSUER", c.Issuer)
	c.Algorithm = getEnvOrDefault("AUTHKIT_ALGORITHM", c.Algorithm)
	c.SecretKey = getEnvOrDefault("AUTHKIT_SECRET_KEY", c.SecretKey)
	c.SecretKeyFile = getEnvOrDefault("AUTHKIT_SECRET_KEY_FILE", c.SecretKeyFile)
	c.KeyID = getEnvOrDefault("AUTHKIT_KEY_ID", c.KeyID)

	c.AccessTTL = getEnvDurationOrDefault("AUTHKIT_ACCESS_TTL", c.AccessTTL)
	c.RefreshTTL = getEnvDurationOrDefault("AUTHKIT_REFRESH_TTL", c.RefreshTTL)
	c.ClockSkew = getEnvDurationOrDefault("AUTHKIT_CLOCK_SKEW", c.ClockSkew)

	c.MinPasswordLength = getEnvIntOrDefault("AUTHKIT_MIN_PASSWORD_LENGTH", c.MinPasswordLength)
	c.RequireNonAlphabetic = getEnvBoolOrDefault("AUTHKIT_REQUIRE_NON_ALPHABETIC", c.RequireNonAlphabetic)

	c.LedgerBackend = getEnvOrDefault("AUTHKIT_LEDGER_BACKEND", c.LedgerBackend)
	c.RedisURL = getEnvOrDefault("AUTHKIT_REDIS_URL", c.RedisURL)
	c.LedgerPrefix = getEnvOrDefault("AUTHKIT_LEDGER_PREFIX", c.LedgerPrefix)
	c.LedgerTimeout = getEnvDurationOrDefault("AUTHKIT_LEDGER_TIMEOUT", c.LedgerTimeout)
	c.RepositoryTimeout = getEnvDurationOrDefault("AUTHKIT_REPOSITORY_TIMEOUT", c.RepositoryTimeout)

	c.DatabaseFile = getEnvOrDefault("AUTHKIT_DATABASE_FILE", c.DatabaseFile)
	c.PepperFile = getEnvOrDefault("AUTHKIT_PEPPER_FILE", c.PepperFile)

	c.MFAIssuer = getEnvOrDefault("AUTHKIT_MFA_ISSUER", c.MFAIssuer)
	c.MFATicketTTL = getEnvDurationOrDefault("AUTHKIT_MFA_TICKET_TTL", c.MFATicketTTL)
	c.MaxMFAAttempts = getEnvIntOrDefault("AUTHKIT_MAX_MFA_ATTEMPTS", c.MaxMFAAttempts)

	c.BootstrapEmail = getEnvOrDefault("AUTHKIT_BOOTSTRAP_EMAIL", c.BootstrapEmail)
	c.BootstrapPassword = getEnvOrDefault("AUTHKIT_BOOTSTRAP_PASSWORD", c.BootstrapPassword)

	c.Env = getEnvOrDefault("AUTHKIT_ENV", c.Env)
	c.LogLevel = getEnvOrDefault("AUTHKIT_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("AUTHKIT_LOG_FORMAT", c.LogFormat)
	c.Port = getEnvIntOrDefault("AUTHKIT_PORT", c.Port)
	c.ShutdownGracePeriod = getEnvDurationOrDefault("AUTHKIT_SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod)
	c.HousekeepingInterval = getEnvDurationOrDefault("AUTHKIT_HOUSEKEEPING_INTERVAL", c.HousekeepingInterval)
	c.MetricsEnabled = getEnvBoolOrDefault("AUTHKIT_METRICS_ENABLED", c.MetricsEnabled)
}

// Validate checks the service-level settings and the toolkit settings
// derived from them.
func (c Config) Validate() error {
	var errs []error

	switch c.LedgerBackend {
	case LedgerRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis_url is required for the redis ledger"))
		}
	case LedgerSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.LedgerBackend))
	}
	if c.DatabaseFile == "" {
		errs = append(errs, errors.New("database_file is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if (c.BootstrapEmail == "") != (c.BootstrapPassword == "") {
		errs = append(errs, errors.New("bootstrap_email and bootstrap_password must be set together"))
	}
	if err := c.AuthConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AuthConfig is the toolkit configuration carried by c.
func (c Config) AuthConfig() authkit.Config {
	return authkit.Config{
		SecretKey:            c.SecretKey,
		Algorithm:            c.Algorithm,
		KeyID:                c.KeyID,
		Issuer:               c.Issuer,
		AccessTTL:            c.AccessTTL,
		RefreshTTL:           c.RefreshTTL,
		ClockSkew:            c.ClockSkew,
		MinPasswordLength:    c.MinPasswordLength,
		RequireNonAlphabetic: c.RequireNonAlphabetic,
		RedisURL:             c.RedisURL,
		LedgerPrefix:         c.LedgerPrefix,
		LedgerTimeout:        c.LedgerTimeout,
		RepositoryTimeout:    c.RepositoryTimeout,
		MFAIssuer:            c.MFAIssuer,
		MFATicketTTL:         c.MFATicketTTL,
		MaxMFAAttempts:       c.MaxMFAAttempts,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	// Bare integers are seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
