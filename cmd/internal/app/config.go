package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"united/cmd/internal/api"
	"united/cmd/internal/auth/challenge"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/ratelimit"
	"united/cmd/internal/settings"
	"united/cmd/internal/storage"
	"united/cmd/security/credential"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "UNITED_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains all runtime configuration.
//
// Sources are layered: DefaultConfig, then the YAML file named by --config or
// UNITED_CONFIG, then UNITED_* environment variables, then explicit flags.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Security  SecurityConfig  `yaml:"security" envPrefix:"SECURITY_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Genesis   GenesisConfig   `yaml:"genesis" envPrefix:"GENESIS_"`
	API       api.Config      `yaml:"api" envPrefix:"API_"`
	Session   session.Config  `yaml:"session" envPrefix:"SESSION_"`
	Challenge ChallengeConfig `yaml:"challenge" envPrefix:"CHALLENGE_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig selects the log level and output format ("json" or "pretty").
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is memory, postgres or sqlite. Empty picks postgres when
	// DatabaseURL is set and memory otherwise.
	Driver      string `yaml:"driver" env:"DRIVER"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	Schema      string `yaml:"schema" env:"SCHEMA"`
	MaxConns    int32  `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns    int32  `yaml:"min_conns" env:"MIN_CONNS"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`

	// ReadinessRequireDB makes /readyz fail when running on the memory driver.
	ReadinessRequireDB bool `yaml:"readiness_require_db" env:"READINESS_REQUIRE_DB"`
}

// SecurityConfig holds secret-hashing policy.
type SecurityConfig struct {
	// TokenHMACKey switches refresh token and invite code hashing to HMAC-SHA256.
	TokenHMACKey string `yaml:"token_hmac_key" env:"TOKEN_HMAC_KEY"`
	// RequireTokenHMAC refuses to start without a TokenHMACKey of at least 32 bytes.
	RequireTokenHMAC bool `yaml:"require_token_hmac" env:"REQUIRE_TOKEN_HMAC"`
}

// ServerConfig seeds the server settings before the owner edits them.
type ServerConfig struct {
	Name             string `yaml:"name" env:"NAME"`
	Description      string `yaml:"description" env:"DESCRIPTION"`
	RegistrationMode string `yaml:"registration_mode" env:"REGISTRATION_MODE"`
}

// GenesisConfig controls the owner bootstrap.
type GenesisConfig struct {
	// SetupCredential is generated on first boot when empty.
	SetupCredential string            `yaml:"setup_credential" env:"SETUP_CREDENTIAL"`
	Argon2          credential.Params `yaml:"argon2" envPrefix:"ARGON2_"`
}

// ChallengeConfig controls authentication challenges.
type ChallengeConfig struct {
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RateLimitConfig lists per-class attempt limits.
type RateLimitConfig struct {
	Default   ratelimit.Limit `yaml:"default" envPrefix:"DEFAULT_"`
	Challenge ratelimit.Limit `yaml:"challenge" envPrefix:"CHALLENGE_"`
	Register  ratelimit.Limit `yaml:"register" envPrefix:"REGISTER_"`
	Verify    ratelimit.Limit `yaml:"verify" envPrefix:"VERIFY_"`
	Blob      ratelimit.Limit `yaml:"blob" envPrefix:"BLOB_"`

	// JanitorInterval is how often idle buckets and expired rows are swept.
	JanitorInterval time.Duration `yaml:"janitor_interval" env:"JANITOR_INTERVAL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	lim := ratelimit.DefaultLimit()
	return Config{
		HTTP: HTTPConfig{
			Addr:              "0.0.0.0:8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{
			Schema:     storage.DefaultSchema,
			MaxConns:   10,
			SQLitePath: "united.db",
		},
		Server:    ServerConfig{RegistrationMode: string(settings.ModeOpen)},
		Genesis:   GenesisConfig{Argon2: credential.DefaultParams()},
		API:       api.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Challenge: ChallengeConfig{TTL: challenge.DefaultTTL},
		RateLimit: RateLimitConfig{
			Default:         lim,
			Challenge:       lim,
			Register:        lim,
			Verify:          lim,
			Blob:            ratelimit.Limit{Events: 30, Window: time.Second},
			JanitorInterval: time.Minute,
		},
	}
}

// StorageDriver resolves the effective driver name.
func (c Config) StorageDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d == "" {
		if strings.TrimSpace(c.Storage.DatabaseURL) != "" {
			return DriverPostgres
		}
		return DriverMemory
	}
	return d
}

// Validate checks settings that are not validated by the components themselves.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("config: log.format must be json or pretty, got %q", c.Log.Format)
	}
	switch c.StorageDriver() {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			return errors.New("config: storage.database_url is required for the postgres driver")
		}
		if !storage.ValidIdent(c.Storage.Schema) {
			return fmt.Errorf("config: storage.schema %q is not a valid identifier", c.Storage.Schema)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return errors.New("config: storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := settings.ParseMode(c.Server.RegistrationMode); err != nil {
		return fmt.Errorf("config: server.registration_mode: %w", err)
	}
	return c.Session.Validate()
}

// CLI holds the flags that do not map onto Config.
type CLI struct {
	ConfigPath     string
	GenerateConfig bool
	ShowVersion    bool
}

// LoadConfig resolves the layered configuration from args and the process environment.
func LoadConfig(args []string) (Config, CLI, error) {
	var cli CLI
	var (
		addr, logLevel, logFormat        string
		driver, databaseURL, sqlitePath  string
		setupCredential, registrationMod string
	)

	fs := pflag.NewFlagSet("united", pflag.ContinueOnError)
	fs.StringVar(&cli.ConfigPath, "config", "", "path to a YAML config file (env "+EnvPrefix+"CONFIG)")
	fs.BoolVar(&cli.GenerateConfig, "generate-config", false, "print a YAML config template with the defaults and exit")
	fs.BoolVar(&cli.ShowVersion, "version", false, "print the version and exit")
	fs.StringVar(&addr, "addr", "", "HTTP listen address")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&logFormat, "log-format", "", "log format: json or pretty")
	fs.StringVar(&driver, "storage", "", "storage driver: memory, postgres or sqlite")
	fs.StringVar(&databaseURL, "database-url", "", "postgres connection URL")
	fs.StringVar(&sqlitePath, "sqlite-path", "", "sqlite database file")
	fs.StringVar(&setupCredential, "setup-credential", "", "owner setup credential (generated on first boot when empty)")
	fs.StringVar(&registrationMod, "registration-mode", "", "default registration mode: open, closed or invite")
	if err := fs.Parse(args); err != nil {
		return Config{}, cli, err
	}

	cfg := DefaultConfig()
	if cli.GenerateConfig || cli.ShowVersion {
		return cfg, cli, nil
	}

	path := cli.ConfigPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG"))
	}
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, cli, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, cli, fmt.Errorf("parse env: %w", err)
	}

	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"addr", &cfg.HTTP.Addr, addr},
		{"log-level", &cfg.Log.Level, logLevel},
		{"log-format", &cfg.Log.Format, logFormat},
		{"storage", &cfg.Storage.Driver, driver},
		{"database-url", &cfg.Storage.DatabaseURL, databaseURL},
		{"sqlite-path", &cfg.Storage.SQLitePath, sqlitePath},
		{"setup-credential", &cfg.Genesis.SetupCredential, setupCredential},
		{"registration-mode", &cfg.Server.RegistrationMode, registrationMod},
	}
	for _, o := range overrides {
		if fs.Changed(o.flag) {
			*o.dst = o.val
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, cli, err
	}
	return cfg, cli, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// WriteConfigTemplate writes cfg as YAML. Secrets are left blank.
func WriteConfigTemplate(w io.Writer, cfg Config) error {
	cfg.Security.TokenHMACKey = ""
	cfg.Session.SigningKeyHex = ""
	cfg.Genesis.SetupCredential = ""

	if _, err := io.WriteString(w, "# united server configuration\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
