// Package config loads server settings from an optional YAML file,
// environment variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Ledger backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds every setting of the incident server.
type Config struct {
	Server ServerConfig
	Ledger LedgerConfig
	Auth   AuthConfig
	Upload UploadConfig
	Notify NotifyConfig
	Email  EmailConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port           int
	CORSOrigins    []string
	RateLimitRPS   int
	MaxUploadBytes int64
	FrontendDir    string
}

type LedgerConfig struct {
	Backend     string
	Path        string
	DatabaseURL string
	SLAWindow   time.Duration

	// CheckInterval is the period of the persisted-chain integrity check;
	// zero disables it.
	CheckInterval      time.Duration
	CheckFailThreshold int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type UploadConfig struct {
	Dir string
}

type NotifyConfig struct {
	ValidatorEmail string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
}

type LogConfig struct {
	Level string
}

// Load merges defaults, the config file, environment variables, and flags.
// With an empty cfgFile, "incident.yaml" is looked up in ./configs and ./
// and its absence is not an error. Environment variables use the key with
// dots replaced by underscores, e.g. LEDGER_PATH or AUTH_JWT_SECRET.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("server.frontend_dir", "")
	v.SetDefault("ledger.backend", BackendFile)
	v.SetDefault("ledger.path", "blockchain.json")
	v.SetDefault("ledger.database_url", "")
	v.SetDefault("ledger.sla_window", "168h")
	v.SetDefault("ledger.check_interval", "5m")
	v.SetDefault("ledger.check_fail_threshold", 3)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("notify.validator_email", "")
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from_address", "noreply@incident-ledger.local")
	v.SetDefault("log.level", "info")

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("incident")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			CORSOrigins:    getStringSlice(v, "server.cors_origins"),
			RateLimitRPS:   v.GetInt("server.rate_limit_rps"),
			MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
			FrontendDir:    v.GetString("server.frontend_dir"),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(v.GetString("ledger.backend")),
			Path:        v.GetString("ledger.path"),
			DatabaseURL: v.GetString("ledger.database_url"),
			SLAWindow:   v.GetDuration("ledger.sla_window"),

			CheckInterval:      v.GetDuration("ledger.check_interval"),
			CheckFailThreshold: v.GetInt("ledger.check_fail_threshold"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Upload: UploadConfig{Dir: v.GetString("uploads.dir")},
		Notify: NotifyConfig{ValidatorEmail: v.GetString("notify.validator_email")},
		Email: EmailConfig{
			SMTPHost:     v.GetString("email.smtp_host"),
			SMTPPort:     v.GetInt("email.smtp_port"),
			SMTPUsername: v.GetString("email.smtp_username"),
			SMTPPassword: v.GetString("email.smtp_password"),
			FromAddress:  v.GetString("email.from_address"),
		},
		Log: LogConfig{Level: v.GetString("log.level")},
	}
	return cfg, cfg.Validate()
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendFile:
		if c.Ledger.Path == "" {
			return errors.New("ledger.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			return errors.New("ledger.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Ledger.CheckInterval < 0 {
		return fmt.Errorf("invalid ledger.check_interval %s", c.Ledger.CheckInterval)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":         "server.port",
	"ledger":       "ledger.path",
	"backend":      "ledger.backend",
	"database-url": "ledger.database_url",
	"uploads":      "uploads.dir",
	"log-level":    "log.level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// RegisterFlags adds the flags understood by bindFlags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("port", 5000, "HTTP listen port")
	fs.String("ledger", "blockchain.json", "path of the ledger chain file")
	fs.String("backend", BackendFile, "ledger backend: file or postgres")
	fs.String("database-url", "", "postgres connection string for the postgres backend")
	fs.String("uploads", "uploads", "directory for evidence uploads")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
}

func getStringSlice(v *viper.Viper, key string) []string {
	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
