// Package config loads and validates the CourseVault configuration.
//
// Sources, in precedence order: explicit flags handled by the CLI, then
// COURSEVAULT_* environment variables, then the YAML config file, then
// built-in defaults. Durations accept Go syntax ("30s", "5m") and byte
// sizes accept human units ("4MB", "512KiB").
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/coursevault/coursevault/internal/bytesize"
	"github.com/coursevault/coursevault/pkg/store"
)

// envPrefix namespaces environment variables (COURSEVAULT_VAULT_URL etc).
const envPrefix = "COURSEVAULT"

// VaultConfig locates and authenticates against the remote vault.
type VaultConfig struct {
	// URL is the vault base URL.
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	// CredentialHash is the long-lived credential exchanged for session
	// tokens.
	CredentialHash string `mapstructure:"credential_hash" yaml:"credential_hash" validate:"required"`

	// ProxyURL optionally routes all vault traffic through an HTTP proxy.
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url" validate:"omitempty,url"`
}

// TransferConfig tunes the chunked transfer machinery.
type TransferConfig struct {
	// ChunkSize is the fixed chunk size. Accepts human units.
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxAttempts bounds consecutive failures of one chunk.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1"`

	// TransportRetries is the connection-failure retry budget per exchange.
	TransportRetries int `mapstructure:"transport_retries" yaml:"transport_retries" validate:"min=0"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"min=1s"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout" yaml:"completion_timeout" validate:"min=1s"`

	// RunBudget is the wall-clock budget per batch run; 0 disables it.
	RunBudget time.Duration `mapstructure:"run_budget" yaml:"run_budget"`

	// LockStaleness is the age at which an abandoned run lock may be
	// reclaimed.
	LockStaleness time.Duration `mapstructure:"lock_staleness" yaml:"lock_staleness" validate:"min=1m"`

	// DeleteLocalAfterUpload removes source archives once the vault
	// confirms completion.
	DeleteLocalAfterUpload bool `mapstructure:"delete_local_after_upload" yaml:"delete_local_after_upload"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// Config is the full CourseVault configuration.
type Config struct {
	Vault    VaultConfig    `mapstructure:"vault" yaml:"vault"`
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
	Database store.Config   `mapstructure:"database" yaml:"database"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// Default returns the built-in defaults. Vault URL and credential hash have
// no defaults and must come from the file or environment.
func Default() *Config {
	cfg := &Config{
		Transfer: TransferConfig{
			ChunkSize:         4 * bytesize.MiB,
			MaxAttempts:       3,
			TransportRetries:  3,
			RequestTimeout:    30 * time.Second,
			CompletionTimeout: 5 * time.Minute,
			RunBudget:         50 * time.Minute,
			LockStaleness:     24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: "localhost:9464",
		},
	}
	cfg.Database.ApplyDefaults()
	return cfg
}

// Load reads the configuration from the given file (or the default search
// paths when path is empty), merges environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coursevault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "coursevault"))
		}
		v.AddConfigPath("/etc/coursevault")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file found on the search path: defaults + env still apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Database.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural errors.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Transfer.ChunkSize == 0 {
		return fmt.Errorf("invalid configuration: transfer.chunk_size must be positive")
	}
	return cfg.Database.Validate()
}

// setDefaults registers the default values with viper so environment-only
// setups work without a file.
func setDefaults(v *viper.Viper) {
	d := Default()

	// Registering the vault keys (even empty) lets COURSEVAULT_VAULT_URL
	// and friends work without a config file.
	v.SetDefault("vault.url", "")
	v.SetDefault("vault.credential_hash", "")
	v.SetDefault("vault.proxy_url", "")

	v.SetDefault("transfer.chunk_size", d.Transfer.ChunkSize.String())
	v.SetDefault("transfer.max_attempts", d.Transfer.MaxAttempts)
	v.SetDefault("transfer.transport_retries", d.Transfer.TransportRetries)
	v.SetDefault("transfer.request_timeout", d.Transfer.RequestTimeout.String())
	v.SetDefault("transfer.completion_timeout", d.Transfer.CompletionTimeout.String())
	v.SetDefault("transfer.run_budget", d.Transfer.RunBudget.String())
	v.SetDefault("transfer.lock_staleness", d.Transfer.LockStaleness.String())
	v.SetDefault("transfer.delete_local_after_upload", d.Transfer.DeleteLocalAfterUpload)

	v.SetDefault("database.type", string(d.Database.Type))
	v.SetDefault("database.sqlite.path", d.Database.SQLite.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// configDecodeHooks combines the decode hooks for the custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can say "4MiB" or a plain byte count.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration ("30s", "5m").
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// WriteSample writes a commented sample configuration to path. It refuses
// to overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := Default()

	// Durations and byte sizes are rendered as the strings Load accepts,
	// not as raw integers.
	sample := map[string]any{
		"vault": map[string]any{
			"url":             "https://vault.example.edu",
			"credential_hash": "replace-with-credential-hash",
			"proxy_url":       "",
		},
		"transfer": map[string]any{
			"chunk_size":                cfg.Transfer.ChunkSize.String(),
			"max_attempts":              cfg.Transfer.MaxAttempts,
			"transport_retries":         cfg.Transfer.TransportRetries,
			"request_timeout":           cfg.Transfer.RequestTimeout.String(),
			"completion_timeout":        cfg.Transfer.CompletionTimeout.String(),
			"run_budget":                cfg.Transfer.RunBudget.String(),
			"lock_staleness":            cfg.Transfer.LockStaleness.String(),
			"delete_local_after_upload": cfg.Transfer.DeleteLocalAfterUpload,
		},
		"database": map[string]any{
			"type": string(cfg.Database.Type),
			"sqlite": map[string]any{
				"path": cfg.Database.SQLite.Path,
			},
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
		"metrics": map[string]any{
			"enabled": cfg.Metrics.Enabled,
			"listen":  cfg.Metrics.Listen,
		},
	}

	body, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("render sample config: %w", err)
	}

	header := "# CourseVault configuration.\n" +
		"# Every key can be overridden with a COURSEVAULT_SECTION_KEY environment\n" +
		"# variable, e.g. COURSEVAULT_VAULT_URL.\n\n"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, append([]byte(header), body...), 0o600)
}
