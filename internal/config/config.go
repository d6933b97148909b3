// Package config loads the adauth configuration from a file and ADAUTH_*
// environment variables.
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

	"github.com/netresearch/adbind"
	"github.com/netresearch/adbind/userstore"
)

// EnvPrefix prefixes every environment variable, e.g. ADAUTH_DIRECTORY_SERVER.
const EnvPrefix = "ADAUTH"

// Config is the adauth configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ADAUTH_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Directory configures authentication against Active Directory.
	Directory adbind.Config `mapstructure:"directory" yaml:"directory"`

	// Store configures the secondary user store used by identity remapping.
	// Nil when no store is configured.
	Store *userstore.Config `mapstructure:"store" yaml:"store,omitempty"`

	// File is the configuration file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// keys lists every leaf setting so that it can be supplied through the
// environment alone.
var keys = []string{
	"logging.level",
	"logging.format",
	"logging.output",

	"directory.server",
	"directory.root_dn",
	"directory.dial_timeout",
	"directory.language",
	"directory.default_role",
	"directory.user_search.base",
	"directory.user_search.filter",
	"directory.user_search.subtree",
	"directory.user_search.attributes",
	"directory.group_search.base",
	"directory.group_search.filter",
	"directory.group_search.role_attribute",
	"directory.group_search.search_subtree",
	"directory.group_search.role_prefix",
	"directory.group_search.convert_to_upper_case",
	"directory.remap.strategy",
	"directory.remap.value",
	"directory.remap.prefix",
	"directory.remap.uppercase",
	"directory.remap.keep_directory_roles",
	"directory.attempt_limit.max_failures",
	"directory.attempt_limit.window",
	"directory.attempt_limit.lockout",
	"directory.attempt_limit.exponential_backoff",
	"directory.attempt_limit.max_lockout",

	"store.type",
	"store.users_file",
	"store.bcrypt_cost",
	"store.sqlite.path",
	"store.postgres.host",
	"store.postgres.port",
	"store.postgres.database",
	"store.postgres.user",
	"store.postgres.password",
	"store.postgres.sslmode",
}

// Default returns the configuration used for settings that are not supplied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Directory: *adbind.DefaultConfig("", ""),
	}
}

// Load loads configuration from file, environment, and defaults. An empty
// configPath looks for config.yaml in the default configuration directory;
// a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if found {
		cfg.File = v.ConfigFileUsed()
	}

	// Optional blocks start from their defaults once any of their keys is set,
	// so a partial block keeps the remaining defaults.
	if anySet(v, "directory.group_search") {
		cfg.Directory.GroupSearch = adbind.DefaultGroupSearch("")
	}
	if anySet(v, "directory.attempt_limit") {
		limits := adbind.DefaultAttemptLimitConfig()
		cfg.Directory.AttemptLimit = &limits
	}
	if anySet(v, "store") {
		cfg.Store = &userstore.Config{}
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills in missing values.
func ApplyDefaults(cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	cfg.Directory.ApplyDefaults()
	if cfg.Store != nil {
		cfg.Store.ApplyDefaults()
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg.Logging); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &adbind.ConfigError{Field: "Logging." + verrs[0].Field(), Message: fmt.Sprintf("failed %q validation", verrs[0].Tag()), Err: err}
		}
		return err
	}

	if err := cfg.Directory.Validate(); err != nil {
		return err
	}

	if cfg.Directory.Remap != nil && cfg.Store == nil {
		return adbind.NewConfigError("Store", "identity remapping requires a secondary user store")
	}
	if cfg.Store != nil {
		if err := cfg.Store.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ADAUTH_DIRECTORY_SERVER=ldaps://dc1.example.com
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func anySet(v *viper.Viper, prefix string) bool {
	if v.IsSet(prefix) {
		return true
	}
	for _, key := range keys {
		if strings.HasPrefix(key, prefix+".") && v.IsSet(key) {
			return true
		}
	}
	return false
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mappingKindDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s" and raw nanosecond numbers
// to time.Duration.
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
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// mappingKindDecodeHook converts strategy names like "fixed_value" to adbind.MappingKind.
func mappingKindDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(adbind.MappingKind(0)) {
			return data, nil
		}
		if s, ok := data.(string); ok {
			return adbind.ParseMappingKind(s)
		}
		return data, nil
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/adauth, ~/.config/adauth or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "adauth")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "adauth")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
