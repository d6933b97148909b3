// Package userstore provides secondary user stores for identity remapping.
//
// A store resolves a mapped key to an account record. Lookups are
// case-insensitive and report unknown keys with an error matching
// adbind.ErrUserNotFound.
package userstore

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/netresearch/adbind"
)

// StoreType selects the store backend.
type StoreType string

const (
	// StoreTypeMemory reads accounts from a user map file.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeSQLite keeps accounts in a SQLite database.
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypePostgres keeps accounts in PostgreSQL.
	StoreTypePostgres StoreType = "postgres"
)

// Store is a secondary user store that holds resources.
type Store interface {
	adbind.UserDetailsService
	io.Closer
}

// Config selects and configures a store.
type Config struct {
	Type StoreType `mapstructure:"type" yaml:"type"`

	// UsersFile is the user map read by the memory store.
	UsersFile string `mapstructure:"users_file" yaml:"users_file,omitempty"`

	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`

	// BcryptCost is used when hashing plain text passwords. Zero selects bcrypt.DefaultCost.
	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = StoreTypeMemory
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Type == StoreTypePostgres {
		c.Postgres.applyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return &adbind.ConfigError{Field: "Store.BcryptCost", Message: fmt.Sprintf("must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)}
	}

	switch c.Type {
	case StoreTypeMemory:
		if c.UsersFile == "" {
			return adbind.NewConfigError("Store.UsersFile", "users file is required")
		}
	case StoreTypeSQLite:
		if c.SQLite.Path == "" {
			return adbind.NewConfigError("Store.SQLite.Path", "sqlite path is required")
		}
	case StoreTypePostgres:
		if c.Postgres.Host == "" {
			return adbind.NewConfigError("Store.Postgres.Host", "postgres host is required")
		}
		if c.Postgres.Database == "" {
			return adbind.NewConfigError("Store.Postgres.Database", "postgres database is required")
		}
		if c.Postgres.User == "" {
			return adbind.NewConfigError("Store.Postgres.User", "postgres user is required")
		}
	default:
		return adbind.NewConfigError("Store.Type", fmt.Sprintf("unsupported store type %q", c.Type))
	}
	return nil
}

// Open creates the store described by cfg.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case StoreTypeMemory:
		f, err := os.Open(cfg.UsersFile)
		if err != nil {
			return nil, fmt.Errorf("open users file: %w", err)
		}
		defer func() { _ = f.Close() }()

		store := NewMemoryStore(cfg.BcryptCost)
		if err := store.Load(f); err != nil {
			return nil, fmt.Errorf("read users file %s: %w", cfg.UsersFile, err)
		}
		return store, nil
	default:
		return NewGormStore(cfg)
	}
}

// hashPassword returns password as a bcrypt hash. Values that already are
// bcrypt hashes are kept. The empty password yields the empty hash, which
// matches nothing.
func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", nil
	}
	if _, err := bcrypt.Cost([]byte(password)); err == nil {
		return password, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
