package userstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/netresearch/adbind"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode"` // disable, require, verify-ca, verify-full
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

func (c *PostgresConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Account is a secondary account row.
type Account struct {
	ID uint `gorm:"primaryKey"`
	// LookupKey is the lower-cased username used for lookups.
	LookupKey    string        `gorm:"uniqueIndex;not null;size:255"`
	Username     string        `gorm:"not null;size:255"`
	PasswordHash string        `gorm:"not null"`
	Enabled      bool          `gorm:"default:true"`
	Roles        []AccountRole `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time     `gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime"`
}

// TableName returns the table name for Account.
func (Account) TableName() string {
	return "accounts"
}

// AccountRole grants a role to an account.
type AccountRole struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"index;not null"`
	Role      string `gorm:"not null;size:255"`
}

// TableName returns the table name for AccountRole.
func (AccountRole) TableName() string {
	return "account_roles"
}

func (a *Account) identity() *adbind.SecondaryIdentity {
	roles := make(adbind.RoleSet, len(a.Roles))
	for _, r := range a.Roles {
		roles.Add(adbind.Role(r.Role))
	}
	return &adbind.SecondaryIdentity{
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		Enabled:      a.Enabled,
		Roles:        roles,
	}
}

// GormStore keeps accounts in a SQL database. It supports SQLite and
// PostgreSQL through the same code.
type GormStore struct {
	db   *gorm.DB
	cost int
}

// NewGormStore opens the database described by cfg and migrates the schema.
func NewGormStore(cfg *Config) (*GormStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case StoreTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		dialector = sqlite.Open(dsn)
	case StoreTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	default:
		return nil, adbind.NewConfigError("Store.Type", fmt.Sprintf("store type %q is not backed by a database", cfg.Type))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == StoreTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&Account{}, &AccountRole{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &GormStore{db: db, cost: cfg.BcryptCost}, nil
}

// DB returns the underlying GORM database connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// LoadUserByUsername implements adbind.UserDetailsService.
func (s *GormStore) LoadUserByUsername(ctx context.Context, key string) (*adbind.SecondaryIdentity, error) {
	var account Account
	err := s.db.WithContext(ctx).
		Preload("Roles").
		Where("lookup_key = ?", strings.ToLower(key)).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", adbind.ErrUserNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account.identity(), nil
}

// PutAccount creates or replaces the account for username.
func (s *GormStore) PutAccount(ctx context.Context, username, password string, enabled bool, roles ...adbind.Role) error {
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		err := tx.Where("lookup_key = ?", strings.ToLower(username)).First(&account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			account = Account{LookupKey: strings.ToLower(username)}
		case err != nil:
			return err
		default:
			if err := tx.Where("account_id = ?", account.ID).Delete(&AccountRole{}).Error; err != nil {
				return err
			}
		}

		account.Username = username
		account.PasswordHash = hash
		account.Enabled = enabled
		account.Roles = nil
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		// Enabled has a column default, so false must be written explicitly.
		if err := tx.Model(&account).Update("enabled", enabled).Error; err != nil {
			return err
		}

		for _, role := range adbind.NewRoleSet(roles...).Slice() {
			if err := tx.Create(&AccountRole{AccountID: account.ID, Role: string(role)}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAccount removes the account for username.
func (s *GormStore) DeleteAccount(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		if err := tx.Where("lookup_key = ?", strings.ToLower(username)).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %q", adbind.ErrUserNotFound, username)
			}
			return err
		}
		if err := tx.Where("account_id = ?", account.ID).Delete(&AccountRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&account).Error
	})
}

// Import copies every account of a memory store into s.
func (s *GormStore) Import(ctx context.Context, src *MemoryStore) error {
	src.mu.RLock()
	accounts := make([]*adbind.SecondaryIdentity, 0, len(src.accounts))
	for _, a := range src.accounts {
		accounts = append(accounts, a)
	}
	src.mu.RUnlock()

	for _, a := range accounts {
		if err := s.PutAccount(ctx, a.Username, a.PasswordHash, a.Enabled, a.Roles.Slice()...); err != nil {
			return fmt.Errorf("import %q: %w", a.Username, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
