//go:build integration

package userstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/netresearch/adbind"
)

func setupPostgres(t *testing.T) *Config {
	t.Helper()
	ctx := context.Background()

	// PostgreSQL logs "database system is ready" once during bootstrap and
	// once when it accepts connections.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("adauth"),
		postgres.WithUsername("adauth"),
		postgres.WithPassword("adauth"),
		testcontainers.WithWaitStrategyAndDeadline(3*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return &Config{
		Type: StoreTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "adauth",
			User:     "adauth",
			Password: "adauth",
		},
		BcryptCost: bcrypt.MinCost,
	}
}

func TestPostgresStore(t *testing.T) {
	cfg := setupPostgres(t)

	store, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db, ok := store.(*GormStore)
	require.True(t, ok)
	ctx := context.Background()

	src, err := ParseUserMap(strings.NewReader("svc=secret,ROLE_SVC\nbatch=secret,ROLE_BATCH,disabled\n"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Import(ctx, src))

	got, err := store.LoadUserByUsername(ctx, "SVC")
	require.NoError(t, err)
	assert.Equal(t, "svc", got.Username)
	assert.True(t, got.Enabled)
	assert.True(t, got.CheckPassword("secret"))

	got, err = store.LoadUserByUsername(ctx, "batch")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, []string{"ROLE_BATCH"}, got.Roles.Strings())

	require.NoError(t, db.DeleteAccount(ctx, "batch"))
	_, err = store.LoadUserByUsername(ctx, "batch")
	assert.ErrorIs(t, err, adbind.ErrUserNotFound)
}
