package userstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/netresearch/adbind"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(&Config{
		Type:       StoreTypeSQLite,
		SQLite:     SQLiteConfig{Path: filepath.Join(t.TempDir(), "accounts.db")},
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStoreAccounts(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccount(ctx, "Rod,OK", "koala", true, "ROLE_TWO", "ROLE_ONE"))

	got, err := store.LoadUserByUsername(ctx, "rod,ok")
	require.NoError(t, err)
	assert.Equal(t, "Rod,OK", got.Username)
	assert.True(t, got.Enabled)
	assert.Equal(t, []string{"ROLE_ONE", "ROLE_TWO"}, got.Roles.Strings())
	assert.True(t, got.CheckPassword("koala"))

	// Replacing an account replaces its roles.
	require.NoError(t, store.PutAccount(ctx, "rod,ok", "koala2", false, "ROLE_THREE"))
	got, err = store.LoadUserByUsername(ctx, "ROD,OK")
	require.NoError(t, err)
	assert.Equal(t, "rod,ok", got.Username)
	assert.False(t, got.Enabled)
	assert.Equal(t, []string{"ROLE_THREE"}, got.Roles.Strings())
	assert.True(t, got.CheckPassword("koala2"))

	var count int64
	require.NoError(t, store.DB().Model(&AccountRole{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStoreDisabledOnCreate(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccount(ctx, "scott", "wombat", false, "ROLE_USER"))
	got, err := store.LoadUserByUsername(ctx, "scott")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestGormStoreNotFound(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	_, err := store.LoadUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, adbind.ErrUserNotFound)

	require.NoError(t, store.PutAccount(ctx, "jdoe", "pw", true, "ROLE_A"))
	require.NoError(t, store.DeleteAccount(ctx, "JDOE"))

	_, err = store.LoadUserByUsername(ctx, "jdoe")
	assert.ErrorIs(t, err, adbind.ErrUserNotFound)
	assert.ErrorIs(t, store.DeleteAccount(ctx, "jdoe"), adbind.ErrUserNotFound)
}

func TestGormStoreImport(t *testing.T) {
	mem, err := ParseUserMap(strings.NewReader("rod,ok=koala,ROLE_ONE,ROLE_TWO,enabled\nscott=wombat,ROLE_USER,disabled\n"), bcrypt.MinCost)
	require.NoError(t, err)

	store := newTestGormStore(t)
	ctx := context.Background()
	require.NoError(t, store.Import(ctx, mem))

	rod, err := store.LoadUserByUsername(ctx, "rod,ok")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ONE", "ROLE_TWO"}, rod.Roles.Strings())
	assert.True(t, rod.CheckPassword("koala"))

	scott, err := store.LoadUserByUsername(ctx, "scott")
	require.NoError(t, err)
	assert.False(t, scott.Enabled)
}
