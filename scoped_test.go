package adbind

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/adbind/testutil"
)

func TestScopedSourceIgnoresRequestedIdentity(t *testing.T) {
	factory := &staticFactory{conn: &testutil.MockConn{}}
	cred := NewCredential("fixed-secret")
	source := NewScopedSource(factory, "jdoe@example.com", cred)

	ctx := context.Background()
	_, err := source.ReadOnlyConnection(ctx)
	require.NoError(t, err)
	_, err = source.ReadWriteConnection(ctx)
	require.NoError(t, err)
	_, err = source.Connect(ctx, "admin@example.com", NewCredential("other"))
	require.NoError(t, err)

	assert.Equal(t, []string{"jdoe@example.com", "jdoe@example.com", "jdoe@example.com"}, factory.principals)
	for _, c := range factory.creds {
		assert.Same(t, cred, c)
	}
	assert.Equal(t, "jdoe@example.com", source.Principal())
}

func TestScopedSourcePropagatesErrorsUnchanged(t *testing.T) {
	backing := errors.New("backing factory failure")
	source := NewScopedSource(&staticFactory{err: backing}, "jdoe@example.com", NewCredential("x"))

	_, err := source.ReadOnlyConnection(context.Background())
	assert.Same(t, backing, err)
}

func TestScopedSourceBindsLazily(t *testing.T) {
	dir := testutil.NewADFixture()
	NewScopedSource(newMockFactory(dir), "jdoe@example.com", NewCredential(testutil.JDoePassword))

	assert.Equal(t, 0, dir.GetBindCallCount())
	assert.Equal(t, 0, dir.Dials)
}
