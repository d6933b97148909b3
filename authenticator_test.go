package adbind

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/netresearch/adbind/testutil"
)

func newTestAuthenticator(t *testing.T, dir *testutil.MockDirectory, search UserSearch, opts ...Option) *BindAuthenticator {
	t.Helper()
	a, err := NewBindAuthenticator(newMockFactory(dir), testutil.FixtureRootDN, search, opts...)
	require.NoError(t, err)
	return a
}

func TestBindAuthenticatorSuccess(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, DefaultUserSearch())

	v, err := a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, testutil.JDoeDN, v.Principal.DN())
	assert.Equal(t, "jdoe", v.Principal.Username())
	assert.Equal(t, "jdoe@example.com", v.Principal.PrincipalName())
	assert.Equal(t, "jdoe", v.Principal.AccountName())
	assert.Equal(t, "jdoe@example.com", v.Principal.AttributeValue("mail"))
	assert.True(t, v.Principal.Enabled())

	cred, ok := v.Credential()
	require.True(t, ok)
	assert.Equal(t, testutil.JDoePassword, cred.Reveal())

	require.Len(t, dir.BindCalls, 1)
	assert.Equal(t, "jdoe@example.com", dir.BindCalls[0].Username)
	assert.Equal(t, testutil.JDoeDN, dir.SearchCalls[0].BoundAs)
	assert.Equal(t, 0, dir.OpenConnections())
}

func TestBindAuthenticatorDefaultBaseIsRootDN(t *testing.T) {
	dir := testutil.NewADFixture()
	cfg := DefaultConfig("ldap://mock.example.com", testutil.FixtureRootDN)
	a := newTestAuthenticator(t, dir, cfg.UserSearch)

	_, err := a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))
	require.NoError(t, err)

	require.Len(t, dir.SearchCalls, 1)
	assert.Equal(t, testutil.FixtureRootDN, dir.SearchCalls[0].Request.BaseDN)
	assert.Equal(t, "(&(objectClass=user)(samAccountName=jdoe))", dir.SearchCalls[0].Request.Filter)
}

func TestBindAuthenticatorEscapedDN(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, DefaultUserSearch())

	v, err := a.Authenticate(context.Background(), "ASmith", NewCredential(testutil.ASmithPassword))
	require.NoError(t, err)
	assert.Equal(t, testutil.ASmithDN, v.Principal.DN())
	assert.Equal(t, "asmith", v.Principal.AccountName())
	assert.Equal(t, "ASmith", v.Principal.Username())
}

func TestBindAuthenticatorRejections(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		search   UserSearch
		binds    int
	}{
		{"wrong password", "jdoe", "wrong", DefaultUserSearch(), 1},
		{"unknown user", "nobody", "whatever", DefaultUserSearch(), 1},
		{"disabled account", "olduser", testutil.DisabledPassword, DefaultUserSearch(), 1},
		{"empty password", "jdoe", "", DefaultUserSearch(), 0},
		{"empty username", "", "secret", DefaultUserSearch(), 0},
		{"wildcard username", "j*", testutil.JDoePassword, DefaultUserSearch(), 1},
		{"entry outside search base", "jdoe", testutil.JDoePassword, UserSearch{Base: testutil.GroupsOU, Subtree: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.NewADFixture()
			a := newTestAuthenticator(t, dir, tt.search)

			v, err := a.Authenticate(context.Background(), tt.username, NewCredential(tt.password))
			require.Error(t, err)
			assert.Nil(t, v)

			assert.ErrorIs(t, err, ErrBadCredentials)
			assert.NotErrorIs(t, err, ErrInvalidCredentials)
			assert.NotErrorIs(t, err, ErrEntryNotFound)
			assert.Equal(t, "Bad credentials", err.Error())
			assert.Equal(t, tt.binds, dir.GetBindCallCount())
			assert.Equal(t, 0, dir.OpenConnections())
		})
	}
}

func TestBindAuthenticatorSameMessageForUnknownUserAndWrongPassword(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, DefaultUserSearch())
	ctx := context.Background()

	_, unknown := a.Authenticate(ctx, "nobody", NewCredential("x"))
	_, wrong := a.Authenticate(ctx, "jdoe", NewCredential("x"))

	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, unknown.Error(), wrong.Error())

	var bad *BadCredentialsError
	require.ErrorAs(t, wrong, &bad)
	assert.ErrorIs(t, bad.Cause(), ErrInvalidCredentials)
	assert.Nil(t, bad.Reason)
}

func TestBindAuthenticatorFilterMetacharacters(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, DefaultUserSearch())

	v, err := a.Authenticate(context.Background(), testutil.SpecialName, NewCredential(testutil.SpecialPassword))
	require.NoError(t, err)
	assert.Equal(t, testutil.SpecialDN, v.Principal.DN())

	last := dir.SearchCalls[len(dir.SearchCalls)-1]
	assert.Equal(t, `(&(objectClass=user)(samAccountName=star\2a\28user\29))`, last.Request.Filter)
}

func TestBindAuthenticatorServiceFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(dir *testutil.MockDirectory)
		search UserSearch
		target error
	}{
		{
			name:   "dial failure",
			setup:  func(dir *testutil.MockDirectory) { dir.DialError = errors.New("connection refused") },
			search: DefaultUserSearch(),
			target: ErrConnectionFailed,
		},
		{
			name:   "ambiguous user entry",
			search: UserSearch{Filter: "(objectClass=user)", Subtree: true},
			target: ErrEntryNotUnique,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.NewADFixture()
			if tt.setup != nil {
				tt.setup(dir)
			}
			a := newTestAuthenticator(t, dir, tt.search)

			_, err := a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))
			require.Error(t, err)

			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.ErrorIs(t, err, ErrAuthenticationService)
			assert.ErrorIs(t, err, tt.target)
			assert.NotErrorIs(t, err, ErrBadCredentials)
			assert.Equal(t, 0, dir.OpenConnections())
		})
	}
}

func TestBindAuthenticatorOneLevelSearch(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, UserSearch{Base: testutil.FixtureRootDN})

	_, err := a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))
	assert.ErrorIs(t, err, ErrBadCredentials)

	a = newTestAuthenticator(t, dir, UserSearch{Base: testutil.UsersOU})
	_, err = a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))
	assert.NoError(t, err)
}

func TestBindAuthenticatorLocalizedMessage(t *testing.T) {
	dir := testutil.NewADFixture()
	a := newTestAuthenticator(t, dir, DefaultUserSearch(), WithMessages(NewMessageProvider(language.German)))

	_, err := a.Authenticate(context.Background(), "jdoe", NewCredential("wrong"))
	require.Error(t, err)
	assert.Equal(t, "Ungültige Anmeldedaten", err.Error())
}

func TestBindAuthenticatorDoesNotLogSecrets(t *testing.T) {
	dir := testutil.NewADFixture()
	logger, logs := newBufferLogger(t)
	a, err := NewBindAuthenticator(newMockFactory(dir), testutil.FixtureRootDN, DefaultUserSearch(), WithLogger(logger))
	require.NoError(t, err)

	_, _ = a.Authenticate(context.Background(), "jdoe", NewCredential("hunter2-wrong"))
	_, _ = a.Authenticate(context.Background(), "jdoe", NewCredential(testutil.JDoePassword))

	assert.NotContains(t, logs.String(), "hunter2-wrong")
	assert.NotContains(t, logs.String(), testutil.JDoePassword)
	assert.Contains(t, logs.String(), "authentication_failed")
	assert.Contains(t, logs.String(), "authentication_succeeded")
}

func TestNewBindAuthenticatorConfigErrors(t *testing.T) {
	dir := testutil.NewADFixture()

	tests := []struct {
		name    string
		factory ConnectionFactory
		rootDN  string
		search  UserSearch
		field   string
	}{
		{"nil factory", nil, testutil.FixtureRootDN, DefaultUserSearch(), "ConnectionFactory"},
		{"empty root DN", newMockFactory(dir), "", DefaultUserSearch(), "RootDN"},
		{"root DN without components", newMockFactory(dir), "example", DefaultUserSearch(), "RootDN"},
		{"invalid filter", newMockFactory(dir), testutil.FixtureRootDN, UserSearch{Filter: "(&(cn={0})"}, "UserSearch.Filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBindAuthenticator(tt.factory, tt.rootDN, tt.search)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
