package adbind

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLDAPError tests the enhanced LDAP error functionality
func TestLDAPError(t *testing.T) {
	baseErr := errors.New("connection refused")
	ldapErr := NewLDAPError("search", "ldaps://test.com", baseErr)
	ldapErr.WithDN("CN=test,DC=example,DC=com").
		WithCode(int(ldap.LDAPResultServerDown)).
		WithContext("filter", "(objectClass=user)")

	expectedMsg := `ldap search failed for "CN=test,DC=example,DC=com" on server "ldaps://test.com": connection refused`
	if ldapErr.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, ldapErr.Error())
	}

	if !errors.Is(ldapErr, baseErr) {
		t.Error("Expected enhanced error to wrap base error")
	}

	if ldapErr.Context["filter"] != "(objectClass=user)" {
		t.Errorf("Expected filter context, got %v", ldapErr.Context["filter"])
	}

	code := GetLDAPResultCode(ldapErr)
	if code != int(ldap.LDAPResultServerDown) {
		t.Errorf("Expected LDAP result code %d, got %d", int(ldap.LDAPResultServerDown), code)
	}

	if !IsRetryable(ldapErr) {
		t.Error("Expected server down to be retryable")
	}
}

func TestWrapLDAPError(t *testing.T) {
	tests := []struct {
		name      string
		baseErr   error
		sentinel  error
		code      int
		errorType string
	}{
		{
			name:     "context cancelled",
			baseErr:  context.Canceled,
			sentinel: ErrContextCancelled,
			code:     -1,
		},
		{
			name:     "context deadline exceeded",
			baseErr:  fmt.Errorf("dial: %w", context.DeadlineExceeded),
			sentinel: ErrContextDeadline,
			code:     -1,
		},
		{
			name:      "invalid credentials",
			baseErr:   ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("data 52e")),
			code:      int(ldap.LDAPResultInvalidCredentials),
			errorType: "authentication",
		},
		{
			name:      "no such object",
			baseErr:   ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")),
			code:      int(ldap.LDAPResultNoSuchObject),
			errorType: "not_found",
		},
		{
			name:      "network error",
			baseErr:   ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset")),
			code:      int(ldap.ErrorNetwork),
			errorType: "server_unavailable",
		},
		{
			name:      "filter error",
			baseErr:   ldap.NewError(ldap.LDAPResultFilterError, errors.New("bad filter")),
			code:      int(ldap.LDAPResultFilterError),
			errorType: "invalid_filter",
		},
		{
			name:    "plain error",
			baseErr: errors.New("boom"),
			code:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapLDAPError("search", "ldaps://test.com", tt.baseErr)
			require.Error(t, wrapped)
			assert.ErrorIs(t, wrapped, tt.baseErr)

			if tt.sentinel != nil {
				assert.ErrorIs(t, wrapped, tt.sentinel)
			}
			assert.Equal(t, tt.code, GetLDAPResultCode(wrapped))

			if tt.errorType != "" {
				var ldapErr *LDAPError
				require.ErrorAs(t, wrapped, &ldapErr)
				assert.Equal(t, tt.errorType, ldapErr.Context["error_type"])
				assert.Equal(t, "search", ldapErr.Op)
			}
		})
	}

	assert.NoError(t, WrapLDAPError("search", "", nil))
}

func TestIsInvalidCredentials(t *testing.T) {
	assert.True(t, IsInvalidCredentials(ErrInvalidCredentials))
	assert.True(t, IsInvalidCredentials(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x"))))
	assert.True(t, IsInvalidCredentials(fmt.Errorf("%w: %w", ErrInvalidCredentials, errors.New("x"))))
	assert.False(t, IsInvalidCredentials(ldap.NewError(ldap.LDAPResultBusy, errors.New("x"))))
	assert.False(t, IsInvalidCredentials(errors.New("x")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrConnectionFailed, true},
		{WrapLDAPError("bind", "", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))), true},
		{WrapLDAPError("bind", "", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("down"))), true},
		{ldap.NewError(ldap.ErrorNetwork, errors.New("reset")), true},
		{ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("52e")), false},
		{ErrEntryNotFound, false},
		{errors.New("other"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestBadCredentialsError(t *testing.T) {
	cause := fmt.Errorf("%w: user unknown", ErrEntryNotFound)
	err := NewBadCredentialsError("Bad credentials", cause)

	assert.Equal(t, "Bad credentials", err.Error())
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.NotErrorIs(t, err, ErrEntryNotFound)
	assert.NotErrorIs(t, err, ErrAttemptLimited)
	assert.Same(t, cause, err.Cause())

	limited := &BadCredentialsError{Message: "locked", Reason: ErrAttemptLimited}
	assert.ErrorIs(t, limited, ErrBadCredentials)
	assert.ErrorIs(t, limited, ErrAttemptLimited)
}

func TestServiceError(t *testing.T) {
	inner := errors.New("timeout")
	err := NewServiceError("remap", "secondary store lookup failed", inner)

	assert.Equal(t, "remap: secondary store lookup failed: timeout", err.Error())
	assert.ErrorIs(t, err, ErrAuthenticationService)
	assert.ErrorIs(t, err, inner)

	bare := NewServiceError("remap", "no record", nil)
	assert.Equal(t, "remap: no record", bare.Error())
	assert.ErrorIs(t, bare, ErrAuthenticationService)
}

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("RootDN", "missing"), `configuration error in field "RootDN": missing`},
		{NewConfigError("", "config must not be nil"), "configuration error: config must not be nil"},
		{&ConfigError{Field: "Credential", Err: ErrMissingCredential}, `configuration error in field "Credential": adbind: credential not available`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
	assert.ErrorIs(t, tests[2].err, ErrMissingCredential)
}
