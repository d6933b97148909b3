package adbind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Sentinel errors used to classify failures with errors.Is.
var (
	// ErrBadCredentials is matched by every rejected login, whatever the reason.
	ErrBadCredentials = errors.New("adbind: bad credentials")
	// ErrAuthenticationService marks a fault of the directory, the secondary
	// store or their contracts rather than of the presented credentials.
	ErrAuthenticationService = errors.New("adbind: authentication service failure")
	// ErrMappingNotFound is returned when an account mapping has no input to work with.
	ErrMappingNotFound = errors.New("adbind: no mapping value found")
	// ErrUserNotFound is the secondary store's "no such account" signal.
	ErrUserNotFound = errors.New("adbind: user not found")
	// ErrMissingCredential is returned when role resolution runs without a credential.
	ErrMissingCredential = errors.New("adbind: credential not available")
	// ErrAttemptLimited is returned while a username is locked out.
	ErrAttemptLimited = errors.New("adbind: too many failed attempts")

	ErrInvalidCredentials = errors.New("ldap: invalid credentials")
	ErrConnectionFailed   = errors.New("ldap: connection failed")
	ErrEntryNotFound      = errors.New("ldap: entry not found")
	ErrEntryNotUnique     = errors.New("ldap: entry not unique")
	ErrInvalidFilter      = errors.New("ldap: invalid filter")
	ErrContextCancelled   = errors.New("ldap: context cancelled")
	ErrContextDeadline    = errors.New("ldap: context deadline exceeded")
)

// LDAPError carries the operation context of a failed directory call.
type LDAPError struct {
	// Op is the operation name, e.g. "bind" or "search".
	Op string
	// DN is the distinguished name or principal involved, if any.
	DN string
	// Server is the directory URL.
	Server string
	// Code is the LDAP result code, 0 when the failure was not a result.
	Code int
	// Err is the underlying error.
	Err error
	// Context holds additional debugging information.
	Context map[string]any
	// Timestamp is when the error was created.
	Timestamp time.Time
}

// NewLDAPError creates an LDAPError for op against server.
func NewLDAPError(op, server string, err error) *LDAPError {
	return &LDAPError{
		Op:        op,
		Server:    server,
		Err:       err,
		Context:   make(map[string]any),
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *LDAPError) Error() string {
	if e.DN != "" {
		return fmt.Sprintf("ldap %s failed for %q on server %q: %v", e.Op, e.DN, e.Server, e.Err)
	}
	return fmt.Sprintf("ldap %s failed on server %q: %v", e.Op, e.Server, e.Err)
}

// Unwrap returns the underlying error.
func (e *LDAPError) Unwrap() error {
	return e.Err
}

// WithDN sets the distinguished name.
func (e *LDAPError) WithDN(dn string) *LDAPError {
	e.DN = dn
	return e
}

// WithCode sets the LDAP result code.
func (e *LDAPError) WithCode(code int) *LDAPError {
	e.Code = code
	return e
}

// WithContext adds a debugging key.
func (e *LDAPError) WithContext(key string, value any) *LDAPError {
	e.Context[key] = value
	return e
}

// WrapLDAPError wraps err with operation context and classifies LDAP result codes.
func WrapLDAPError(op, server string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", op, ErrContextCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrContextDeadline, err)
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return classifyLDAPError(op, server, ldapErr)
	}
	return NewLDAPError(op, server, err)
}

func classifyLDAPError(op, server string, ldapErr *ldap.Error) *LDAPError {
	e := NewLDAPError(op, server, ldapErr).WithCode(int(ldapErr.ResultCode))

	switch ldapErr.ResultCode {
	case ldap.LDAPResultInvalidCredentials:
		return e.WithContext("error_type", "authentication")
	case ldap.LDAPResultInsufficientAccessRights:
		return e.WithContext("error_type", "authorization")
	case ldap.LDAPResultUnwillingToPerform:
		return e.WithContext("error_type", "account_disabled")
	case ldap.LDAPResultNoSuchObject:
		return e.WithContext("error_type", "not_found")
	case ldap.LDAPResultInvalidDNSyntax:
		return e.WithContext("error_type", "invalid_dn")
	case ldap.LDAPResultFilterError:
		return e.WithContext("error_type", "invalid_filter")
	case ldap.LDAPResultUnavailable, ldap.LDAPResultServerDown, ldap.ErrorNetwork:
		return e.WithContext("error_type", "server_unavailable")
	case ldap.LDAPResultTimeLimitExceeded, ldap.LDAPResultTimeout:
		return e.WithContext("error_type", "timeout")
	case ldap.LDAPResultBusy:
		return e.WithContext("error_type", "server_busy")
	default:
		return e.WithContext("error_type", "unknown")
	}
}

// GetLDAPResultCode extracts the LDAP result code from err, or -1.
func GetLDAPResultCode(err error) int {
	var enhanced *LDAPError
	if errors.As(err, &enhanced) && enhanced.Code != 0 {
		return enhanced.Code
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return int(ldapErr.ResultCode)
	}
	return -1
}

// IsInvalidCredentials reports whether the directory rejected a bind because
// of the presented credentials. Account restrictions (disabled, expired,
// locked) are reported by Active Directory with the same result code.
func IsInvalidCredentials(err error) bool {
	if errors.Is(err, ErrInvalidCredentials) {
		return true
	}
	return GetLDAPResultCode(err) == int(ldap.LDAPResultInvalidCredentials)
}

// IsRetryable reports whether err is a transient transport fault.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrConnectionFailed) {
		return true
	}
	switch GetLDAPResultCode(err) {
	case int(ldap.LDAPResultServerDown), int(ldap.LDAPResultUnavailable),
		int(ldap.LDAPResultBusy), int(ldap.ErrorNetwork), int(ldap.LDAPResultTimeout):
		return true
	}
	return false
}

// BadCredentialsError is returned for any rejected login. Its message is the
// same for an unknown user and a wrong password. The cause is kept for
// server-side logging and is deliberately not reachable through Unwrap.
type BadCredentialsError struct {
	Message string
	// Reason is an optional sentinel, such as ErrAttemptLimited, that callers
	// may match with errors.Is. It never distinguishes unknown users.
	Reason error
	cause  error
}

// NewBadCredentialsError returns a BadCredentialsError with the given message and hidden cause.
func NewBadCredentialsError(message string, cause error) *BadCredentialsError {
	return &BadCredentialsError{Message: message, cause: cause}
}

func (e *BadCredentialsError) Error() string {
	return e.Message
}

// Is matches ErrBadCredentials and Reason.
func (e *BadCredentialsError) Is(target error) bool {
	return target == ErrBadCredentials || (e.Reason != nil && target == e.Reason)
}

// Cause returns the hidden cause for logging.
func (e *BadCredentialsError) Cause() error {
	return e.cause
}

// ServiceError reports a failure of the authentication machinery itself.
type ServiceError struct {
	Op      string
	Message string
	Err     error
	// UserMessage is the localized text safe to show to the user. Error
	// carries operator detail instead.
	UserMessage string
}

// NewServiceError returns a ServiceError wrapping err.
func NewServiceError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Message: message, Err: err}
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// PublicMessage returns UserMessage, or a generic English text when unset.
func (e *ServiceError) PublicMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return "Authentication service unavailable"
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches ErrAuthenticationService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrAuthenticationService
}

// ConfigError reports invalid or incomplete configuration.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

// NewConfigError creates a new configuration error.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (c *ConfigError) Error() string {
	msg := "configuration error"
	if c.Field != "" {
		msg = fmt.Sprintf("configuration error in field %q", c.Field)
	}
	if c.Message != "" {
		msg += ": " + c.Message
	}
	if c.Err != nil {
		msg += ": " + c.Err.Error()
	}
	return msg
}

func (c *ConfigError) Unwrap() error {
	return c.Err
}
