package adbind

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultUserSearchFilter finds the user entry by login name.
const DefaultUserSearchFilter = "(&(objectClass=user)(samAccountName={0}))"

// BindAuthenticator verifies a username and credential by binding to the
// directory as the user's principal name and reading the user's own entry
// through that connection.
type BindAuthenticator struct {
	factory  ConnectionFactory
	rootDN   string
	search   UserSearch
	messages *MessageProvider
	logger   *slog.Logger
	metrics  *Metrics
}

// NewBindAuthenticator returns an authenticator binding through factory. It
// fails with a *ConfigError when rootDN has no domain components or the user
// search filter does not compile.
func NewBindAuthenticator(factory ConnectionFactory, rootDN string, search UserSearch, opts ...Option) (*BindAuthenticator, error) {
	if factory == nil {
		return nil, NewConfigError("ConnectionFactory", "must not be nil")
	}
	if _, err := DomainFromRootDN(rootDN); err != nil {
		return nil, err
	}
	search.applyDefaults()
	search.Base = searchBase(search.Base, rootDN)
	if _, err := FormatFilter(search.Filter, "probe"); err != nil {
		return nil, &ConfigError{Field: "UserSearch.Filter", Message: "invalid filter", Err: err}
	}

	o := applyOptions(opts)
	return &BindAuthenticator{
		factory:  factory,
		rootDN:   rootDN,
		search:   search,
		messages: o.messageProvider(),
		logger:   o.logger.With(slog.String("component", "bind_authenticator")),
		metrics:  o.metrics,
	}, nil
}

// Authenticate binds as username's principal name with cred and returns the
// user's entry together with cred.
//
// A rejected bind and a missing user entry both yield a *BadCredentialsError
// with the same message. Transport faults and ambiguous results yield a
// *ServiceError.
func (a *BindAuthenticator) Authenticate(ctx context.Context, username string, cred *Credential) (*Verification, error) {
	start := time.Now()

	if username == "" || cred.IsZero() {
		// An empty password would be an unauthenticated bind, which the directory accepts.
		a.logger.Debug("authentication_rejected",
			slog.String("reason", "empty_username_or_credential"),
			slog.Bool("credential_present", !cred.IsZero()))
		return nil, a.badCredentials(nil)
	}

	principal, err := BuildPrincipalDN(username, a.rootDN)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("authentication_attempt",
		slog.String("username_masked", maskSensitiveData(username)),
		slog.String("principal_masked", maskSensitiveData(principal)),
		slog.Bool("credential_present", true))

	source := NewScopedSource(a.factory, principal, cred)
	executor := NewSearchExecutor(source, a.logger, WithSearchMetrics(a.metrics))

	entry, err := executor.SearchForSingleEntry(ctx, SearchRequest{
		Base:   a.search.Base,
		Filter: a.search.Filter,
		Params: []string{username},
		Options: SearchOptions{
			Scope:      ScopeFor(a.search.Subtree),
			Attributes: a.search.Attributes,
		},
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrEntryNotFound) {
			a.logger.Info("authentication_failed",
				slog.String("username_masked", maskSensitiveData(username)),
				slog.String("reason", failureReason(err)),
				slog.Duration("duration", time.Since(start)))
			return nil, a.badCredentials(err)
		}

		a.logger.Error("authentication_service_failed",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, NewServiceError("authenticate", "directory lookup failed", err)
	}

	principalRecord := NewVerifiedPrincipal(entry, username, principal)
	attrs := []slog.Attr{
		slog.String("username_masked", maskSensitiveData(username)),
		slog.Bool("account_enabled", principalRecord.Enabled()),
	}
	if accountType, ok := principalRecord.AccountType(); ok {
		attrs = append(attrs, slog.String("account_type", accountType.String()))
	}
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	a.logger.LogAttrs(ctx, slog.LevelInfo, "authentication_succeeded", attrs...)

	return NewVerification(principalRecord, cred), nil
}

func (a *BindAuthenticator) badCredentials(cause error) error {
	return NewBadCredentialsError(a.messages.Message(MsgBadCredentials, "Bad credentials"), cause)
}

// failureReason is for server-side logs only.
func failureReason(err error) string {
	if errors.Is(err, ErrEntryNotFound) {
		return "entry_not_found"
	}
	return "bind_rejected"
}
