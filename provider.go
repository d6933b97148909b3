package adbind

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Authentication is the outcome of a successful login.
type Authentication struct {
	// AttemptID correlates log lines of one attempt.
	AttemptID string
	// Principal is the directory record the credential was verified against.
	// After a remap it is the pre-remap record, kept for auditing only: the
	// effective identity is Username, Roles, Enabled and Attribute.
	Principal *VerifiedPrincipal
	// Username is the effective account name: the secondary identity's when
	// remapped, otherwise the directory's sAMAccountName.
	Username string
	// Roles are the effective granted roles.
	Roles RoleSet
	// Enabled reflects the secondary identity when remapped, otherwise the
	// directory account state.
	Enabled bool
	// Secondary is the secondary store record, nil unless remapped.
	Secondary *SecondaryIdentity
}

// Remapped reports whether a secondary identity replaced the directory one.
func (a *Authentication) Remapped() bool {
	return a.Secondary != nil
}

// Attribute returns the values of name from the effective identity: the
// secondary record when remapped, otherwise the directory entry. Names are
// case-insensitive.
func (a *Authentication) Attribute(name string) []string {
	if a.Secondary == nil {
		if a.Principal == nil {
			return nil
		}
		return a.Principal.Attribute(name)
	}
	for key, values := range a.Secondary.Attributes {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return append([]string(nil), values...)
		}
	}
	return nil
}

// Provider authenticates users against Active Directory, resolves their roles
// and optionally remaps them onto a secondary user store.
type Provider struct {
	authenticator *BindAuthenticator
	roles         *RoleResolver
	remapper      *IdentityRemapper
	limiter       *AttemptLimiter
	messages      *MessageProvider
	logger        *slog.Logger
	metrics       *Metrics
}

// NewProvider builds a Provider for cfg that dials cfg.Server. store is only
// required when cfg.Remap is set.
func NewProvider(cfg *Config, store UserDetailsService, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, NewConfigError("", "config must not be nil")
	}
	o := applyOptions(opts)

	dialer := o.dialer
	if dialer == nil {
		dialer = NewDialer(cfg.DialTimeout, o.dialOpts...)
	}
	factory := NewDirectoryFactory(cfg.Server, dialer, o.logger)
	return NewProviderWithFactory(cfg, factory, store, opts...)
}

// NewProviderWithFactory builds a Provider binding through factory.
func NewProviderWithFactory(cfg *Config, factory ConnectionFactory, store UserDetailsService, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, NewConfigError("", "config must not be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	if o.messages == nil && cfg.Language != "" {
		tag, err := language.Parse(cfg.Language)
		if err != nil {
			return nil, &ConfigError{Field: "Language", Message: "invalid language tag", Err: err}
		}
		opts = append(opts, WithMessages(NewMessageProvider(tag)))
		o = applyOptions(opts)
	}

	authenticator, err := NewBindAuthenticator(factory, cfg.RootDN, cfg.UserSearch, opts...)
	if err != nil {
		return nil, err
	}
	roles, err := NewRoleResolver(factory, cfg.RootDN, cfg.GroupSearch, cfg.DefaultRole, opts...)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		authenticator: authenticator,
		roles:         roles,
		limiter:       o.limiter,
		messages:      o.messageProvider(),
		logger:        o.logger.With(slog.String("component", "provider")),
		metrics:       o.metrics,
	}

	if cfg.Remap != nil {
		p.remapper, err = NewIdentityRemapper(store, cfg.Remap.Mapping(), cfg.Remap.KeepDirectoryRoles, opts...)
		if err != nil {
			return nil, err
		}
	}
	if p.limiter == nil && cfg.AttemptLimit != nil {
		p.limiter = NewAttemptLimiter(*cfg.AttemptLimit, opts...)
	}

	return p, nil
}

// Remapper returns the identity remapper, or nil when remapping is disabled.
func (p *Provider) Remapper() *IdentityRemapper {
	return p.remapper
}

// Authenticate verifies username and password, resolves roles and applies the
// configured remapping. The password is wiped from memory before returning.
//
// Failures match ErrBadCredentials, ErrMappingNotFound, ErrUserNotFound or
// ErrAuthenticationService, or are a *ConfigError.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (auth *Authentication, err error) {
	start := time.Now()
	attemptID := uuid.NewString()
	logger := p.logger.With(slog.String("attempt_id", attemptID))

	defer func() {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.UserMessage == "" {
			svcErr.UserMessage = p.messages.Message(MsgServiceFailure, "Authentication service unavailable")
		}
		result := ResultOf(err)
		p.metrics.RecordAttempt(result, time.Since(start))
		logger.Info("authentication_completed",
			slog.String("result", result),
			slog.Duration("duration", time.Since(start)))
	}()

	if p.limiter != nil {
		if limitErr := p.limiter.Check(username); limitErr != nil {
			return nil, &BadCredentialsError{
				Message: p.messages.Message(MsgAttemptsLimited, "Too many failed attempts, try again later"),
				Reason:  ErrAttemptLimited,
				cause:   limitErr,
			}
		}
	}

	cred := NewCredential(password)
	verification, err := p.authenticator.Authenticate(ctx, username, cred)
	if err != nil {
		cred.Zeroize()
		if p.limiter != nil && errors.Is(err, ErrBadCredentials) {
			p.limiter.RecordFailure(username)
		}
		return nil, err
	}
	defer verification.Release()

	if p.limiter != nil {
		p.limiter.RecordSuccess(username)
	}

	roles, err := p.roles.GrantedAuthorities(ctx, verification, username)
	if err != nil {
		return nil, err
	}

	principal := verification.Principal
	auth = &Authentication{
		AttemptID: attemptID,
		Principal: principal,
		Username:  principal.AccountName(),
		Roles:     roles,
		Enabled:   principal.Enabled(),
	}

	if p.remapper != nil {
		secondary, err := p.remapper.Remap(ctx, MappingSubject{
			Username:      principal.AccountName(),
			Roles:         roles,
			RequestedName: username,
		})
		if err != nil {
			return nil, err
		}
		auth.Username = secondary.Username
		auth.Roles = secondary.Roles
		auth.Enabled = secondary.Enabled
		auth.Secondary = secondary
	}

	logger.Debug("authentication_granted",
		slog.String("username_masked", maskSensitiveData(auth.Username)),
		slog.Int("roles", len(auth.Roles)),
		slog.Bool("remapped", auth.Secondary != nil))
	return auth, nil
}
