package adbind

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SecondaryIdentity is an account record of the secondary user store.
type SecondaryIdentity struct {
	Username string
	// PasswordHash is a bcrypt hash, or empty when the store holds no password.
	PasswordHash string
	Enabled      bool
	Roles        RoleSet
	Attributes   map[string][]string
}

// CheckPassword reports whether password matches PasswordHash.
func (s *SecondaryIdentity) CheckPassword(password string) bool {
	if s.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)) == nil
}

// UserDetailsService loads secondary identities by key. Implementations must
// return an error matching ErrUserNotFound for unknown keys and must never
// return a nil identity without an error.
type UserDetailsService interface {
	LoadUserByUsername(ctx context.Context, key string) (*SecondaryIdentity, error)
}

// UserDetailsServiceFunc adapts a function to UserDetailsService.
type UserDetailsServiceFunc func(ctx context.Context, key string) (*SecondaryIdentity, error)

func (f UserDetailsServiceFunc) LoadUserByUsername(ctx context.Context, key string) (*SecondaryIdentity, error) {
	return f(ctx, key)
}

// IdentityRemapper replaces a verified identity with the secondary store
// record addressed by an AccountMapping.
type IdentityRemapper struct {
	store              UserDetailsService
	mapping            AccountMapping
	keepDirectoryRoles bool
	logger             *slog.Logger
	metrics            *Metrics
}

// NewIdentityRemapper returns a remapper. It fails with a *ConfigError when
// store is nil or mapping is incomplete.
func NewIdentityRemapper(store UserDetailsService, mapping AccountMapping, keepDirectoryRoles bool, opts ...Option) (*IdentityRemapper, error) {
	if store == nil {
		return nil, NewConfigError("Remap.Store", "secondary user store must not be nil")
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &IdentityRemapper{
		store:              store,
		mapping:            mapping,
		keepDirectoryRoles: keepDirectoryRoles,
		logger:             o.logger.With(slog.String("component", "identity_remapper")),
		metrics:            o.metrics,
	}, nil
}

// Remap maps subject to a key and loads the secondary identity for it.
//
// Mapping failures match ErrMappingNotFound. A store "not found" is returned
// unchanged. Any other store failure, and a nil record without error, yield a
// *ServiceError. Unless configured to keep directory roles, the returned
// identity fully replaces the verified one.
func (r *IdentityRemapper) Remap(ctx context.Context, subject MappingSubject) (*SecondaryIdentity, error) {
	start := time.Now()

	key, err := r.mapping.Map(subject)
	if err != nil {
		r.metrics.RecordRemap(ResultMappingFailed)
		r.logger.Info("identity_mapping_failed",
			slog.String("strategy", r.mapping.Kind.String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	identity, err := r.store.LoadUserByUsername(ctx, key)
	switch {
	case errors.Is(err, ErrUserNotFound):
		r.metrics.RecordRemap(ResultNotFound)
		r.logger.Info("secondary_identity_not_found",
			slog.String("key_masked", maskSensitiveData(key)),
			slog.Duration("duration", time.Since(start)))
		return nil, err
	case err != nil:
		r.metrics.RecordRemap(ResultServiceError)
		r.logger.Error("secondary_store_failed",
			slog.String("key_masked", maskSensitiveData(key)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, NewServiceError("remap", "secondary store lookup failed", err)
	case identity == nil:
		r.metrics.RecordRemap(ResultServiceError)
		r.logger.Error("secondary_store_contract_violation",
			slog.String("key_masked", maskSensitiveData(key)))
		return nil, NewServiceError("remap", "secondary store returned no record and no error", nil)
	}

	out := *identity
	out.Roles = identity.Roles.Clone()
	if r.keepDirectoryRoles {
		out.Roles.Union(subject.Roles)
	}

	r.metrics.RecordRemap(ResultSuccess)
	r.logger.Debug("identity_remapped",
		slog.String("strategy", r.mapping.Kind.String()),
		slog.String("key_masked", maskSensitiveData(key)),
		slog.Int("roles", len(out.Roles)),
		slog.Duration("duration", time.Since(start)))
	return &out, nil
}

// LoadPreAuthenticated maps a name asserted by a trusted upstream, such as a
// single sign-on front end, without any directory verification.
func (r *IdentityRemapper) LoadPreAuthenticated(ctx context.Context, requestedName string) (*SecondaryIdentity, error) {
	return r.Remap(ctx, MappingSubject{
		Username:      requestedName,
		Roles:         make(RoleSet),
		RequestedName: requestedName,
	})
}
