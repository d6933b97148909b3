package adbind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Defaults of the group search.
const (
	DefaultGroupSearchFilter  = "(member={0})"
	DefaultGroupRoleAttribute = "cn"
	DefaultRolePrefix         = "ROLE_"
)

// Role is a granted authority such as "ROLE_ADMIN".
type Role string

// RoleSet is a set of roles. Iteration through Slice is lexicographic.
type RoleSet map[Role]struct{}

// NewRoleSet returns a set holding roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s.Add(r)
	}
	return s
}

// Add inserts r.
func (s RoleSet) Add(r Role) {
	s[r] = struct{}{}
}

// Contains reports whether r is present.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Union adds every role of other to s.
func (s RoleSet) Union(other RoleSet) {
	for r := range other {
		s.Add(r)
	}
}

// Clone returns a copy of s.
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	out.Union(s)
	return out
}

// Slice returns the roles in lexicographic order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the roles as strings in lexicographic order.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, r := range s.Slice() {
		out = append(out, string(r))
	}
	return out
}

// AdditionalRolesFunc returns roles granted to a verified user beyond those
// derived from group membership.
type AdditionalRolesFunc func(ctx context.Context, principal *VerifiedPrincipal, username string) ([]Role, error)

// RoleResolver derives roles from the groups a user is a member of. It binds
// as the user with the credential that verified them, since Active Directory
// restricts who can read group membership.
type RoleResolver struct {
	factory     ConnectionFactory
	rootDN      string
	groupSearch *GroupSearch
	defaultRole Role
	additional  AdditionalRolesFunc
	logger      *slog.Logger
	metrics     *Metrics
}

// NewRoleResolver returns a resolver. A nil groupSearch disables the group
// search; additional roles and defaultRole still apply.
func NewRoleResolver(factory ConnectionFactory, rootDN string, groupSearch *GroupSearch, defaultRole string, opts ...Option) (*RoleResolver, error) {
	if factory == nil {
		return nil, NewConfigError("ConnectionFactory", "must not be nil")
	}
	if _, err := DomainFromRootDN(rootDN); err != nil {
		return nil, err
	}

	var gs *GroupSearch
	if groupSearch != nil {
		copied := *groupSearch
		copied.applyDefaults()
		copied.Base = searchBase(copied.Base, rootDN)
		if _, err := FormatFilter(copied.Filter, "probe"); err != nil {
			return nil, &ConfigError{Field: "GroupSearch.Filter", Message: "invalid filter", Err: err}
		}
		gs = &copied
	}

	o := applyOptions(opts)
	return &RoleResolver{
		factory:     factory,
		rootDN:      rootDN,
		groupSearch: gs,
		defaultRole: Role(defaultRole),
		additional:  o.additionalRoles,
		logger:      o.logger.With(slog.String("component", "role_resolver")),
		metrics:     o.metrics,
	}, nil
}

// GroupMembershipRoles searches the groups whose filter matches userDN while
// bound as username with cred, and turns every value of the role attribute
// into a role. Values are optionally upper-cased and then prefixed.
func (r *RoleResolver) GroupMembershipRoles(ctx context.Context, userDN, username string, cred *Credential) (RoleSet, error) {
	roles := make(RoleSet)
	gs := r.groupSearch
	if gs == nil {
		return roles, nil
	}
	if cred.IsZero() {
		return nil, &ConfigError{Field: "Credential", Message: "group search requires the verifying credential", Err: ErrMissingCredential}
	}

	start := time.Now()
	principal, err := BuildPrincipalDN(username, r.rootDN)
	if err != nil {
		return nil, err
	}

	source := NewScopedSource(r.factory, principal, cred)
	executor := NewSearchExecutor(source, r.logger,
		WithUnionScope(ScopeFor(gs.SearchSubtree)),
		WithSearchMetrics(r.metrics))

	values, err := executor.SearchForUnionOfAttribute(ctx, gs.Base, gs.Filter, []string{userDN}, gs.RoleAttribute)
	if err != nil {
		r.logger.Error("role_search_failed",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, NewServiceError("group membership", "role search failed", err)
	}

	var upper cases.Caser
	if gs.ConvertToUpperCase {
		upper = cases.Upper(language.Und)
	}
	for _, v := range values.Sorted() {
		if gs.ConvertToUpperCase {
			v = upper.String(v)
		}
		roles.Add(Role(gs.RolePrefix + v))
	}

	r.logger.Debug("role_search_completed",
		slog.String("username_masked", maskSensitiveData(username)),
		slog.Int("values", len(values)),
		slog.Int("roles", len(roles)),
		slog.Duration("duration", time.Since(start)))
	return roles, nil
}

// GrantedAuthorities returns the group membership roles of v, the additional
// roles hook result and the default role. It requires the credential attached
// to v by BindAuthenticator.
func (r *RoleResolver) GrantedAuthorities(ctx context.Context, v *Verification, username string) (RoleSet, error) {
	if v == nil || v.Principal == nil {
		return nil, NewConfigError("Verification", "must not be nil")
	}
	cred, ok := v.Credential()
	if !ok {
		return nil, &ConfigError{Field: "Verification", Message: "no credential attached", Err: ErrMissingCredential}
	}

	roles, err := r.GroupMembershipRoles(ctx, v.Principal.DN(), username, cred)
	if err != nil {
		return nil, err
	}

	if r.additional != nil {
		extra, err := r.additional(ctx, v.Principal, username)
		if err != nil {
			var svcErr *ServiceError
			if errors.As(err, &svcErr) {
				return nil, err
			}
			return nil, NewServiceError("additional roles", "hook failed", err)
		}
		for _, role := range extra {
			roles.Add(role)
		}
	}

	if r.defaultRole != "" {
		roles.Add(r.defaultRole)
	}

	r.metrics.RecordRoles(len(roles))
	return roles, nil
}

// String implements fmt.Stringer for logging.
func (s RoleSet) String() string {
	return fmt.Sprint(s.Strings())
}
