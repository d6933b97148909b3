package adbind

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-playground/validator/v10"
)

// Config holds the settings of a Provider. It is read once at startup and
// treated as immutable afterwards.
type Config struct {
	// Server is the directory URL, e.g. "ldaps://dc1.example.com:636".
	Server string `mapstructure:"server" yaml:"server" validate:"required,url"`

	// RootDN is the root naming context, e.g. "DC=example,DC=com". Its
	// components also form the domain part of principal names.
	RootDN string `mapstructure:"root_dn" yaml:"root_dn" validate:"required"`

	// DialTimeout bounds connecting and each request. Zero disables it.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gte=0"`

	// Language selects the message catalog, as a BCP 47 tag.
	Language string `mapstructure:"language" yaml:"language" validate:"omitempty,bcp47_language_tag"`

	UserSearch UserSearch `mapstructure:"user_search" yaml:"user_search"`

	// GroupSearch enables role resolution from group membership. Nil disables it.
	GroupSearch *GroupSearch `mapstructure:"group_search" yaml:"group_search,omitempty"`

	// DefaultRole is granted to every authenticated user when non-empty.
	DefaultRole string `mapstructure:"default_role" yaml:"default_role,omitempty"`

	// Remap replaces the verified identity with a secondary store record. Nil disables it.
	Remap *RemapConfig `mapstructure:"remap" yaml:"remap,omitempty"`

	// AttemptLimit locks usernames out after repeated failures. Nil disables it.
	AttemptLimit *AttemptLimitConfig `mapstructure:"attempt_limit" yaml:"attempt_limit,omitempty"`
}

// UserSearch locates the user entry after the bind.
type UserSearch struct {
	// Base is the search base. The empty base searches from the root DN.
	Base string `mapstructure:"base" yaml:"base"`
	// Filter has {0} replaced by the username. Defaults to DefaultUserSearchFilter.
	Filter string `mapstructure:"filter" yaml:"filter"`
	// Subtree searches the whole subtree instead of one level.
	Subtree bool `mapstructure:"subtree" yaml:"subtree"`
	// Attributes to read. Empty reads all user attributes.
	Attributes []string `mapstructure:"attributes" yaml:"attributes,omitempty"`
}

// DefaultUserSearch returns the user search defaults.
func DefaultUserSearch() UserSearch {
	return UserSearch{Filter: DefaultUserSearchFilter, Subtree: true}
}

func (u *UserSearch) applyDefaults() {
	if u.Filter == "" {
		u.Filter = DefaultUserSearchFilter
	}
}

// GroupSearch configures role resolution.
type GroupSearch struct {
	// Base is the search base. The empty base searches from the root DN.
	Base string `mapstructure:"base" yaml:"base"`
	// Filter has {0} replaced by the user's DN. Defaults to DefaultGroupSearchFilter.
	Filter string `mapstructure:"filter" yaml:"filter"`
	// RoleAttribute holds role names on group entries. Defaults to DefaultGroupRoleAttribute.
	RoleAttribute string `mapstructure:"role_attribute" yaml:"role_attribute"`
	// SearchSubtree searches the whole subtree instead of one level.
	SearchSubtree bool `mapstructure:"search_subtree" yaml:"search_subtree"`
	// RolePrefix is prepended to every role. It may be empty.
	RolePrefix string `mapstructure:"role_prefix" yaml:"role_prefix"`
	// ConvertToUpperCase upper-cases attribute values before prefixing.
	ConvertToUpperCase bool `mapstructure:"convert_to_upper_case" yaml:"convert_to_upper_case"`
}

// DefaultGroupSearch returns the group search defaults for base.
func DefaultGroupSearch(base string) *GroupSearch {
	return &GroupSearch{
		Base:               base,
		Filter:             DefaultGroupSearchFilter,
		RoleAttribute:      DefaultGroupRoleAttribute,
		SearchSubtree:      true,
		RolePrefix:         DefaultRolePrefix,
		ConvertToUpperCase: true,
	}
}

func (g *GroupSearch) applyDefaults() {
	if g.Filter == "" {
		g.Filter = DefaultGroupSearchFilter
	}
	if g.RoleAttribute == "" {
		g.RoleAttribute = DefaultGroupRoleAttribute
	}
}

// RemapConfig selects the identity remapping strategy.
type RemapConfig struct {
	Strategy MappingKind `mapstructure:"strategy" yaml:"strategy" validate:"required"`
	// Value is used by the fixed_value strategy.
	Value string `mapstructure:"value" yaml:"value,omitempty"`
	// Prefix is used by the authority_prefix strategy.
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	// Uppercase applies to same_username and requested_name.
	Uppercase bool `mapstructure:"uppercase" yaml:"uppercase"`
	// KeepDirectoryRoles merges the directory roles into the secondary identity.
	KeepDirectoryRoles bool `mapstructure:"keep_directory_roles" yaml:"keep_directory_roles"`
}

// Mapping returns the AccountMapping described by r.
func (r *RemapConfig) Mapping() AccountMapping {
	return AccountMapping{
		Kind:      r.Strategy,
		Value:     r.Value,
		Prefix:    r.Prefix,
		Uppercase: r.Uppercase,
	}
}

// DefaultConfig returns a configuration for server and rootDN with group
// search disabled.
func DefaultConfig(server, rootDN string) *Config {
	return &Config{
		Server:      server,
		RootDN:      rootDN,
		DialTimeout: 10 * time.Second,
		Language:    "en",
		UserSearch:  DefaultUserSearch(),
	}
}

// ApplyDefaults fills unset filters and attribute names.
func (c *Config) ApplyDefaults() {
	c.UserSearch.applyDefaults()
	if c.GroupSearch != nil {
		c.GroupSearch.applyDefaults()
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks c and returns a *ConfigError describing the first problem.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
				Err:     err,
			}
		}
		return &ConfigError{Message: "invalid configuration", Err: err}
	}

	if err := validateServerURL(c.Server); err != nil {
		return &ConfigError{Field: "Server", Message: "invalid directory URL", Err: err}
	}
	if _, err := DomainFromRootDN(c.RootDN); err != nil {
		return err
	}
	if err := validateDN(c.UserSearch.Base); err != nil {
		return &ConfigError{Field: "UserSearch.Base", Message: "invalid DN", Err: err}
	}
	if c.GroupSearch != nil {
		if err := validateDN(c.GroupSearch.Base); err != nil {
			return &ConfigError{Field: "GroupSearch.Base", Message: "invalid DN", Err: err}
		}
	}

	if c.UserSearch.Filter != "" {
		if _, err := FormatFilter(c.UserSearch.Filter, "probe"); err != nil {
			return &ConfigError{Field: "UserSearch.Filter", Message: "invalid filter", Err: err}
		}
	}
	if c.GroupSearch != nil && c.GroupSearch.Filter != "" {
		if _, err := FormatFilter(c.GroupSearch.Filter, "probe"); err != nil {
			return &ConfigError{Field: "GroupSearch.Filter", Message: "invalid filter", Err: err}
		}
	}

	if c.Remap != nil {
		if err := c.Remap.Mapping().Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateServerURL(server string) error {
	u, err := url.Parse(server)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "ldap", "ldaps", "ldapi":
	default:
		return fmt.Errorf("unsupported scheme %q: must be ldap, ldaps or ldapi", u.Scheme)
	}
	return nil
}

// searchBase returns base, or rootDN when base is empty. Active Directory
// only serves subtree searches from the root DSE on a Global Catalog.
func searchBase(base, rootDN string) string {
	if base == "" {
		return rootDN
	}
	return base
}

// validateDN accepts the empty DN, which stands for the root DN.
func validateDN(dn string) error {
	if dn == "" {
		return nil
	}
	_, err := ldap.ParseDN(dn)
	return err
}
