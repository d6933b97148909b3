package adbind

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MappingKind selects how a verified identity is turned into a secondary store key.
type MappingKind int

const (
	// MapFixedValue always yields the configured value.
	MapFixedValue MappingKind = iota + 1
	// MapSameUsername yields the verified username.
	MapSameUsername
	// MapAuthorityPrefix yields the first granted role carrying a prefix.
	MapAuthorityPrefix
	// MapRequestedName yields the name originally presented by the client.
	MapRequestedName
)

var mappingKindNames = map[MappingKind]string{
	MapFixedValue:      "fixed_value",
	MapSameUsername:    "same_username",
	MapAuthorityPrefix: "authority_prefix",
	MapRequestedName:   "requested_name",
}

func (k MappingKind) String() string {
	if name, ok := mappingKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MappingKind(%d)", int(k))
}

// MarshalText encodes k by name.
func (k MappingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a strategy name.
func (k *MappingKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMappingKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseMappingKind parses the names returned by MappingKind.String.
func ParseMappingKind(s string) (MappingKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for k, name := range mappingKindNames {
		if name == normalized {
			return k, nil
		}
	}
	return 0, &ConfigError{Field: "Remap.Strategy", Message: fmt.Sprintf("unknown mapping strategy %q", s)}
}

// AccountMapping is one configured mapping strategy.
type AccountMapping struct {
	Kind MappingKind
	// Value is the constant returned by MapFixedValue.
	Value string
	// Prefix is the role prefix searched by MapAuthorityPrefix.
	Prefix string
	// Uppercase folds the result of MapSameUsername and MapRequestedName.
	Uppercase bool
}

// FixedValue maps every identity to value.
func FixedValue(value string) AccountMapping {
	return AccountMapping{Kind: MapFixedValue, Value: value}
}

// SameUsername maps an identity to its verified username.
func SameUsername(uppercase bool) AccountMapping {
	return AccountMapping{Kind: MapSameUsername, Uppercase: uppercase}
}

// AuthorityByPrefix maps an identity to its first role starting with prefix.
func AuthorityByPrefix(prefix string) AccountMapping {
	return AccountMapping{Kind: MapAuthorityPrefix, Prefix: prefix}
}

// RequestedName maps an identity to the name presented by the client.
func RequestedName(uppercase bool) AccountMapping {
	return AccountMapping{Kind: MapRequestedName, Uppercase: uppercase}
}

// Validate reports a *ConfigError when required settings are missing.
func (m AccountMapping) Validate() error {
	switch m.Kind {
	case MapFixedValue:
		if m.Value == "" {
			return NewConfigError("Remap.Value", "fixed value mapping requires a value")
		}
	case MapAuthorityPrefix:
		if m.Prefix == "" {
			return NewConfigError("Remap.Prefix", "authority prefix mapping requires a prefix")
		}
	case MapSameUsername, MapRequestedName:
	default:
		return NewConfigError("Remap.Strategy", fmt.Sprintf("unsupported mapping strategy %s", m.Kind))
	}
	return nil
}

// MappingSubject is the input of a mapping.
type MappingSubject struct {
	// Username is the verified username.
	Username string
	// Roles are the roles granted after verification.
	Roles RoleSet
	// RequestedName is the name presented before verification.
	RequestedName string
}

// Map returns the secondary store key for subject. It fails with
// ErrMappingNotFound when the selected input is empty or no role matches.
//
// MapAuthorityPrefix walks the roles in lexicographic order, so with several
// matching roles the smallest one wins.
func (m AccountMapping) Map(subject MappingSubject) (string, error) {
	switch m.Kind {
	case MapFixedValue:
		return m.Value, nil

	case MapSameUsername:
		if subject.Username == "" {
			return "", fmt.Errorf("%w: no username", ErrMappingNotFound)
		}
		return m.fold(subject.Username), nil

	case MapAuthorityPrefix:
		for _, role := range subject.Roles.Slice() {
			if strings.HasPrefix(string(role), m.Prefix) {
				return string(role), nil
			}
		}
		return "", fmt.Errorf("%w: no role with prefix %q", ErrMappingNotFound, m.Prefix)

	case MapRequestedName:
		if subject.RequestedName == "" {
			return "", fmt.Errorf("%w: no requested name", ErrMappingNotFound)
		}
		return m.fold(subject.RequestedName), nil

	default:
		return "", m.Validate()
	}
}

func (m AccountMapping) fold(s string) string {
	if !m.Uppercase {
		return s
	}
	return cases.Upper(language.Und).String(s)
}
