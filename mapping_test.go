package adbind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountMappingMap(t *testing.T) {
	subject := MappingSubject{
		Username:      "jdoe",
		Roles:         NewRoleSet("ROLE_USER", "prefix2_b", "prefix1_a", "prefix1_b"),
		RequestedName: "JDoe@Example.com",
	}

	tests := []struct {
		name    string
		mapping AccountMapping
		subject MappingSubject
		want    string
		wantErr bool
	}{
		{"fixed value", FixedValue("rod,ok"), subject, "rod,ok", false},
		{"fixed value ignores subject", FixedValue("rod,ok"), MappingSubject{}, "rod,ok", false},
		{"same username", SameUsername(false), subject, "jdoe", false},
		{"same username upper", SameUsername(true), subject, "JDOE", false},
		{"same username missing", SameUsername(false), MappingSubject{RequestedName: "x"}, "", true},
		{"first role with prefix", AuthorityByPrefix("prefix1_"), subject, "prefix1_a", false},
		{"other prefix", AuthorityByPrefix("prefix2_"), subject, "prefix2_b", false},
		{"prefix without match", AuthorityByPrefix("nomatch"), subject, "", true},
		{"prefix with no roles", AuthorityByPrefix("ROLE_"), MappingSubject{Username: "jdoe"}, "", true},
		{"requested name", RequestedName(false), subject, "JDoe@Example.com", false},
		{"requested name upper", RequestedName(true), subject, "JDOE@EXAMPLE.COM", false},
		{"requested name missing", RequestedName(false), MappingSubject{Username: "jdoe"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.mapping.Map(tt.subject)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMappingNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mapping AccountMapping
		field   string
	}{
		{"fixed value", FixedValue("svc"), ""},
		{"empty fixed value", FixedValue(""), "Remap.Value"},
		{"prefix", AuthorityByPrefix("APP_"), ""},
		{"empty prefix", AuthorityByPrefix(""), "Remap.Prefix"},
		{"same username", SameUsername(true), ""},
		{"requested name", RequestedName(false), ""},
		{"zero kind", AccountMapping{}, "Remap.Strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseMappingKind(t *testing.T) {
	tests := []struct {
		in      string
		want    MappingKind
		wantErr bool
	}{
		{"fixed_value", MapFixedValue, false},
		{"same_username", MapSameUsername, false},
		{"Authority-Prefix", MapAuthorityPrefix, false},
		{" requested_name ", MapRequestedName, false},
		{"bogus", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMappingKind(tt.in)
			if tt.wantErr {
				var cfgErr *ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}

	assert.Equal(t, "MappingKind(9)", MappingKind(9).String())
}

func mustParse(t *testing.T, s string) MappingKind {
	t.Helper()
	k, err := ParseMappingKind(s)
	require.NoError(t, err)
	return k
}
