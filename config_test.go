package adbind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ldaps://dc1.example.com:636", "DC=example,DC=com")

	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, DefaultUserSearchFilter, cfg.UserSearch.Filter)
	assert.True(t, cfg.UserSearch.Subtree)
	assert.Nil(t, cfg.GroupSearch)
	assert.Nil(t, cfg.Remap)
	assert.Nil(t, cfg.AttemptLimit)
	require.NoError(t, cfg.Validate())
}

func TestDefaultGroupSearch(t *testing.T) {
	gs := DefaultGroupSearch("OU=Groups,DC=example,DC=com")
	assert.Equal(t, "OU=Groups,DC=example,DC=com", gs.Base)
	assert.Equal(t, DefaultGroupSearchFilter, gs.Filter)
	assert.Equal(t, DefaultGroupRoleAttribute, gs.RoleAttribute)
	assert.Equal(t, DefaultRolePrefix, gs.RolePrefix)
	assert.True(t, gs.SearchSubtree)
	assert.True(t, gs.ConvertToUpperCase)
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{
		Server:      "ldap://dc1.example.com",
		RootDN:      "DC=example,DC=com",
		GroupSearch: &GroupSearch{RolePrefix: ""},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultUserSearchFilter, cfg.UserSearch.Filter)
	assert.Equal(t, DefaultGroupSearchFilter, cfg.GroupSearch.Filter)
	assert.Equal(t, DefaultGroupRoleAttribute, cfg.GroupSearch.RoleAttribute)
	// An empty prefix is a valid choice and is kept.
	assert.Equal(t, "", cfg.GroupSearch.RolePrefix)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"valid with everything", func(c *Config) {
			c.GroupSearch = DefaultGroupSearch("")
			c.Remap = &RemapConfig{Strategy: MapAuthorityPrefix, Prefix: "APP_"}
			limits := DefaultAttemptLimitConfig()
			c.AttemptLimit = &limits
		}, ""},
		{"root DN with a malformed component", func(c *Config) { c.RootDN = "DC=example,junk,DC=com" }, ""},
		{"server not a URL", func(c *Config) { c.Server = "dc1 example com" }, "Config.Server"},
		{"server not ldap", func(c *Config) { c.Server = "http://dc1.example.com" }, "Server"},
		{"user base not a DN", func(c *Config) { c.UserSearch.Base = "Users" }, "UserSearch.Base"},
		{"group base not a DN", func(c *Config) { c.GroupSearch = DefaultGroupSearch("Groups") }, "GroupSearch.Base"},
		{"negative timeout", func(c *Config) { c.DialTimeout = -time.Second }, "Config.DialTimeout"},
		{"bad language", func(c *Config) { c.Language = "not a tag" }, "Config.Language"},
		{"bad user filter", func(c *Config) { c.UserSearch.Filter = "(cn={0}" }, "UserSearch.Filter"},
		{"bad group filter", func(c *Config) {
			c.GroupSearch = &GroupSearch{Filter: "(member={x})"}
		}, "GroupSearch.Filter"},
		{"remap without strategy", func(c *Config) { c.Remap = &RemapConfig{} }, "Config.Remap.Strategy"},
		{"remap prefix missing", func(c *Config) {
			c.Remap = &RemapConfig{Strategy: MapAuthorityPrefix}
		}, "Remap.Prefix"},
		{"attempt limit without failures", func(c *Config) {
			c.AttemptLimit = &AttemptLimitConfig{Window: time.Minute, Lockout: time.Minute}
		}, "Config.AttemptLimit.MaxFailures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("ldap://dc1.example.com:389", "DC=example,DC=com")
			tt.mutate(cfg)

			err := cfg.Validate()
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

func TestRemapConfigMapping(t *testing.T) {
	r := &RemapConfig{Strategy: MapSameUsername, Uppercase: true, KeepDirectoryRoles: true}
	assert.Equal(t, SameUsername(true), r.Mapping())
}
