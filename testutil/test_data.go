package testutil

// Fixture constants of NewADFixture.
const (
	FixtureDomain = "example.com"
	FixtureRootDN = "DC=example,DC=com"
	UsersOU       = "OU=Users,DC=example,DC=com"
	GroupsOU      = "OU=Groups,DC=example,DC=com"

	JDoeDN       = "CN=John Doe,OU=Users,DC=example,DC=com"
	JDoePassword = "Passw0rd!"

	ASmithDN       = "CN=Smith\\, Alice,OU=Users,DC=example,DC=com"
	ASmithPassword = "Secr3t#"

	DisabledDN       = "CN=Old Account,OU=Users,DC=example,DC=com"
	DisabledPassword = "Disabled1"

	SpecialDN       = "CN=Star User,OU=Users,DC=example,DC=com"
	SpecialName     = "star*(user)"
	SpecialPassword = "Special1"
)

// NewADFixture returns a directory with a small organisation:
//
//   - jdoe is a member of "admin", "Admin" and "user".
//   - asmith, whose DN contains an escaped comma, is a member of "user" and "Ops".
//   - olduser is disabled.
//   - "star*(user)" carries filter metacharacters in its sAMAccountName.
//   - the group "nodesc" has no description attribute.
func NewADFixture() *MockDirectory {
	dir := NewMockDirectory(FixtureDomain)

	dir.AddUser(&MockUser{
		DN:             JDoeDN,
		CN:             "John Doe",
		SAMAccountName: "jdoe",
		Mail:           "jdoe@example.com",
		Password:       JDoePassword,
		Enabled:        true,
	})
	dir.AddUser(&MockUser{
		DN:             ASmithDN,
		CN:             "Smith, Alice",
		SAMAccountName: "asmith",
		Mail:           "asmith@example.com",
		Password:       ASmithPassword,
		Enabled:        true,
	})
	dir.AddUser(&MockUser{
		DN:             DisabledDN,
		CN:             "Old Account",
		SAMAccountName: "olduser",
		Password:       DisabledPassword,
		Enabled:        false,
	})
	dir.AddUser(&MockUser{
		DN:             SpecialDN,
		CN:             "Star User",
		SAMAccountName: SpecialName,
		Password:       SpecialPassword,
		Enabled:        true,
	})

	dir.AddGroup(&MockGroup{
		DN:         "CN=admin,OU=Groups,DC=example,DC=com",
		CN:         "admin",
		Members:    []string{JDoeDN},
		Attributes: map[string][]string{"description": {"Administrators", "Operators"}},
	})
	dir.AddGroup(&MockGroup{
		DN:      "CN=Admin,OU=Legacy,OU=Groups,DC=example,DC=com",
		CN:      "Admin",
		Members: []string{JDoeDN},
	})
	dir.AddGroup(&MockGroup{
		DN:         "CN=user,OU=Groups,DC=example,DC=com",
		CN:         "user",
		Members:    []string{JDoeDN, ASmithDN},
		Attributes: map[string][]string{"description": {"Operators"}},
	})
	dir.AddGroup(&MockGroup{
		DN:      "CN=Ops,OU=Groups,DC=example,DC=com",
		CN:      "Ops",
		Members: []string{ASmithDN},
	})
	dir.AddGroup(&MockGroup{
		DN:      "CN=nodesc,OU=Groups,DC=example,DC=com",
		CN:      "nodesc",
		Members: []string{JDoeDN},
	})

	return dir
}
