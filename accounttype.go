package adbind

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountType is the sAMAccountType of an Active Directory object.
//
// Reference: https://learn.microsoft.com/en-us/windows/win32/adschema/a-samaccounttype
type AccountType uint32

const (
	AccountTypeDomainObject           AccountType = 0x0
	AccountTypeGroupObject            AccountType = 0x10000000
	AccountTypeNonSecurityGroupObject AccountType = 0x10000001
	AccountTypeAliasObject            AccountType = 0x20000000
	AccountTypeNonSecurityAliasObject AccountType = 0x20000001
	// AccountTypeUser is SAM_NORMAL_USER_ACCOUNT, the type of every person account.
	AccountTypeUser           AccountType = 0x30000000
	AccountTypeMachine        AccountType = 0x30000001
	AccountTypeTrust          AccountType = 0x30000002
	AccountTypeAppBasicGroup  AccountType = 0x40000000
	AccountTypeAppQueryGroup  AccountType = 0x40000001
)

var accountTypeNames = map[AccountType]string{
	AccountTypeDomainObject:           "domain_object",
	AccountTypeGroupObject:            "group",
	AccountTypeNonSecurityGroupObject: "non_security_group",
	AccountTypeAliasObject:            "alias",
	AccountTypeNonSecurityAliasObject: "non_security_alias",
	AccountTypeUser:                   "user",
	AccountTypeMachine:                "machine",
	AccountTypeTrust:                  "trust",
	AccountTypeAppBasicGroup:          "app_basic_group",
	AccountTypeAppQueryGroup:          "app_query_group",
}

// ParseAccountType parses the decimal attribute value.
func ParseAccountType(v string) (AccountType, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, err
	}
	return AccountType(n), nil
}

func (t AccountType) String() string {
	if name, ok := accountTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AccountType(%#x)", uint32(t))
}

// IsGroup reports whether t is one of the group or alias types.
func (t AccountType) IsGroup() bool {
	switch t {
	case AccountTypeGroupObject, AccountTypeNonSecurityGroupObject,
		AccountTypeAliasObject, AccountTypeNonSecurityAliasObject,
		AccountTypeAppBasicGroup, AccountTypeAppQueryGroup:
		return true
	}
	return false
}

// AccountType decodes sAMAccountType. ok is false when the attribute is
// missing or malformed, which is the case on directories other than
// Active Directory.
func (p *VerifiedPrincipal) AccountType() (t AccountType, ok bool) {
	raw := p.AttributeValue("sAMAccountType")
	if raw == "" {
		return 0, false
	}
	t, err := ParseAccountType(raw)
	if err != nil {
		return 0, false
	}
	return t, true
}
