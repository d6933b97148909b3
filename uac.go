package adbind

import (
	"strconv"
	"strings"
)

// AccountControl is the userAccountControl bit field of an Active Directory account.
// https://learn.microsoft.com/en-us/windows/win32/adschema/a-useraccountcontrol
type AccountControl uint32

const (
	UACAccountDisable       AccountControl = 0x2
	UACLockout              AccountControl = 0x10
	UACPasswordNotRequired  AccountControl = 0x20
	UACNormalAccount        AccountControl = 0x200
	UACDontExpirePassword   AccountControl = 0x10000
	UACSmartcardRequired    AccountControl = 0x40000
	UACPasswordExpired      AccountControl = 0x800000
	UACWorkstationTrust     AccountControl = 0x1000
	UACServerTrust          AccountControl = 0x2000
	UACInterdomainTrust     AccountControl = 0x800
	UACTrustedForDelegation AccountControl = 0x80000
)

var accountControlNames = []struct {
	flag AccountControl
	name string
}{
	{UACAccountDisable, "ACCOUNTDISABLE"},
	{UACLockout, "LOCKOUT"},
	{UACPasswordNotRequired, "PASSWD_NOTREQD"},
	{UACInterdomainTrust, "INTERDOMAIN_TRUST_ACCOUNT"},
	{UACNormalAccount, "NORMAL_ACCOUNT"},
	{UACWorkstationTrust, "WORKSTATION_TRUST_ACCOUNT"},
	{UACServerTrust, "SERVER_TRUST_ACCOUNT"},
	{UACDontExpirePassword, "DONT_EXPIRE_PASSWORD"},
	{UACSmartcardRequired, "SMARTCARD_REQUIRED"},
	{UACTrustedForDelegation, "TRUSTED_FOR_DELEGATION"},
	{UACPasswordExpired, "PASSWORD_EXPIRED"},
}

// ParseAccountControl parses the decimal attribute value.
func ParseAccountControl(v string) (AccountControl, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, err
	}
	return AccountControl(n), nil
}

// Has reports whether all bits of flag are set.
func (a AccountControl) Has(flag AccountControl) bool {
	return a&flag == flag
}

func (a AccountControl) Disabled() bool        { return a.Has(UACAccountDisable) }
func (a AccountControl) LockedOut() bool       { return a.Has(UACLockout) }
func (a AccountControl) PasswordExpired() bool { return a.Has(UACPasswordExpired) }

// String lists the known flags joined by "|".
func (a AccountControl) String() string {
	var names []string
	for _, f := range accountControlNames {
		if a.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return strconv.FormatUint(uint64(a), 10)
	}
	return strings.Join(names, "|")
}
