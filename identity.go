package adbind

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// VerifiedPrincipal is the directory record of a user whose credential the
// directory accepted. It is immutable.
type VerifiedPrincipal struct {
	dn            string
	username      string
	principalName string
	attributes    map[string][]string
}

// NewVerifiedPrincipal captures entry for username, who bound as principalName.
func NewVerifiedPrincipal(entry *ldap.Entry, username, principalName string) *VerifiedPrincipal {
	attrs := make(map[string][]string, len(entry.Attributes))
	for _, a := range entry.Attributes {
		key := strings.ToLower(a.Name)
		attrs[key] = append(attrs[key], a.Values...)
	}
	return &VerifiedPrincipal{
		dn:            entry.DN,
		username:      username,
		principalName: principalName,
		attributes:    attrs,
	}
}

// DN returns the distinguished name of the user entry.
func (p *VerifiedPrincipal) DN() string { return p.dn }

// Username returns the login name as it was presented.
func (p *VerifiedPrincipal) Username() string { return p.username }

// PrincipalName returns the user@domain name used to bind.
func (p *VerifiedPrincipal) PrincipalName() string { return p.principalName }

// AccountName returns the sAMAccountName stored in the directory, falling
// back to the presented username.
func (p *VerifiedPrincipal) AccountName() string {
	if v := p.AttributeValue("sAMAccountName"); v != "" {
		return v
	}
	return p.username
}

// Attribute returns a copy of all values of name. Names are case-insensitive.
func (p *VerifiedPrincipal) Attribute(name string) []string {
	values := p.attributes[strings.ToLower(name)]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// AttributeValue returns the first value of name, or "".
func (p *VerifiedPrincipal) AttributeValue(name string) string {
	values := p.attributes[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// AttributeNames returns the lower-cased attribute names in sorted order.
func (p *VerifiedPrincipal) AttributeNames() []string {
	names := make([]string, 0, len(p.attributes))
	for name := range p.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AccountControl decodes userAccountControl. ok is false when the attribute
// is missing or malformed.
func (p *VerifiedPrincipal) AccountControl() (uac AccountControl, ok bool) {
	raw := p.AttributeValue("userAccountControl")
	if raw == "" {
		return 0, false
	}
	uac, err := ParseAccountControl(raw)
	if err != nil {
		return 0, false
	}
	return uac, true
}

// Enabled reports whether the account is not flagged as disabled. Accounts
// without a readable userAccountControl are reported enabled.
func (p *VerifiedPrincipal) Enabled() bool {
	uac, ok := p.AccountControl()
	return !ok || !uac.Disabled()
}

// Verification is the request-scoped result of a successful bind. It carries
// the verified principal together with the credential that verified it, so
// role resolution can bind again as the same user.
//
// A Verification must not outlive the request. Release wipes the credential.
type Verification struct {
	Principal *VerifiedPrincipal

	mu   sync.Mutex
	cred *Credential
}

// NewVerification pairs p with the credential that verified it.
func NewVerification(p *VerifiedPrincipal, cred *Credential) *Verification {
	return &Verification{Principal: p, cred: cred}
}

// Credential returns the attached credential. ok is false once released or
// when none was attached.
func (v *Verification) Credential() (cred *Credential, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cred.IsZero() {
		return nil, false
	}
	return v.cred, true
}

// Release zeroizes and detaches the credential.
func (v *Verification) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cred.Zeroize()
	v.cred = nil
}
