package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// Active Directory returns these diagnostics with result code 49.
const (
	diagBadPassword = "80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 52e, v4563"
	diagDisabled    = "80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 533, v4563"
)

// MockUser is a user account of the mock directory.
type MockUser struct {
	DN             string
	CN             string
	SAMAccountName string
	Mail           string
	Password       string
	Enabled        bool
	// Attributes are returned in addition to the standard ones.
	Attributes map[string][]string
}

// MockGroup is a group of the mock directory.
type MockGroup struct {
	DN      string
	CN      string
	Members []string
	// Attributes are returned in addition to the standard ones. An empty
	// slice removes a standard attribute.
	Attributes map[string][]string
}

// BindCall records a bind operation.
type BindCall struct {
	Username string
	Password string
	Error    error
}

// SearchCall records a search operation.
type SearchCall struct {
	BoundAs string
	Request *ldap.SearchRequest
	Result  *ldap.SearchResult
	Error   error
}

// MockDirectory is an in-memory Active Directory. Users bind with their DN,
// their sAMAccountName or their user principal name. Searches evaluate the
// compiled filter against the stored entries.
type MockDirectory struct {
	mu sync.Mutex

	// Domain is the DNS domain of user principal names.
	Domain string
	Users  map[string]*MockUser
	Groups map[string]*MockGroup

	// BindFunc, when set, replaces the built-in bind check.
	BindFunc func(username, password string) error
	// SearchFunc, when set, replaces the built-in search.
	SearchFunc func(boundAs string, req *ldap.SearchRequest) (*ldap.SearchResult, error)
	// DialError, when set, fails every dial.
	DialError error
	// RequireBindForSearch rejects searches on unbound connections.
	RequireBindForSearch bool

	BindCalls   []BindCall
	SearchCalls []SearchCall
	Dials       int
	Closes      int
}

// NewMockDirectory returns an empty directory for domain.
func NewMockDirectory(domain string) *MockDirectory {
	return &MockDirectory{
		Domain:               domain,
		Users:                make(map[string]*MockUser),
		Groups:               make(map[string]*MockGroup),
		RequireBindForSearch: true,
	}
}

// AddUser stores user under its DN.
func (d *MockDirectory) AddUser(user *MockUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Users[user.DN] = user
}

// AddGroup stores group under its DN.
func (d *MockDirectory) AddGroup(group *MockGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Groups[group.DN] = group
}

// Dial opens a connection. It matches the signature expected by a dialer function.
func (d *MockDirectory) Dial(ctx context.Context, _ string) (*MockConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialError != nil {
		return nil, d.DialError
	}
	d.Dials++
	return &MockConn{dir: d}, nil
}

// OpenConnections returns the number of dialed connections not yet closed.
func (d *MockDirectory) OpenConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials - d.Closes
}

// GetBindCallCount returns the number of binds.
func (d *MockDirectory) GetBindCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.BindCalls)
}

// GetSearchCallCount returns the number of searches.
func (d *MockDirectory) GetSearchCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.SearchCalls)
}

// Reset clears recorded calls and counters.
func (d *MockDirectory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.BindCalls = nil
	d.SearchCalls = nil
	d.Dials = 0
	d.Closes = 0
}

func (d *MockDirectory) findUserLocked(name string) *MockUser {
	for _, user := range d.Users {
		if strings.EqualFold(user.DN, name) ||
			strings.EqualFold(user.SAMAccountName, name) ||
			strings.EqualFold(user.SAMAccountName+"@"+d.Domain, name) {
			return user
		}
	}
	return nil
}

func (d *MockDirectory) bind(username, password string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	boundAs := ""
	switch {
	case d.BindFunc != nil:
		err = d.BindFunc(username, password)
		boundAs = username
	case password == "":
		err = ldap.NewError(ldap.ErrorEmptyPassword, errors.New("ldap: empty password not allowed by the client"))
	default:
		user := d.findUserLocked(username)
		switch {
		case user == nil || user.Password != password:
			err = ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(diagBadPassword))
		case !user.Enabled:
			err = ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(diagDisabled))
		default:
			boundAs = user.DN
		}
	}

	d.BindCalls = append(d.BindCalls, BindCall{Username: username, Password: password, Error: err})
	if err != nil {
		return "", err
	}
	return boundAs, nil
}

func (d *MockDirectory) search(boundAs string, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.searchLocked(boundAs, req)
	d.SearchCalls = append(d.SearchCalls, SearchCall{BoundAs: boundAs, Request: req, Result: result, Error: err})
	return result, err
}

func (d *MockDirectory) searchLocked(boundAs string, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if d.SearchFunc != nil {
		return d.SearchFunc(boundAs, req)
	}
	if boundAs == "" && d.RequireBindForSearch {
		return nil, ldap.NewError(ldap.LDAPResultOperationsError,
			errors.New("000004DC: LdapErr: DSID-0C090A5C, comment: In order to perform this operation a successful bind must be completed on the connection"))
	}

	filter, err := ldap.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	result := &ldap.SearchResult{}
	for _, entry := range d.entriesLocked() {
		if !inScope(entry.DN, req.BaseDN, req.Scope) {
			continue
		}
		ok, err := matches(filter, entry)
		if err != nil {
			return nil, err
		}
		if ok {
			result.Entries = append(result.Entries, project(entry, req.Attributes, req.TypesOnly))
		}
	}

	if req.SizeLimit > 0 && len(result.Entries) > req.SizeLimit {
		result.Entries = result.Entries[:req.SizeLimit]
		return result, ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded"))
	}
	return result, nil
}

// entriesLocked renders all users and groups sorted by DN.
func (d *MockDirectory) entriesLocked() []*ldap.Entry {
	var entries []*ldap.Entry
	for _, user := range d.Users {
		entries = append(entries, d.userEntryLocked(user))
	}
	for _, group := range d.Groups {
		entries = append(entries, groupEntry(group))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })
	return entries
}

func (d *MockDirectory) userEntryLocked(user *MockUser) *ldap.Entry {
	uac := "512"
	if !user.Enabled {
		uac = "514"
	}
	attrs := map[string][]string{
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"distinguishedName":  {user.DN},
		"cn":                 {user.CN},
		"sAMAccountName":     {user.SAMAccountName},
		"userPrincipalName":  {user.SAMAccountName + "@" + d.Domain},
		"userAccountControl": {uac},
		"sAMAccountType":     {"805306368"},
	}
	if user.Mail != "" {
		attrs["mail"] = []string{user.Mail}
	}

	var memberOf []string
	for _, group := range d.Groups {
		for _, member := range group.Members {
			if strings.EqualFold(member, user.DN) {
				memberOf = append(memberOf, group.DN)
			}
		}
	}
	if len(memberOf) > 0 {
		sort.Strings(memberOf)
		attrs["memberOf"] = memberOf
	}

	mergeAttributes(attrs, user.Attributes)
	return ldap.NewEntry(user.DN, attrs)
}

func groupEntry(group *MockGroup) *ldap.Entry {
	attrs := map[string][]string{
		"objectClass":       {"top", "group"},
		"distinguishedName": {group.DN},
		"cn":                {group.CN},
	}
	if len(group.Members) > 0 {
		attrs["member"] = append([]string(nil), group.Members...)
	}
	mergeAttributes(attrs, group.Attributes)
	return ldap.NewEntry(group.DN, attrs)
}

func mergeAttributes(dst, extra map[string][]string) {
	for name, values := range extra {
		for existing := range dst {
			if strings.EqualFold(existing, name) {
				delete(dst, existing)
			}
		}
		if len(values) > 0 {
			dst[name] = append([]string(nil), values...)
		}
	}
}

func inScope(dn, base string, scope int) bool {
	dn, base = strings.ToLower(dn), strings.ToLower(base)
	switch scope {
	case ldap.ScopeBaseObject:
		return dn == base
	case ldap.ScopeSingleLevel:
		return parentDN(dn) == base
	default:
		// Like a domain controller that is not a Global Catalog, the root
		// DSE yields nothing for subtree searches.
		return base != "" && (dn == base || strings.HasSuffix(dn, ","+base))
	}
}

// parentDN strips the first RDN, honouring escaped commas.
func parentDN(dn string) string {
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			return dn[i+1:]
		}
	}
	return ""
}

func project(entry *ldap.Entry, attributes []string, typesOnly bool) *ldap.Entry {
	attrs := make(map[string][]string)
	for _, a := range entry.Attributes {
		if len(attributes) > 0 && !containsFold(attributes, a.Name) && !containsFold(attributes, "*") {
			continue
		}
		if typesOnly {
			attrs[a.Name] = nil
			continue
		}
		attrs[a.Name] = append([]string(nil), a.Values...)
	}
	return ldap.NewEntry(entry.DN, attrs)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func matches(p *ber.Packet, entry *ldap.Entry) (bool, error) {
	switch p.Tag {
	case ldap.FilterAnd:
		for _, child := range p.Children {
			ok, err := matches(child, entry)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case ldap.FilterOr:
		for _, child := range p.Children {
			ok, err := matches(child, entry)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case ldap.FilterNot:
		ok, err := matches(p.Children[0], entry)
		return !ok, err

	case ldap.FilterEqualityMatch:
		attr := ber.DecodeString(p.Children[0].Data.Bytes())
		value := ber.DecodeString(p.Children[1].Data.Bytes())
		for _, v := range entry.GetEqualFoldAttributeValues(attr) {
			if strings.EqualFold(v, value) {
				return true, nil
			}
		}
		return false, nil

	case ldap.FilterPresent:
		attr := ber.DecodeString(p.Data.Bytes())
		return len(entry.GetEqualFoldAttributeValues(attr)) > 0, nil

	case ldap.FilterSubstrings:
		attr := ber.DecodeString(p.Children[0].Data.Bytes())
		for _, v := range entry.GetEqualFoldAttributeValues(attr) {
			if matchSubstrings(strings.ToLower(v), p.Children[1].Children) {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("mock directory: unsupported filter choice %d", p.Tag)
	}
}

func matchSubstrings(value string, parts []*ber.Packet) bool {
	pos := 0
	for _, part := range parts {
		s := strings.ToLower(ber.DecodeString(part.Data.Bytes()))
		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			if !strings.HasPrefix(value, s) {
				return false
			}
			pos = len(s)
		case ldap.FilterSubstringsAny:
			i := strings.Index(value[pos:], s)
			if i < 0 {
				return false
			}
			pos += i + len(s)
		case ldap.FilterSubstringsFinal:
			if !strings.HasSuffix(value[pos:], s) {
				return false
			}
		}
	}
	return true
}

// MockConn is a connection to a MockDirectory.
type MockConn struct {
	dir *MockDirectory

	mu      sync.Mutex
	boundAs string
	closed  bool
}

// Bind authenticates the connection.
func (c *MockConn) Bind(username, password string) error {
	if c.isClosed() {
		return ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	}
	boundAs, err := c.dir.bind(username, password)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundAs = boundAs
	return err
}

// Search runs req as the bound identity.
func (c *MockConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if c.isClosed() {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	}
	c.mu.Lock()
	boundAs := c.boundAs
	c.mu.Unlock()
	return c.dir.search(boundAs, req)
}

// SearchWithPaging runs req in one page.
func (c *MockConn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	return c.Search(req)
}

// Close closes the connection. Closing twice is counted once.
func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.dir.mu.Lock()
	c.dir.Closes++
	c.dir.mu.Unlock()
	return nil
}

// BoundAs returns the DN the connection is bound as.
func (c *MockConn) BoundAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundAs
}

func (c *MockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
