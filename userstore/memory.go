package userstore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/netresearch/adbind"
)

// MemoryStore keeps accounts in memory.
type MemoryStore struct {
	cost int

	mu       sync.RWMutex
	accounts map[string]*adbind.SecondaryIdentity
}

// NewMemoryStore returns an empty store hashing passwords with cost.
func NewMemoryStore(cost int) *MemoryStore {
	return &MemoryStore{
		cost:     cost,
		accounts: make(map[string]*adbind.SecondaryIdentity),
	}
}

// ParseUserMap reads a user map:
//
//	username=password,ROLE_A[,ROLE_B...][,enabled|disabled]
//
// one entry per line. The username ends at the first "=", so it may contain
// commas. The password comes first; "enabled" or "disabled" may appear
// anywhere after it and defaults to enabled. Entries without a role, blank
// lines and lines starting with "#" or "!" are skipped. A later entry for
// the same username replaces an earlier one.
func ParseUserMap(r io.Reader, cost int) (*MemoryStore, error) {
	s := NewMemoryStore(cost)
	if err := s.Load(r); err != nil {
		return nil, err
	}
	return s, nil
}

// Load adds the entries of a user map to s.
func (s *MemoryStore) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		username, value, ok := strings.Cut(line, "=")
		username = strings.TrimSpace(username)
		if !ok || username == "" {
			continue
		}

		password, roles, enabled, ok := parseUserAttribute(value)
		if !ok {
			continue
		}
		if err := s.Add(username, password, enabled, roles...); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseUserAttribute(value string) (password string, roles []adbind.Role, enabled bool, ok bool) {
	tokens := strings.Split(value, ",")
	password = strings.TrimSpace(tokens[0])
	enabled = true
	for _, token := range tokens[1:] {
		token = strings.TrimSpace(token)
		switch strings.ToLower(token) {
		case "":
		case "enabled":
			enabled = true
		case "disabled":
			enabled = false
		default:
			roles = append(roles, adbind.Role(token))
		}
	}
	return password, roles, enabled, len(roles) > 0
}

// Add stores an account, replacing any account with the same username.
func (s *MemoryStore) Add(username, password string, enabled bool, roles ...adbind.Role) error {
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(username)] = &adbind.SecondaryIdentity{
		Username:     username,
		PasswordHash: hash,
		Enabled:      enabled,
		Roles:        adbind.NewRoleSet(roles...),
	}
	return nil
}

// Len returns the number of accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// LoadUserByUsername implements adbind.UserDetailsService.
func (s *MemoryStore) LoadUserByUsername(ctx context.Context, key string) (*adbind.SecondaryIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", adbind.ErrUserNotFound, key)
	}

	out := *account
	out.Roles = account.Roles.Clone()
	return &out, nil
}

// Close implements io.Closer.
func (s *MemoryStore) Close() error {
	return nil
}
