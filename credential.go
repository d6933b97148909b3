package adbind

import (
	"log/slog"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// Credential holds a secret presented at login. The secret is kept in a byte
// slice so it can be wiped once the request is complete. Formatting or logging
// a Credential never reveals the secret.
type Credential struct {
	mu     sync.RWMutex
	secret []byte
}

// NewCredential copies secret into a new Credential.
func NewCredential(secret string) *Credential {
	return &Credential{secret: []byte(secret)}
}

// Reveal returns the secret. It returns "" after Zeroize.
func (c *Credential) Reveal() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.secret)
}

// IsZero reports whether the credential is nil, empty or wiped.
func (c *Credential) IsZero() bool {
	if c == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.secret) == 0
}

// Zeroize overwrites the secret in memory.
func (c *Credential) Zeroize() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.secret {
		c.secret[i] = 0
	}
	c.secret = nil
}

// String implements fmt.Stringer.
func (c *Credential) String() string { return redacted }

// GoString implements fmt.GoStringer so %#v does not leak the secret either.
func (c *Credential) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (c *Credential) LogValue() slog.Value { return slog.StringValue(redacted) }

// maskSensitiveData keeps the first and last characters of data and masks the rest.
func maskSensitiveData(data string) string {
	runes := []rune(data)
	if len(runes) <= 4 {
		return "***"
	}

	visible := 2
	if len(runes) < 6 {
		visible = 1
	}

	return string(runes[:visible]) + strings.Repeat("*", len(runes)-2*visible) + string(runes[len(runes)-visible:])
}
