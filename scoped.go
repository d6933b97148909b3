package adbind

import (
	"context"
)

// ScopedSource is a connection source fixed to one identity. Every connection
// it hands out is bound with the principal and credential captured at
// construction, so all work done through it happens "as" that identity.
//
// A ScopedSource belongs to a single authentication attempt and must not be
// shared between users.
type ScopedSource struct {
	factory   ConnectionFactory
	principal string
	cred      *Credential
}

var (
	_ ConnectionSource  = (*ScopedSource)(nil)
	_ ConnectionFactory = (*ScopedSource)(nil)
)

// NewScopedSource returns a source that binds as principal with cred. No
// connection is made until one is requested.
func NewScopedSource(factory ConnectionFactory, principal string, cred *Credential) *ScopedSource {
	return &ScopedSource{factory: factory, principal: principal, cred: cred}
}

// Principal returns the identity connections are bound as.
func (s *ScopedSource) Principal() string {
	return s.principal
}

// ReadOnlyConnection returns a connection bound as the fixed identity.
func (s *ScopedSource) ReadOnlyConnection(ctx context.Context) (Conn, error) {
	return s.factory.Connect(ctx, s.principal, s.cred)
}

// ReadWriteConnection returns a connection bound as the fixed identity.
func (s *ScopedSource) ReadWriteConnection(ctx context.Context) (Conn, error) {
	return s.factory.Connect(ctx, s.principal, s.cred)
}

// Connect ignores principal and cred and binds as the fixed identity.
func (s *ScopedSource) Connect(ctx context.Context, _ string, _ *Credential) (Conn, error) {
	return s.factory.Connect(ctx, s.principal, s.cred)
}
