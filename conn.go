package adbind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of *ldap.Conn used by this package.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(searchRequest *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close() error
}

var _ Conn = &ldap.Conn{}

// Dialer opens an unauthenticated connection to a directory server.
type Dialer interface {
	Dial(ctx context.Context, server string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, server string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, server string) (Conn, error) {
	return f(ctx, server)
}

// ConnectionFactory returns connections bound as the given principal.
//
// A rejected bind is reported with an error matching ErrInvalidCredentials.
// Any other failure, including dial errors, is a transport error and matches
// ErrConnectionFailed or carries an *LDAPError.
type ConnectionFactory interface {
	Connect(ctx context.Context, principal string, cred *Credential) (Conn, error)
}

// ConnectionSource hands out connections that are already authenticated.
// Callers own the returned connection and must close it.
type ConnectionSource interface {
	ReadOnlyConnection(ctx context.Context) (Conn, error)
	ReadWriteConnection(ctx context.Context) (Conn, error)
}

// NewDialer returns the default Dialer, using ldap.DialURL with a connect
// timeout and any extra dial options.
func NewDialer(timeout time.Duration, opts ...ldap.DialOpt) Dialer {
	return DialerFunc(func(ctx context.Context, server string) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dialOpts := make([]ldap.DialOpt, 0, len(opts)+1)
		if timeout > 0 {
			dialOpts = append(dialOpts, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
		}
		dialOpts = append(dialOpts, opts...)

		conn, err := ldap.DialURL(server, dialOpts...)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			conn.SetTimeout(timeout)
		}
		return conn, nil
	})
}

// DirectoryFactory dials a directory server and binds as the requested principal.
type DirectoryFactory struct {
	server string
	dialer Dialer
	logger *slog.Logger
}

// NewDirectoryFactory returns a factory for server. A nil dialer selects
// NewDialer with no timeout; a nil logger discards output.
func NewDirectoryFactory(server string, dialer Dialer, logger *slog.Logger) *DirectoryFactory {
	if dialer == nil {
		dialer = NewDialer(0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DirectoryFactory{
		server: server,
		dialer: dialer,
		logger: logger.With(slog.String("component", "directory_factory")),
	}
}

// Server returns the directory URL.
func (f *DirectoryFactory) Server() string {
	return f.server
}

// Connect implements ConnectionFactory.
func (f *DirectoryFactory) Connect(ctx context.Context, principal string, cred *Credential) (Conn, error) {
	start := time.Now()

	conn, err := f.dialer.Dial(ctx, f.server)
	if err != nil {
		f.logger.Error("directory_dial_failed",
			slog.String("server", f.server),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, WrapLDAPError("dial", f.server, err))
	}

	if err := conn.Bind(principal, cred.Reveal()); err != nil {
		_ = conn.Close()

		wrapped := WrapLDAPError("bind", f.server, err)
		var ldapErr *LDAPError
		if errors.As(wrapped, &ldapErr) {
			ldapErr.WithDN(principal)
		}

		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			f.logger.Debug("directory_bind_rejected",
				slog.String("principal_masked", maskSensitiveData(principal)),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, wrapped)
		}

		f.logger.Error("directory_bind_failed",
			slog.String("server", f.server),
			slog.String("principal_masked", maskSensitiveData(principal)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, wrapped)
		}
		return nil, wrapped
	}

	f.logger.Debug("directory_bind_succeeded",
		slog.String("principal_masked", maskSensitiveData(principal)),
		slog.Duration("duration", time.Since(start)))
	return conn, nil
}
