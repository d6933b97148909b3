package adbind

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/netresearch/adbind/testutil"
)

// newMockFactory returns a DirectoryFactory dialing dir.
func newMockFactory(dir *testutil.MockDirectory) *DirectoryFactory {
	dialer := DialerFunc(func(ctx context.Context, server string) (Conn, error) {
		conn, err := dir.Dial(ctx, server)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	return NewDirectoryFactory("ldap://mock.example.com", dialer, nil)
}

// newBufferLogger returns a debug logger writing into the returned buffer.
func newBufferLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// staticFactory hands out a fixed connection or error and records requests.
type staticFactory struct {
	conn       Conn
	err        error
	principals []string
	creds      []*Credential
}

func (f *staticFactory) Connect(_ context.Context, principal string, cred *Credential) (Conn, error) {
	f.principals = append(f.principals, principal)
	f.creds = append(f.creds, cred)
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}
