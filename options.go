package adbind

import (
	"crypto/tls"
	"log/slog"

	"github.com/go-ldap/ldap/v3"
)

// Option configures a Provider or one of its components. Components ignore
// options that do not apply to them.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	metrics         *Metrics
	messages        *MessageProvider
	dialer          Dialer
	dialOpts        []ldap.DialOpt
	additionalRoles AdditionalRolesFunc
	limiter         *AttemptLimiter
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func (o *options) messageProvider() *MessageProvider {
	if o.messages == nil {
		return DefaultMessages()
	}
	return o.messages
}

// WithLogger sets the structured logger. Without it nothing is logged.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	provider, err := adbind.NewProvider(cfg, nil, adbind.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMessages sets the provider of user-facing failure messages.
func WithMessages(m *MessageProvider) Option {
	return func(o *options) {
		if m != nil {
			o.messages = m
		}
	}
}

// WithDialer replaces the default ldap.DialURL based dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithDialOptions adds options passed to ldap.DialURL by the default dialer.
func WithDialOptions(opts ...ldap.DialOpt) Option {
	return func(o *options) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithTLS sets the TLS configuration used for ldaps:// servers.
//
// Example:
//
//	provider, err := adbind.NewProvider(cfg, nil, adbind.WithTLS(&tls.Config{
//	    ServerName: "dc1.example.com",
//	}))
func WithTLS(tlsConfig *tls.Config) Option {
	return func(o *options) {
		if tlsConfig != nil {
			o.dialOpts = append(o.dialOpts, ldap.DialWithTLSConfig(tlsConfig))
		}
	}
}

// WithAdditionalRoles grants extra roles on top of group memberships.
func WithAdditionalRoles(fn AdditionalRolesFunc) Option {
	return func(o *options) {
		o.additionalRoles = fn
	}
}

// WithAttemptLimiter locks usernames out after repeated failures.
func WithAttemptLimiter(l *AttemptLimiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}
