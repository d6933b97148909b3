package adbind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// SearchOptions controls how a search is executed.
type SearchOptions struct {
	// Scope is one of ldap.ScopeBaseObject, ldap.ScopeSingleLevel or
	// ldap.ScopeWholeSubtree.
	Scope int
	// Attributes lists the attributes to return. Empty returns all user attributes.
	Attributes []string
	SizeLimit  int
	// TimeLimit is the server-side limit in seconds.
	TimeLimit int
	TypesOnly bool
	// PageSize enables the simple paged results control when greater than zero.
	PageSize uint32
}

// ScopeFor returns ldap.ScopeWholeSubtree when subtree is set, else ldap.ScopeSingleLevel.
func ScopeFor(subtree bool) int {
	if subtree {
		return ldap.ScopeWholeSubtree
	}
	return ldap.ScopeSingleLevel
}

// SearchRequest is a parameterized search. Placeholders {0}, {1}, ... in
// Filter are replaced by the escaped value of the matching entry in Params.
type SearchRequest struct {
	Base    string
	Filter  string
	Params  []string
	Options SearchOptions
}

// EntryHandler receives every entry of a search result in order.
type EntryHandler func(entry *ldap.Entry) error

// Hooks are optional callbacks run around a search on the connection used for it.
// AfterSearch runs on every exit path once BeforeSearch has succeeded.
type Hooks struct {
	BeforeSearch func(ctx context.Context, conn Conn) error
	AfterSearch  func(ctx context.Context, conn Conn) error
}

// SearchExecutor runs searches through a ConnectionSource. Each call opens its
// own connection and closes it before returning.
type SearchExecutor struct {
	source     ConnectionSource
	logger     *slog.Logger
	metrics    *Metrics
	unionScope int
}

// ExecutorOption configures a SearchExecutor.
type ExecutorOption func(*SearchExecutor)

// WithUnionScope sets the scope used by SearchForUnionOfAttribute. The default
// is ldap.ScopeWholeSubtree.
func WithUnionScope(scope int) ExecutorOption {
	return func(s *SearchExecutor) {
		s.unionScope = scope
	}
}

// WithSearchMetrics records search counts and latencies.
func WithSearchMetrics(m *Metrics) ExecutorOption {
	return func(s *SearchExecutor) {
		s.metrics = m
	}
}

// NewSearchExecutor returns an executor reading from source.
func NewSearchExecutor(source ConnectionSource, logger *slog.Logger, opts ...ExecutorOption) *SearchExecutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &SearchExecutor{
		source:     source,
		logger:     logger,
		unionScope: ldap.ScopeWholeSubtree,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search opens a connection, runs hooks.BeforeSearch, executes req, feeds each
// entry to handler, runs hooks.AfterSearch and closes the connection.
//
// Errors from the connection source are returned unchanged. Search failures
// are wrapped in an *LDAPError; handler errors are returned wrapped with the
// DN of the offending entry.
func (s *SearchExecutor) Search(ctx context.Context, req SearchRequest, handler EntryHandler, hooks Hooks) (err error) {
	start := time.Now()

	filter, err := FormatFilter(req.Filter, req.Params...)
	if err != nil {
		return err
	}

	conn, err := s.source.ReadOnlyConnection(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if hooks.BeforeSearch != nil {
		if err := hooks.BeforeSearch(ctx, conn); err != nil {
			return fmt.Errorf("before search hook: %w", err)
		}
	}
	if hooks.AfterSearch != nil {
		defer func() {
			if hookErr := hooks.AfterSearch(ctx, conn); hookErr != nil && err == nil {
				err = fmt.Errorf("after search hook: %w", hookErr)
			}
		}()
	}

	searchReq := ldap.NewSearchRequest(
		req.Base,
		req.Options.Scope,
		ldap.NeverDerefAliases,
		req.Options.SizeLimit,
		req.Options.TimeLimit,
		req.Options.TypesOnly,
		filter,
		req.Options.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	if req.Options.PageSize > 0 {
		result, err = conn.SearchWithPaging(searchReq, req.Options.PageSize)
	} else {
		result, err = conn.Search(searchReq)
	}
	s.metrics.observeSearch(err, time.Since(start))
	if err != nil {
		s.logger.Debug("directory_search_failed",
			slog.String("base", req.Base),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return WrapLDAPError("search", "", err)
	}

	for _, entry := range result.Entries {
		if err := ctx.Err(); err != nil {
			return WrapLDAPError("search", "", err)
		}
		if err := handler(entry); err != nil {
			return fmt.Errorf("handle entry %q: %w", entry.DN, err)
		}
	}

	s.logger.Debug("directory_search_completed",
		slog.String("base", req.Base),
		slog.Int("entries", len(result.Entries)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// SearchMapped runs req and collects the value mapper returns for each entry.
func SearchMapped[T any](ctx context.Context, s *SearchExecutor, req SearchRequest, mapper func(*ldap.Entry) (T, error), hooks Hooks) ([]T, error) {
	var out []T
	err := s.Search(ctx, req, func(entry *ldap.Entry) error {
		v, err := mapper(entry)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	}, hooks)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchForSingleEntry runs req and returns its only entry. It returns
// ErrEntryNotFound when nothing matches and ErrEntryNotUnique when more than one entry does.
func (s *SearchExecutor) SearchForSingleEntry(ctx context.Context, req SearchRequest) (*ldap.Entry, error) {
	entries, err := SearchMapped(ctx, s, req, func(e *ldap.Entry) (*ldap.Entry, error) { return e, nil }, Hooks{})
	if err != nil {
		return nil, err
	}

	switch len(entries) {
	case 0:
		return nil, ErrEntryNotFound
	case 1:
		return entries[0], nil
	default:
		return nil, fmt.Errorf("%w: %d entries match", ErrEntryNotUnique, len(entries))
	}
}

// SearchForUnionOfAttribute returns the union of all values of attribute over
// every entry matching filter under base. Entries without the attribute are
// skipped. No match yields an empty set.
func (s *SearchExecutor) SearchForUnionOfAttribute(ctx context.Context, base, filter string, params []string, attribute string) (StringSet, error) {
	values := make(StringSet)
	req := SearchRequest{
		Base:   base,
		Filter: filter,
		Params: params,
		Options: SearchOptions{
			Scope:      s.unionScope,
			Attributes: []string{attribute},
		},
	}

	err := s.Search(ctx, req, func(entry *ldap.Entry) error {
		found := entry.GetEqualFoldAttributeValues(attribute)
		if len(found) == 0 {
			s.logger.Debug("attribute_value_missing",
				slog.String("dn", entry.DN),
				slog.String("attribute", attribute))
			return nil
		}
		for _, v := range found {
			values.Add(v)
		}
		return nil
	}, Hooks{})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// FormatFilter substitutes {n} placeholders in filter with the escaped
// params[n] and checks the result compiles. A filter without enclosing
// parentheses, such as "member={0}", is wrapped in them.
func FormatFilter(filter string, params ...string) (string, error) {
	var b strings.Builder
	b.Grow(len(filter) + 16)

	for i := 0; i < len(filter); i++ {
		c := filter[i]
		if c != '{' {
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(filter[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated placeholder in %q", ErrInvalidFilter, filter)
		}
		idx, err := strconv.Atoi(filter[i+1 : i+end])
		if err != nil || idx < 0 {
			return "", fmt.Errorf("%w: bad placeholder %q", ErrInvalidFilter, filter[i:i+end+1])
		}
		if idx >= len(params) {
			return "", fmt.Errorf("%w: placeholder {%d} has no parameter", ErrInvalidFilter, idx)
		}
		b.WriteString(ldap.EscapeFilter(params[idx]))
		i += end
	}

	out := strings.TrimSpace(b.String())
	if !strings.HasPrefix(out, "(") {
		out = "(" + out + ")"
	}
	if _, err := ldap.CompileFilter(out); err != nil {
		return "", errors.Join(ErrInvalidFilter, err)
	}
	return out, nil
}

// StringSet is a set of strings.
type StringSet map[string]struct{}

// Add inserts v.
func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

// Contains reports whether v is present.
func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexicographic order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
