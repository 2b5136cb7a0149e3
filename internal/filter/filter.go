// Package filter implements the acceptance predicate applied to discovered items.
package filter

import (
	"context"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/appscout/appscout/internal/scout"
)

// DomainChecker reports whether a contact domain is reachable for delivery.
type DomainChecker interface {
	Reachable(ctx context.Context, domain string) bool
}

// MXChecker resolves MX records, falling back to a host lookup for domains
// that receive mail on an A record.
type MXChecker struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

// Reachable returns true when the domain has MX records or resolves at all.
func (c *MXChecker) Reachable(ctx context.Context, domain string) bool {
	r := c.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if mx, err := r.LookupMX(ctx, domain); err == nil && len(mx) > 0 {
		return true
	}
	addrs, err := r.LookupHost(ctx, domain)
	return err == nil && len(addrs) > 0
}

// Filter is a pure predicate over item attributes. An item is accepted when
// its popularity metric is below the ceiling and it carries a syntactically
// valid contact identifier whose domain is reachable.
type Filter struct {
	ceiling int
	checker DomainChecker
}

// New constructs a Filter. Ceiling values <= 0 fall back to 1, which keeps
// the zero-review acceptance semantics.
func New(ceiling int, checker DomainChecker) *Filter {
	if ceiling <= 0 {
		ceiling = 1
	}
	return &Filter{ceiling: ceiling, checker: checker}
}

// Accept evaluates the predicate. The returned reason is empty on acceptance
// and names the first failed check otherwise.
func (f *Filter) Accept(ctx context.Context, detail scout.ItemDetail) (bool, string) {
	if detail.Reviews >= f.ceiling {
		return false, "popularity at or above ceiling"
	}
	email := scout.NormalizeEmail(detail.Email)
	if email == "" {
		return false, "no contact identifier"
	}
	domain, ok := splitDomain(email)
	if !ok {
		return false, "malformed contact identifier"
	}
	if f.checker != nil && !f.checker.Reachable(ctx, domain) {
		return false, "contact domain unreachable"
	}
	return true, ""
}

func splitDomain(email string) (string, bool) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return "", false
	}
	domain := addr.Address[at+1:]
	if domain == "" || !strings.Contains(domain, ".") {
		return "", false
	}
	return domain, true
}
