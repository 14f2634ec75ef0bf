// Package auth resolves forwarded client certificates into request scopes
// and guards the operator API.
package auth

import "context"

// Scope is the resolved identity of a device-facing request. Aggregator
// certificates see every site registered under their aggregator id; device
// certificates see only the single site registered with their LFDI.
type Scope struct {
	LFDI         string
	SFDI         int64
	AggregatorID int64

	// DeviceCert marks a client authenticated by an unregistered device
	// certificate rather than an aggregator assignment.
	DeviceCert bool

	// SiteID is the site registered with the device cert's LFDI, or 0 when
	// the device has not registered yet. Unused for aggregator certs.
	SiteID int64
}

// VisibleSite reports whether the scope may access the given site.
func (s *Scope) VisibleSite(aggregatorID, siteID int64) bool {
	if s.DeviceCert {
		return s.SiteID != 0 && s.SiteID == siteID
	}
	return s.AggregatorID == aggregatorID
}

type contextKey string

const scopeKey contextKey = "requestScope"

// WithScope attaches the resolved scope to the request context.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext retrieves the resolved scope from the request context.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(*Scope)
	return scope, ok
}
