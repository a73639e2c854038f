// Package servercontext implements component C13 (spec.md §4.9 and §6):
// per-request server call context, plus the header names transports use to
// carry extension, protocol-version, and notification-token information
// into and out of that context.
//
// Grounded on the teacher's policy package (runtime/a2a/policy/policy.go):
// the same typed contextKey + WithValue injection/extraction pair,
// generalized from a skill allow/deny policy to the full per-call state the
// A2A spec requires (authenticated user, requested extensions, protocol
// version, arbitrary request-scoped key/value state).
package servercontext

import (
	"context"
	"strings"
)

// Header names transports read and write for out-of-band A2A signaling
// (spec.md §6).
const (
	HeaderExtensions         = "X-A2A-Extensions"
	HeaderProtocolVersion    = "X-A2A-Version"
	HeaderNotificationToken  = "X-A2A-Notification-Token"
)

type contextKey int

const callContextKey contextKey = iota + 1

// CallContext carries per-request state available to an AgentExecutor and
// to RequestHandler methods: who is calling, which protocol extensions they
// requested, and which protocol version they negotiated.
type CallContext struct {
	// User identifies the authenticated caller, as established by
	// transport-layer authentication. Empty if the call is unauthenticated.
	User string
	// Extensions lists the protocol extension URIs the caller activated via
	// the X-A2A-Extensions header.
	Extensions []string
	// ProtocolVersion is the protocol version the caller requested via the
	// X-A2A-Version header; empty means the server's default.
	ProtocolVersion string
	// State holds arbitrary request-scoped key/value pairs set by
	// transport-specific interceptors (e.g. request ID, tenant ID).
	State map[string]any
}

// WithCallContext returns a copy of ctx carrying cc.
func WithCallContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, callContextKey, cc)
}

// FromContext retrieves the CallContext previously attached with
// WithCallContext, or a zero-value CallContext if none was attached.
func FromContext(ctx context.Context) *CallContext {
	cc, ok := ctx.Value(callContextKey).(*CallContext)
	if !ok || cc == nil {
		return &CallContext{}
	}
	return cc
}

// ParseExtensionsHeader splits a comma-separated X-A2A-Extensions header
// value into individual extension URIs, trimming whitespace and dropping
// empty entries.
func ParseExtensionsHeader(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HasExtension reports whether cc activated the given extension URI.
func (cc *CallContext) HasExtension(uri string) bool {
	for _, e := range cc.Extensions {
		if e == uri {
			return true
		}
	}
	return false
}
