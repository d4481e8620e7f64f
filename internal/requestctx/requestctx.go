// Package requestctx derives client identity for the current request:
// IP address, user agent, device class, referrer, visitor and session ids.
package requestctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
)

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

const (
	// SessionCookieName holds the browser-session identifier.
	SessionCookieName = "cta_session"
	sessionPrefix     = "s_"
	sessionBytes      = 16

	unknownIP = "0.0.0.0"
)

// Cookie is the subset of cookie attributes the resolver and the visitor
// store need to set.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	MaxAge   int // 0 means a session cookie
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// Request is the transport-neutral view of an incoming request.
type Request interface {
	Header(name string) string
	Cookie(name string) string
	RemoteAddr() string
	Secure() bool
	SetCookie(c Cookie)
}

// VisitorStore resolves a stable cross-session visitor identifier.
// It returns nil when no identifier can be resolved.
type VisitorStore interface {
	ResolveVisitorID(ctx context.Context, r Request) *uint
}

// Context is the per-request client identity.
type Context struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	Device    string `json:"device"`
	VisitorID *uint  `json:"visitor_id"`
	SessionID string `json:"session_id"`
}

// Resolver builds a Context from a Request.
type Resolver struct {
	visitors VisitorStore
	logger   *slog.Logger
}

// NewResolver creates a resolver. visitors may be nil, in which case the
// visitor id is always nil.
func NewResolver(visitors VisitorStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{visitors: visitors, logger: logger}
}

// Resolve derives the request context. It sets the session cookie when the
// browser does not have one yet.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Context, error) {
	sessionID, err := r.sessionID(req)
	if err != nil {
		return nil, err
	}

	userAgent := req.Header("User-Agent")
	rc := &Context{
		IPAddress: ClientIP(req),
		UserAgent: userAgent,
		Referrer:  req.Header("Referer"),
		Device:    ClassifyDevice(userAgent),
		SessionID: sessionID,
	}
	if r.visitors != nil {
		rc.VisitorID = r.visitors.ResolveVisitorID(ctx, req)
	}
	return rc, nil
}

func (r *Resolver) sessionID(req Request) (string, error) {
	if existing := req.Cookie(SessionCookieName); ValidSessionID(existing) {
		return existing, nil
	}

	id, err := NewSessionID()
	if err != nil {
		r.logger.Error("Failed to generate session id", slog.Any("error", err))
		return "", err
	}
	req.SetCookie(Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		Secure:   req.Secure(),
		SameSite: "Lax",
	})
	return id, nil
}

// NewSessionID returns "s_" followed by 32 random hex characters.
func NewSessionID() (string, error) {
	buf := make([]byte, sessionBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return sessionPrefix + hex.EncodeToString(buf), nil
}

// ValidSessionID reports whether id has the shape produced by NewSessionID.
func ValidSessionID(id string) bool {
	if len(id) != len(sessionPrefix)+2*sessionBytes || !strings.HasPrefix(id, sessionPrefix) {
		return false
	}
	for _, c := range id[len(sessionPrefix):] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ClientIP picks the first present source in precedence order (client IP
// header, first X-Forwarded-For entry, remote address) and validates it.
// An invalid value yields 0.0.0.0 rather than falling through.
func ClientIP(req Request) string {
	for _, header := range []string{"Client-IP", "X-Client-IP"} {
		if value := strings.TrimSpace(req.Header(header)); value != "" {
			return validIP(value)
		}
	}

	if forwarded := req.Header("X-Forwarded-For"); strings.TrimSpace(forwarded) != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return validIP(first)
	}

	remote := strings.TrimSpace(req.RemoteAddr())
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	return validIP(remote)
}

func validIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return unknownIP
	}
	return addr.Unmap().String()
}
