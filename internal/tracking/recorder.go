// Package tracking turns validated tracking submissions into analytics
// events.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ctabeacon/internal/analytics"
	"ctabeacon/internal/requestctx"
	"ctabeacon/internal/token"
)

var (
	// ErrInvalidToken means the anti-forgery token was missing or invalid.
	ErrInvalidToken = errors.New("invalid security token")
	// ErrRateLimited means the client exceeded the click threshold.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidPayload means the submission could not be interpreted.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrStorage means at least one event could not be stored.
	ErrStorage = errors.New("failed to record event")
)

// Payload is the per-CTA part of a tracking submission.
type Payload struct {
	CTAID     uint   `json:"cta_id"`
	CTATitle  string `json:"cta_title"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
}

// Limiter throttles clicks per client IP.
type Limiter interface {
	IsLimited(ctx context.Context, ip string) (bool, error)
}

// ContextResolver derives the client identity of a request.
type ContextResolver interface {
	Resolve(ctx context.Context, req requestctx.Request) (*requestctx.Context, error)
}

// Recorder validates submissions and forwards them to the analytics store.
type Recorder struct {
	tokens   token.Verifier
	limiter  Limiter
	resolver ContextResolver
	store    analytics.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder wires a recorder from its collaborators.
func NewRecorder(tokens token.Verifier, limiter Limiter, resolver ContextResolver, store analytics.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		tokens:   tokens,
		limiter:  limiter,
		resolver: resolver,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// TrackClick records a single click. The token is checked before the rate
// limiter so forged requests never consume a client's budget.
func (r *Recorder) TrackClick(ctx context.Context, req requestctx.Request, tok string, p Payload) error {
	if err := r.tokens.Verify(tok, token.ActionTrack); err != nil {
		return ErrInvalidToken
	}
	if p.CTAID == 0 {
		return fmt.Errorf("%w: missing cta_id", ErrInvalidPayload)
	}

	ip := requestctx.ClientIP(req)
	limited, err := r.limiter.IsLimited(ctx, ip)
	if err != nil {
		r.logger.Error("Rate limiter unavailable", slog.Uint64("cta_id", uint64(p.CTAID)), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if limited {
		return ErrRateLimited
	}

	rc, err := r.resolver.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if !r.store.RecordEvent(ctx, r.event(analytics.EventClick, p, rc)) {
		r.logger.Error("Click not recorded", slog.Uint64("cta_id", uint64(p.CTAID)))
		return ErrStorage
	}
	return nil
}

// TrackBatch records one impression or page view per payload. Payloads
// without a CTA id are skipped. Every payload is attempted; the batch fails
// if any of them did.
func (r *Recorder) TrackBatch(ctx context.Context, req requestctx.Request, tok string, eventType analytics.EventType, payloads []Payload) error {
	if err := r.tokens.Verify(tok, token.ActionTrack); err != nil {
		return ErrInvalidToken
	}
	if eventType != analytics.EventImpression && eventType != analytics.EventPageView {
		return fmt.Errorf("%w: unsupported event type %q", ErrInvalidPayload, eventType)
	}

	rc, err := r.resolver.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	ok := true
	for _, p := range payloads {
		if p.CTAID == 0 {
			continue
		}
		if !r.store.RecordEvent(ctx, r.event(eventType, p, rc)) {
			r.logger.Error("Batch event not recorded",
				slog.Uint64("cta_id", uint64(p.CTAID)),
				slog.String("type", string(eventType)))
			ok = false
		}
	}
	if !ok {
		return ErrStorage
	}
	return nil
}

func (r *Recorder) event(eventType analytics.EventType, p Payload, rc *requestctx.Context) analytics.Event {
	return analytics.Event{
		Type:      eventType,
		CTAID:     p.CTAID,
		CTATitle:  p.CTATitle,
		PageURL:   p.PageURL,
		PageTitle: p.PageTitle,
		Referrer:  rc.Referrer,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Device:    rc.Device,
		VisitorID: rc.VisitorID,
		SessionID: rc.SessionID,
		Context:   map[string]string{},
		CreatedAt: r.now().UTC(),
	}
}
