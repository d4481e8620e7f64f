package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"ctabeacon/internal/analytics"
	"ctabeacon/internal/requestctx"
	"ctabeacon/internal/token"
	"ctabeacon/internal/tracking"
)

// TokenHeader carries the anti-forgery token on tracking requests.
const TokenHeader = "X-CTA-Token"

const (
	errInvalidRequest = "Invalid request"
	errInvalidToken   = "Invalid security token"
	errRateLimited    = "Too many requests"
	errTrackFailed    = "Failed to track event"
)

type clickParams struct {
	Token string `json:"token"`
	tracking.Payload
}

type batchParams struct {
	Token  string          `json:"token"`
	Events json.RawMessage `json:"events"`
}

// TrackingHandler serves the public tracking endpoints.
type TrackingHandler struct {
	Recorder    *tracking.Recorder
	Tokens      *token.Issuer
	RetryAfter  time.Duration
	TokenMaxAge time.Duration
}

// TokenAction issues a tracking token for embedding pages.
func (h *TrackingHandler) TokenAction(ctx *cartridge.Context) error {
	action := ctx.Query("action", token.ActionTrack)
	if action != token.ActionTrack {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Unknown action",
		})
	}

	ctx.Set("Cache-Control", "no-store")
	return ctx.JSON(fiber.Map{
		"success":    true,
		"token":      h.Tokens.Issue(action),
		"expires_in": int(h.TokenMaxAge.Seconds() / 2),
	})
}

// TrackClickAction records a single CTA click.
func (h *TrackingHandler) TrackClickAction(ctx *cartridge.Context) error {
	var params clickParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse click payload", slog.Any("error", err))
		return h.unreadableBody(ctx)
	}

	err := h.Recorder.TrackClick(ctx.UserContext(), requestctx.FromFiber(ctx.Ctx), tokenFrom(ctx, params.Token), params.Payload)
	if err != nil {
		return h.respondError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"success": true, "tracked": true})
}

// TrackImpressionsAction records a batch of impressions.
func (h *TrackingHandler) TrackImpressionsAction(ctx *cartridge.Context) error {
	return h.trackBatch(ctx, analytics.EventImpression)
}

// TrackPageViewsAction records a batch of page views.
func (h *TrackingHandler) TrackPageViewsAction(ctx *cartridge.Context) error {
	return h.trackBatch(ctx, analytics.EventPageView)
}

func (h *TrackingHandler) trackBatch(ctx *cartridge.Context, eventType analytics.EventType) error {
	var params batchParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse batch payload", slog.Any("error", err))
		return h.unreadableBody(ctx)
	}

	// Token first: a forged request gets 403 regardless of the events shape.
	tok := tokenFrom(ctx, params.Token)
	if err := h.Tokens.Verify(tok, token.ActionTrack); err != nil {
		return h.respondError(ctx, tracking.ErrInvalidToken)
	}

	raw := bytes.TrimSpace(params.Events)
	if len(raw) == 0 || raw[0] != '[' {
		return h.respondError(ctx, tracking.ErrInvalidPayload)
	}
	var payloads []tracking.Payload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		ctx.Logger.Debug("Failed to parse batch events", slog.Any("error", err))
		return h.respondError(ctx, tracking.ErrInvalidPayload)
	}

	if err := h.Recorder.TrackBatch(ctx.UserContext(), requestctx.FromFiber(ctx.Ctx), tok, eventType, payloads); err != nil {
		return h.respondError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// unreadableBody answers a body that is not JSON. Only the header can carry
// the token then, and it is still checked first.
func (h *TrackingHandler) unreadableBody(ctx *cartridge.Context) error {
	if h.Tokens.Verify(ctx.Get(TokenHeader), token.ActionTrack) != nil {
		return h.respondError(ctx, tracking.ErrInvalidToken)
	}
	return h.respondError(ctx, tracking.ErrInvalidPayload)
}

func tokenFrom(ctx *cartridge.Context, bodyToken string) string {
	if header := ctx.Get(TokenHeader); header != "" {
		return header
	}
	return bodyToken
}

func (h *TrackingHandler) respondError(ctx *cartridge.Context, err error) error {
	switch {
	case errors.Is(err, tracking.ErrInvalidToken):
		return ctx.Status(http.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidToken,
			"code":    "INVALID_TOKEN",
		})
	case errors.Is(err, tracking.ErrRateLimited):
		if h.RetryAfter > 0 {
			ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(h.RetryAfter.Seconds())))
		}
		return ctx.Status(http.StatusTooManyRequests).JSON(fiber.Map{
			"success": false,
			"error":   errRateLimited,
			"code":    "RATE_LIMITED",
		})
	case errors.Is(err, tracking.ErrInvalidPayload):
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidRequest,
			"code":    "INVALID_PAYLOAD",
		})
	default:
		ctx.Logger.Error("Tracking request failed", slog.String("path", ctx.Path()), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   errTrackFailed,
			"code":    "TRACKING_ERROR",
		})
	}
}
