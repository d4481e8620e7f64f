package http

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"ctabeacon/internal/analytics"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/features"
	"ctabeacon/internal/render"
	"ctabeacon/internal/requestctx"
	"ctabeacon/internal/visibility"
)

// CTAHandler serves CTA markup and per-CTA statistics.
type CTAHandler struct {
	Catalog   *ctas.Catalog
	Evaluator *visibility.Evaluator
	Renderer  *render.Renderer
	Gate      features.Oracle
	Stats     *analytics.GormStore
	Now       func() time.Time
}

func (h *CTAHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RenderAction returns the markup fragment for one CTA. Hidden CTAs render
// as an empty body for visitors and as a diagnostic notice for operators.
func (h *CTAHandler) RenderAction(ctx *cartridge.Context) error {
	ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	ctx.Set(fiber.HeaderCacheControl, "no-store")

	id, err := parseID(ctx.Params("id"))
	if err != nil {
		return ctx.SendStatus(fiber.StatusNotFound)
	}

	viewer := render.Viewer{Operator: ctx.Session != nil && ctx.Session.IsAuthenticated(ctx.Ctx)}

	cta, err := h.Catalog.Get(id)
	if err != nil {
		var notFound *ctas.NotFoundError
		if !errors.As(err, &notFound) {
			ctx.Logger.Error("Failed to load CTA", slog.Uint64("cta_id", uint64(id)), slog.Any("error", err))
			return ctx.SendString("")
		}
		return ctx.SendString(h.Renderer.Render(nil, visibility.Deny(visibility.ReasonDisabled), render.Styles{}, viewer))
	}

	pageURL := ctx.Query("url")
	if pageURL == "" {
		pageURL = ctx.Get(fiber.HeaderReferer)
	}

	decision, effective := h.Evaluator.Evaluate(cta, visibility.Request{
		URL:    pageURL,
		Now:    h.now(),
		Device: requestctx.ClassifyDevice(ctx.Get(fiber.HeaderUserAgent)),
	})
	if !decision.Allowed {
		ctx.Logger.Debug("CTA not rendered",
			slog.Uint64("cta_id", uint64(id)),
			slog.String("reason", string(decision.Reason)),
			slog.Bool("operator", viewer.Operator))
	}

	return ctx.SendString(h.Renderer.Render(effective, decision, render.CompileStyles(effective), viewer))
}

// StatsResponse is the JSON body of the stats endpoint.
type StatsResponse struct {
	*analytics.Stats
	Name           string                    `json:"name"`
	ScheduleStatus visibility.ScheduleStatus `json:"schedule_status,omitempty"`
}

// StatsAction returns event totals for one CTA. Optional from and to query
// parameters take YYYY-MM-DD dates, both inclusive.
func (h *CTAHandler) StatsAction(ctx *cartridge.Context) error {
	id, err := parseID(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid CTA id", "code": "INVALID_ID"})
	}

	cta, err := ctas.FindByID(ctx.DB(), id)
	if err != nil {
		var notFound *ctas.NotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "CTA not found", "code": "CTA_NOT_FOUND"})
		}
		ctx.Logger.Error("Failed to load CTA", slog.Uint64("cta_id", uint64(id)), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load CTA", "code": "STATS_ERROR"})
	}

	from, err := parseDay(ctx.Query("from"), false)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from date", "code": "INVALID_RANGE"})
	}
	to, err := parseDay(ctx.Query("to"), true)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to date", "code": "INVALID_RANGE"})
	}

	stats, err := h.Stats.StatsFor(ctx.UserContext(), id, from, to)
	if err != nil {
		ctx.Logger.Error("Failed to compute CTA stats", slog.Uint64("cta_id", uint64(id)), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute stats", "code": "STATS_ERROR"})
	}

	return ctx.JSON(StatsResponse{
		Stats:          stats,
		Name:           cta.Name,
		ScheduleStatus: visibility.StatusFor(h.Gate, cta, h.now()),
	})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// parseDay parses YYYY-MM-DD in UTC. With nextDay the result is the start
// of the following day, the exclusive upper bound for an inclusive range.
func parseDay(raw string, nextDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if nextDay {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}
