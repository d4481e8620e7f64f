package v1

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"ctabeacon/internal/token"
)

//go:embed tracker.js
var trackerSource string

var trackerTemplate = template.Must(template.New("tracker.js").Parse(trackerSource))

// TrackerScriptAction serves the client script that reports impressions,
// page views and clicks for every element carrying data-cta-id.
func TrackerScriptAction(ctx *cartridge.Context) error {
	content, err := renderTracker(ctx.BaseURL())
	if err != nil {
		ctx.Logger.Error("Failed to render tracker script", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	etag := generateETag(content)

	if ctx.Get(fiber.HeaderIfNoneMatch) == etag {
		ctx.Logger.Debug("ETag match, returning 304", slog.String("etag", etag))
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set(fiber.HeaderContentType, "application/javascript")
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	ctx.Set(fiber.HeaderETag, etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}

// renderTracker fills the script template. The base URL comes from the Host
// header, so it is emitted as a JSON string literal rather than spliced
// into quotes.
func renderTracker(baseURL string) ([]byte, error) {
	quoted, err := json.Marshal(baseURL)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	data := map[string]string{
		"BaseURL": string(quoted),
		"Action":  token.ActionTrack,
	}
	if err := trackerTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generateETag(content []byte) string {
	sum := sha256.Sum256(content)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
