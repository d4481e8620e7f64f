package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	v1 "ctabeacon/api/v1"
	"ctabeacon/internal/analytics"
	"ctabeacon/internal/config"
	"ctabeacon/internal/testsupport"
)

func fetchToken(t *testing.T, app *testsupport.TestApp) string {
	t.Helper()

	req := httptest.NewRequest("GET", "/x/api/v1/token?action=cta_track", nil)
	req.Header.Set("User-Agent", testsupport.BrowserUserAgent)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func postJSON(t *testing.T, app *testsupport.TestApp, path, tok string, payload any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testsupport.BrowserUserAgent)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if tok != "" {
		req.Header.Set(v1.TokenHeader, tok)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(body) > 0 {
		require.NoErrorf(t, json.Unmarshal(body, &decoded), "body: %s", body)
	}
	return resp, decoded
}

func countEvents(t *testing.T, db *gorm.DB, eventType analytics.EventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&analytics.Event{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func click(ctaID uint) map[string]any {
	return map[string]any{
		"cta_id":     ctaID,
		"cta_title":  "Call us",
		"page_url":   "https://example.com/pricing",
		"page_title": "Pricing",
	}
}

func TestTrackClickAction(t *testing.T) {
	t.Run("records a click with a valid token", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := postJSON(t, app, "/x/api/v1/track/click", fetchToken(t, app), click(7))
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["tracked"])

		var event analytics.Event
		require.NoError(t, db.Where("cta_id = ?", 7).First(&event).Error)
		assert.Equal(t, analytics.EventClick, event.Type)
		assert.Equal(t, "Call us", event.CTATitle)
		assert.Equal(t, "203.0.113.7", event.IPAddress)
		assert.Equal(t, "desktop", event.Device)
		assert.NotEmpty(t, event.SessionID)
		assert.NotNil(t, event.VisitorID)
	})

	t.Run("accepts the token in the body", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		payload := click(8)
		payload["token"] = fetchToken(t, app)
		resp, _ := postJSON(t, app, "/x/api/v1/track/click", "", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects a missing token", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := postJSON(t, app, "/x/api/v1/track/click", "", click(7))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "INVALID_TOKEN", body["code"])
		assert.Zero(t, countEvents(t, db, analytics.EventClick))
	})

	t.Run("rejects a forged token", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := postJSON(t, app, "/x/api/v1/track/click", "123.deadbeef", click(7))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := postJSON(t, app, "/x/api/v1/track/click", fetchToken(t, app), map[string]any{"cta_id": "seven"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAYLOAD", body["code"])
	})

	t.Run("limits the eleventh click in a window", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		tok := fetchToken(t, app)

		for i := 0; i < 10; i++ {
			resp, body := postJSON(t, app, "/x/api/v1/track/click", tok, click(7))
			require.Equalf(t, http.StatusOK, resp.StatusCode, "click %d: %v", i+1, body)
		}

		resp, body := postJSON(t, app, "/x/api/v1/track/click", tok, click(7))
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "RATE_LIMITED", body["code"])
		assert.Equal(t, "60", resp.Header.Get("Retry-After"))
		assert.EqualValues(t, 10, countEvents(t, db, analytics.EventClick))

		app.Advance(61 * time.Second)
		resp, _ = postJSON(t, app, "/x/api/v1/track/click", tok, click(7))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 11, countEvents(t, db, analytics.EventClick))
	})
}

func TestTrackBatchActions(t *testing.T) {
	t.Run("records impressions and skips entries without an id", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := postJSON(t, app, "/x/api/v1/track/impressions", fetchToken(t, app), map[string]any{
			"events": []map[string]any{click(1), click(0), click(2)},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.EqualValues(t, 2, countEvents(t, db, analytics.EventImpression))
	})

	t.Run("records page views", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := postJSON(t, app, "/x/api/v1/track/page-views", fetchToken(t, app), map[string]any{
			"events": []map[string]any{click(3)},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 1, countEvents(t, db, analytics.EventPageView))
	})

	t.Run("rejects non-array events", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := postJSON(t, app, "/x/api/v1/track/impressions", fetchToken(t, app), map[string]any{
			"events": click(1),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAYLOAD", body["code"])
	})

	t.Run("checks the token before the events", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := postJSON(t, app, "/x/api/v1/track/impressions", "", map[string]any{"events": "nope"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("batches are not rate limited", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		tok := fetchToken(t, app)

		// Request throttling only runs in production.
		cfg := config.GetConfig()
		prev := cfg.Environment
		cfg.Environment = config.Production
		t.Cleanup(func() { cfg.Environment = prev })

		for i := 0; i < 130; i++ {
			path := "/x/api/v1/track/impressions"
			if i%2 == 1 {
				path = "/x/api/v1/track/page-views"
			}
			resp, _ := postJSON(t, app, path, tok, map[string]any{
				"events": []map[string]any{click(1)},
			})
			require.Equalf(t, http.StatusOK, resp.StatusCode, "request %d to %s", i, path)
		}
		assert.EqualValues(t, 65, countEvents(t, db, analytics.EventImpression))
		assert.EqualValues(t, 65, countEvents(t, db, analytics.EventPageView))

		throttled := false
		for i := 0; i < 125 && !throttled; i++ {
			req := httptest.NewRequest("GET", "/x/api/v1/token?action=cta_track", nil)
			req.Header.Set("User-Agent", testsupport.BrowserUserAgent)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			throttled = resp.StatusCode == http.StatusTooManyRequests
		}
		assert.True(t, throttled, "token endpoint keeps its request limiter")
	})

	t.Run("stores the referrer source without touching context", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		tok := fetchToken(t, app)

		raw, err := json.Marshal(map[string]any{"events": []map[string]any{click(5)}})
		require.NoError(t, err)
		req := httptest.NewRequest("POST", "/x/api/v1/track/impressions", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", testsupport.BrowserUserAgent)
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		req.Header.Set("Referer", "https://duckduckgo.com/")
		req.Header.Set(v1.TokenHeader, tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var event analytics.Event
		require.NoError(t, db.Where("cta_id = ?", 5).First(&event).Error)
		assert.Equal(t, "DuckDuckGo", event.ReferrerSource)
		assert.Empty(t, event.Context)
	})
}

func TestTokenAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/x/api/v1/token?action=delete_everything", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	tok := fetchToken(t, app)
	assert.NoError(t, app.Services.Tokens.Verify(tok, "cta_track"))
}

func TestSecFetchSiteProtection(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	tok := fetchToken(t, app)

	raw, err := json.Marshal(click(7))
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/x/api/v1/track/click", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(v1.TokenHeader, tok)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "server-to-server requests without Sec-Fetch-Site are blocked")
	assert.Zero(t, countEvents(t, db, analytics.EventClick))
}

func TestTrackerScriptAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/x/api/v1")
	assert.Contains(t, string(body), "action=cta_track")
	assert.NotContains(t, string(body), "{{")
	assert.Contains(t, string(body), `var baseURL = "http://example.com";`)

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req = httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}
