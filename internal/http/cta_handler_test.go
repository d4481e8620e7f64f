package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctabeacon/internal"
	"ctabeacon/internal/analytics"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/render"
	"ctabeacon/internal/testsupport"
	"ctabeacon/internal/visibility"
)

func blockPricing(allowed bool, _ *ctas.Definition, currentURL string) bool {
	return allowed && !strings.Contains(currentURL, "/pricing")
}

func getBody(t *testing.T, app *testsupport.TestApp, path, sessionCookie string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("User-Agent", testsupport.BrowserUserAgent)
	if sessionCookie != "" {
		req.Header.Set("Cookie", fmt.Sprintf("%s=%s", testsupport.SessionCookieName, sessionCookie))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRenderAction(t *testing.T) {
	t.Run("renders an enabled phone CTA", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{
			Name:        "Call",
			Enabled:     true,
			ButtonText:  "Call now",
			PhoneNumber: "+1 (555) 000-1111",
		})
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := getBody(t, app, fmt.Sprintf("/cta/%d?url=https://example.com/", cta.ID), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		assert.Contains(t, body, `href="tel:+15550001111"`)
		assert.Contains(t, body, fmt.Sprintf(`data-cta-id="%d"`, cta.ID))
		assert.Contains(t, body, "Call now")
		assert.Contains(t, body, "background-color: #667eea")
	})

	t.Run("hides a disabled CTA from visitors", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Off", Enabled: false})
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := getBody(t, app, fmt.Sprintf("/cta/%d", cta.ID), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("shows operators why a CTA is hidden", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Off", Enabled: false})
		testsupport.CreateTestOperator(t, db, "ops@example.com", "correct-horse")
		app := testsupport.CreateMinimalTestApp(t, db)
		session := testsupport.LoginTestOperator(t, app.App, "ops@example.com", "correct-horse")

		_, body := getBody(t, app, fmt.Sprintf("/cta/%d", cta.ID), session)
		assert.Contains(t, body, render.DiagnosticClass)
		assert.Contains(t, body, "Disabled")
	})

	t.Run("publish status overrides the enabled flag", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Pub", Enabled: false, Status: ctas.StatusPublish})
		app := testsupport.CreateMinimalTestApp(t, db)

		_, body := getBody(t, app, fmt.Sprintf("/cta/%d", cta.ID), "")
		assert.Contains(t, body, render.BaseClass)
	})

	t.Run("unknown CTAs render nothing", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := getBody(t, app, "/cta/999", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("extension URL rules hide the CTA", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Targeted", Enabled: true})
		app := testsupport.CreateTestAppWithExtensions(t, db, internal.Extensions{
			VisibilityOptions: []visibility.Option{visibility.WithURLRule(blockPricing)},
		})

		_, body := getBody(t, app, fmt.Sprintf("/cta/%d?url=https://example.com/pricing", cta.ID), "")
		assert.Empty(t, body)

		_, body = getBody(t, app, fmt.Sprintf("/cta/%d?url=https://example.com/", cta.ID), "")
		assert.Contains(t, body, render.BaseClass)
	})
}

func TestStatsAction(t *testing.T) {
	t.Run("requires an operator session", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Stats", Enabled: true})
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := getBody(t, app, fmt.Sprintf("/admin/api/ctas/%d/stats", cta.ID), "")
		assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("aggregates events for the CTA", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Stats", Enabled: true})
		testsupport.CreateTestOperator(t, db, "ops@example.com", "correct-horse")
		app := testsupport.CreateMinimalTestApp(t, db)

		store := analytics.NewGormStore(db, testsupport.GetLogger())
		now := time.Now().UTC()
		for i, typ := range []analytics.EventType{analytics.EventImpression, analytics.EventImpression, analytics.EventImpression, analytics.EventImpression, analytics.EventClick} {
			require.True(t, store.RecordEvent(context.Background(), analytics.Event{
				Type:      typ,
				CTAID:     cta.ID,
				SessionID: fmt.Sprintf("s_%d", i%2),
				CreatedAt: now,
			}))
		}
		require.True(t, store.RecordEvent(context.Background(), analytics.Event{Type: analytics.EventClick, CTAID: cta.ID + 1, CreatedAt: now}))

		session := testsupport.LoginTestOperator(t, app.App, "ops@example.com", "correct-horse")
		resp, body := getBody(t, app, fmt.Sprintf("/admin/api/ctas/%d/stats", cta.ID), session)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		var stats struct {
			Name           string  `json:"name"`
			Clicks         int64   `json:"clicks"`
			Impressions    int64   `json:"impressions"`
			UniqueSessions int64   `json:"unique_sessions"`
			ClickRate      float64 `json:"click_rate"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &stats))
		assert.Equal(t, "Stats", stats.Name)
		assert.EqualValues(t, 1, stats.Clicks)
		assert.EqualValues(t, 4, stats.Impressions)
		assert.EqualValues(t, 2, stats.UniqueSessions)
		assert.InDelta(t, 0.25, stats.ClickRate, 0.0001)
	})

	t.Run("unknown CTA is 404", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		testsupport.CreateTestOperator(t, db, "ops@example.com", "correct-horse")
		app := testsupport.CreateMinimalTestApp(t, db)
		session := testsupport.LoginTestOperator(t, app.App, "ops@example.com", "correct-horse")

		resp, _ := getBody(t, app, "/admin/api/ctas/999/stats", session)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		cta := testsupport.CreateTestCTA(t, db, ctas.Definition{Name: "Stats", Enabled: true})
		testsupport.CreateTestOperator(t, db, "ops@example.com", "correct-horse")
		app := testsupport.CreateMinimalTestApp(t, db)
		session := testsupport.LoginTestOperator(t, app.App, "ops@example.com", "correct-horse")

		resp, _ := getBody(t, app, fmt.Sprintf("/admin/api/ctas/%d/stats?from=yesterday", cta.ID), session)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
