package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctabeacon/internal/testsupport"
)

// postLogin submits the login form with a valid CSRF cookie.
func postLogin(t *testing.T, app *testsupport.TestApp, email, password string) *http.Response {
	t.Helper()

	resp, _ := getBody(t, app, "/login", "")
	var csrf string
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_" {
			csrf = c.Value
		}
	}
	require.NotEmpty(t, csrf)

	form := url.Values{"email": {email}, "password": {password}, "_csrf": {csrf}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Cookie", "csrf_="+csrf)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestProcessLoginAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	testsupport.CreateTestOperator(t, db, "Ops@Example.com", "correct-horse")
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("missing credentials", func(t *testing.T) {
		resp := postLogin(t, app, "ops@example.com", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := postLogin(t, app, "ops@example.com", "battery-staple")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		resp := postLogin(t, app, "OPS@example.com", "correct-horse")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var found bool
		for _, c := range resp.Cookies() {
			found = found || c.Name == testsupport.SessionCookieName
		}
		assert.True(t, found)
	})

	t.Run("status reflects the session", func(t *testing.T) {
		session := testsupport.LoginTestOperator(t, app.App, "ops@example.com", "correct-horse")

		_, body := getBody(t, app, "/login", session)
		var status map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &status))
		assert.Equal(t, true, status["authenticated"])

		_, body = getBody(t, app, "/login", "")
		require.NoError(t, json.Unmarshal([]byte(body), &status))
		assert.Equal(t, false, status["authenticated"])
	})
}

func TestHealthAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/_health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])
	assert.Equal(t, "ok", health["counter_status"])
}
