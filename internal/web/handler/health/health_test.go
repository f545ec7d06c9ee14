package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/diag"
	"github.com/ldapgate/ldapgate/internal/web/handler"
)

type fakeDiag struct {
	report diag.Report
}

func (f fakeDiag) Check(context.Context) diag.Report {
	return f.report
}

func newTestApp(t *testing.T, deps handler.Deps) *fiber.App {
	t.Helper()

	app := fiber.New()

	var s Service
	require.NoError(t, s.Init(app, &config.Config{}, deps))

	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func TestHealth_Alive(t *testing.T) {
	t.Parallel()

	var alive atomic.Bool
	alive.Store(true)

	app := newTestApp(t, handler.Deps{Alive: alive.Load, Version: "1.2.3"})

	code, body := get(t, app, Path)
	assert.Equal(t, fiber.StatusOK, code)

	var status Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, statusHealthy, status.Status)
	assert.Nil(t, status.SSHTunnel)

	alive.Store(false)

	code, _ = get(t, app, Path)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
}

func TestServiceHealth(t *testing.T) {
	t.Parallel()

	healthy := newTestApp(t, handler.Deps{Diag: fakeDiag{report: diag.Report{Success: true, Details: "bound"}}})
	code, body := get(t, healthy, "/health/ldap")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"bound"`)

	broken := newTestApp(t, handler.Deps{Diag: fakeDiag{report: diag.Report{Details: "connection refused"}}})
	code, body = get(t, broken, "/health/ldap")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Contains(t, string(body), statusUnhealthy)

	code, _ = get(t, healthy, "/health/redis")
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, handler.Deps{})

	code, body := get(t, app, MetricsPath)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), "go_goroutines")
}
