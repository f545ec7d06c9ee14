package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/diag"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/web/handler"
)

type fakeAuthenticator struct {
	calls atomic.Int32
	users map[string]string
	cfg   bool
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, username, password string) directory.Outcome {
	f.calls.Add(1)

	switch {
	case f.cfg:
		return directory.Outcome{Kind: directory.KindConfigurationError, Err: directory.ErrNoDomainSuffix}
	case f.users[username] == "":
		return directory.Outcome{Kind: directory.KindUserNotFound}
	case f.users[username] != password:
		return directory.Outcome{Kind: directory.KindInvalidCredentials}
	default:
		return directory.Outcome{Kind: directory.KindSuccess, Suffix: "corp.local"}
	}
}

type fakeProxy struct {
	calls atomic.Int32
	ok    bool
	err   error
}

func (f *fakeProxy) Authenticate(context.Context, string, string) (bool, error) {
	f.calls.Add(1)
	return f.ok, f.err
}

type fakeDiag struct {
	report diag.Report
}

func (f fakeDiag) Check(context.Context) diag.Report {
	return f.report
}

func newTestApp(t *testing.T, cfg *config.Config, deps handler.Deps) *fiber.App {
	t.Helper()

	app := fiber.New()

	var s Service
	require.NoError(t, s.Init(app, cfg, deps))

	return app
}

func post(t *testing.T, app *fiber.App, body string) (int, handler.Result) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	defer resp.Body.Close()

	var result handler.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	return resp.StatusCode, result
}

func TestInit_NilArguments(t *testing.T) {
	t.Parallel()

	var s Service

	require.Error(t, s.Init(nil, &config.Config{}, handler.Deps{}))
	require.Error(t, s.Init(fiber.New(), nil, handler.Deps{}))
	require.Error(t, s.Init(fiber.New(), &config.Config{}, handler.Deps{}))
}

func TestPost_Direct(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthenticator{users: map[string]string{"jdoe": "s3cret"}}
	app := newTestApp(t, &config.Config{}, handler.Deps{Authenticator: auth})

	tests := []struct {
		name    string
		body    string
		status  int
		success bool
		message string
	}{
		{"success", `{"username":"jdoe","password":"s3cret"}`, fiber.StatusOK, true, handler.MsgLoginSuccessful},
		{"wrong password", `{"username":"jdoe","password":"nope"}`, fiber.StatusUnauthorized, false, handler.MsgInvalidCredentials},
		{"unknown user", `{"username":"ghost","password":"x"}`, fiber.StatusUnauthorized, false, handler.MsgInvalidCredentials},
		{"missing password", `{"username":"jdoe"}`, fiber.StatusBadRequest, false, handler.MsgMissingFields},
		{"missing username", `{"password":"x"}`, fiber.StatusBadRequest, false, handler.MsgMissingFields},
		{"control character", `{"username":"jdoe\u0000","password":"x"}`, fiber.StatusBadRequest, false, handler.MsgInvalidUsername},
		{"invalid body", `{"username":`, fiber.StatusBadRequest, false, handler.MsgInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, result := post(t, app, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.success, result.Success)

			if tt.success {
				assert.Equal(t, tt.message, result.Message)
			} else {
				assert.Equal(t, tt.message, result.Error)
			}
		})
	}
}

func TestPost_ConfigurationErrorIsOpaque(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &config.Config{}, handler.Deps{Authenticator: &fakeAuthenticator{cfg: true}})

	status, result := post(t, app, `{"username":"jdoe","password":"x"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, handler.MsgUnavailable, result.Error)
	assert.NotContains(t, result.Error, "suffix")
}

func TestPost_TestCredentials(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthenticator{}

	disabled := newTestApp(t, &config.Config{}, handler.Deps{Authenticator: auth})
	status, _ := post(t, disabled, `{"username":"test","password":"test"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, int32(1), auth.calls.Load())

	cfg := &config.Config{Login: config.Login{TestCredentials: true}}
	enabled := newTestApp(t, cfg, handler.Deps{Authenticator: auth})
	status, result := post(t, enabled, `{"username":"test","password":"test"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestPost_ConnectionTest(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Login: config.Login{ConnectionTest: true}}
	body := `{"username":"connection-test","password":"connection-test"}`

	ok := newTestApp(t, cfg, handler.Deps{
		Authenticator: &fakeAuthenticator{},
		Diag:          fakeDiag{report: diag.Report{Success: true, Details: "bound", OutboundIP: "203.0.113.7"}},
	})
	status, result := post(t, ok, body)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, result.Success)

	details, isMap := result.Details.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "203.0.113.7", details["outboundIP"])

	failed := newTestApp(t, cfg, handler.Deps{
		Authenticator: &fakeAuthenticator{},
		Diag:          fakeDiag{report: diag.Report{Details: "connection refused"}},
	})
	status, result = post(t, failed, body)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.False(t, result.Success)
}

func TestPost_Proxy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Proxy: config.Proxy{Enabled: true}}
	body := `{"username":"jdoe","password":"s3cret"}`

	t.Run("verdict", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{}
		app := newTestApp(t, cfg, handler.Deps{Authenticator: auth, Proxy: &fakeProxy{ok: true}})

		status, result := post(t, app, body)
		assert.Equal(t, fiber.StatusOK, status)
		assert.True(t, result.Success)
		assert.Zero(t, auth.calls.Load())
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{users: map[string]string{"jdoe": "s3cret"}}
		app := newTestApp(t, cfg, handler.Deps{Authenticator: auth, Proxy: &fakeProxy{}})

		status, _ := post(t, app, body)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Zero(t, auth.calls.Load())
	})

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{users: map[string]string{"jdoe": "s3cret"}}
		proxy := &fakeProxy{err: errors.New("connection refused")}
		app := newTestApp(t, cfg, handler.Deps{Authenticator: auth, Proxy: proxy})

		status, result := post(t, app, body)
		assert.Equal(t, fiber.StatusOK, status)
		assert.True(t, result.Success)
		assert.Equal(t, int32(1), proxy.calls.Load())
		assert.Equal(t, int32(1), auth.calls.Load())
	})
}
