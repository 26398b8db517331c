package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/dailyreel/pkg/mocks"
	"github.com/dukex/dailyreel/pkg/persistence/file"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := pipeline.DefaultConfig()
	cfg.OutputRoot = t.TempDir()

	orchestrator := pipeline.New(file.NewPersistence(t.TempDir()), (&mocks.MockAdapters{}).Set(), cfg)

	return NewAPI(slog.Default(), orchestrator).App()
}

func get(t *testing.T, app *fiber.App, target string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "DailyReel API", body)
}

func TestAPI_HealthEndpoints(t *testing.T) {
	app := setupTestApp(t)

	for _, target := range []string{"/livez", "/readyz"} {
		status, body := get(t, app, target)
		assert.Equal(t, http.StatusOK, status, target)
		assert.Equal(t, "OK", body, target)
	}
}

func TestAPI_RunsEmpty(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/runs")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"runs":[],"total_count":0}`, body)
}

func TestAPI_Health(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"store":"ok"`)
}
