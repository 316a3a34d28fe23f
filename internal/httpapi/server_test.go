package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/audit"
	"github.com/fyrsmithlabs/boardsync/internal/engine"
)

type fakeRunner struct {
	syncResult   *engine.SyncResult
	syncErr      error
	reviewReport *audit.ReviewReport
	reviewErr    error
	lastOpts     engine.SyncOptions
	lastCardID   string
}

func (f *fakeRunner) Sync(ctx context.Context, opts engine.SyncOptions) (*engine.SyncResult, error) {
	f.lastOpts = opts
	return f.syncResult, f.syncErr
}

func (f *fakeRunner) Review(ctx context.Context, cardID string) (*audit.ReviewReport, error) {
	f.lastCardID = cardID
	return f.reviewReport, f.reviewErr
}

func setupTestServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	server, err := NewServer(runner, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 9191,
		}
		server, err := NewServer(&fakeRunner{}, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakeRunner{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeRunner{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when runner is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "runner cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func postJSON(server *Server, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleSync(t *testing.T) {
	t.Run("runs a synchronization pass", func(t *testing.T) {
		runner := &fakeRunner{syncResult: &engine.SyncResult{
			RunID:    "run-1",
			Changes:  5,
			Relevant: 2,
			Created:  1,
			Skipped:  1,
		}}
		server := setupTestServer(t, runner)

		rec := postJSON(server, "/api/v1/sync", SyncRequest{Since: "168h", DryRun: true})
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SyncResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "run-1", resp.RunID)
		assert.Equal(t, 1, resp.Created)
		assert.True(t, resp.DryRun)
		assert.True(t, runner.lastOpts.DryRun)
		assert.False(t, runner.lastOpts.Since.IsZero())
	})

	t.Run("rejects malformed since", func(t *testing.T) {
		server := setupTestServer(t, &fakeRunner{})
		rec := postJSON(server, "/api/v1/sync", SyncRequest{Since: "next tuesday"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps engine failure to 500", func(t *testing.T) {
		server := setupTestServer(t, &fakeRunner{syncErr: errors.New("boom")})
		rec := postJSON(server, "/api/v1/sync", SyncRequest{})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleReview(t *testing.T) {
	t.Run("reviews a card", func(t *testing.T) {
		runner := &fakeRunner{reviewReport: &audit.ReviewReport{
			CardID:         "card-1",
			Verdict:        audit.VerdictFail,
			MissingSymbols: []string{"fetchActiveComponents"},
		}}
		server := setupTestServer(t, runner)

		rec := postJSON(server, "/api/v1/review", ReviewRequest{CardID: "card-1"})
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReviewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Fail", resp.Verdict)
		assert.Equal(t, []string{"fetchActiveComponents"}, resp.MissingSymbols)
		assert.Equal(t, "card-1", runner.lastCardID)
	})

	t.Run("requires card_id", func(t *testing.T) {
		server := setupTestServer(t, &fakeRunner{})
		rec := postJSON(server, "/api/v1/review", ReviewRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestParseSince(t *testing.T) {
	ts, err := parseSince("2026-03-02T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())

	ts, err = parseSince("72h")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	ts, err = parseSince("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = parseSince("whenever")
	assert.Error(t, err)
}
