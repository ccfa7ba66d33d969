package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/internal/logbuf"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

type stubWebhooks struct {
	slack, zendesk int
}

func (s *stubWebhooks) SlackEvents(w http.ResponseWriter, _ *http.Request) {
	s.slack++
	w.WriteHeader(http.StatusOK)
}

func (s *stubWebhooks) Zendesk(w http.ResponseWriter, _ *http.Request) {
	s.zendesk++
	w.WriteHeader(http.StatusOK)
}

type failingLinks struct{}

func (failingLinks) List(context.Context, link.Filter) ([]*protocol.TicketLink, error) {
	return nil, errors.New("database is locked")
}

func newTestLinks(t *testing.T) *link.SQLiteStore {
	t.Helper()
	s, err := link.NewSQLiteStore(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestServer(t *testing.T, links LinkLister, key string, logs LogQuerier) (*Server, *stubWebhooks) {
	hooks := &stubWebhooks{}
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Key: key}, hooks, links, logger, logs), hooks
}

func do(srv *Server, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "secret", nil)

	w := do(srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookRoutes(t *testing.T) {
	srv, hooks := newTestServer(t, newTestLinks(t), "secret", nil)

	for _, path := range []string{"/slack/events/", "/slack/events"} {
		assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, path, "").Code, path)
	}
	for _, path := range []string{"/zendesk/webhook/", "/zendesk/webhook"} {
		assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, path, "").Code, path)
	}
	assert.Equal(t, 2, hooks.slack)
	assert.Equal(t, 2, hooks.zendesk)

	assert.Equal(t, http.StatusMethodNotAllowed, do(srv, http.MethodGet, "/slack/events/", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "secret", nil)

	w := do(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestListLinks(t *testing.T) {
	links := newTestLinks(t)
	ctx := context.Background()
	_, err := links.Insert(ctx, "C0SUPPORT", "1598459584.013100", 101)
	require.NoError(t, err)
	_, err = links.Insert(ctx, "C0SUPPORT", "1598459600.000100", 102)
	require.NoError(t, err)
	require.NoError(t, links.MarkResolved(ctx, "C0SUPPORT", "1598459584.013100"))

	srv, _ := newTestServer(t, links, "secret", nil)

	w := do(srv, http.MethodGet, "/api/links", "Bearer secret")
	require.Equal(t, http.StatusOK, w.Code)
	var all []protocol.TicketLink
	require.NoError(t, json.NewDecoder(w.Body).Decode(&all))
	assert.Len(t, all, 2)

	w = do(srv, http.MethodGet, "/api/links?status=open", "Bearer secret")
	require.Equal(t, http.StatusOK, w.Code)
	var open []protocol.TicketLink
	require.NoError(t, json.NewDecoder(w.Body).Decode(&open))
	require.Len(t, open, 1)
	assert.Equal(t, int64(102), open[0].TicketID)

	w = do(srv, http.MethodGet, "/api/links?limit=1", "Bearer secret")
	var limited []protocol.TicketLink
	require.NoError(t, json.NewDecoder(w.Body).Decode(&limited))
	assert.Len(t, limited, 1)
}

func TestListLinksEmpty(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "", nil)

	w := do(srv, http.MethodGet, "/api/links", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListLinksBadStatus(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "", nil)
	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodGet, "/api/links?status=pending", "").Code)
}

func TestListLinksStoreError(t *testing.T) {
	srv, _ := newTestServer(t, failingLinks{}, "", nil)

	w := do(srv, http.MethodGet, "/api/links", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database is locked")
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "secret", logbuf.New(10))

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{"links no auth", "/api/links", "", http.StatusUnauthorized},
		{"links wrong key", "/api/links", "Bearer nope", http.StatusUnauthorized},
		{"links basic scheme", "/api/links", "Basic secret", http.StatusUnauthorized},
		{"links ok", "/api/links", "Bearer secret", http.StatusOK},
		{"logs no auth", "/api/logs", "", http.StatusUnauthorized},
		{"logs ok", "/api/logs", "Bearer secret", http.StatusOK},
		{"health is public", "/api/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(srv, http.MethodGet, tt.path, tt.auth).Code)
		})
	}
}

func TestGetLogs(t *testing.T) {
	buf := logbuf.New(10)
	now := time.Now()
	buf.Write(entry(now, "DEBUG", "dispatcher", "skip"))
	buf.Write(entry(now, "INFO", "dispatcher", "ticket created"))
	buf.Write(entry(now, "ERROR", "reconciler", "post failed"))

	srv, _ := newTestServer(t, newTestLinks(t), "", buf)

	var entries []logbuf.Entry
	w := do(srv, http.MethodGet, "/api/logs?level=info", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Len(t, entries, 2)

	entries = nil
	w = do(srv, http.MethodGet, "/api/logs?component=reconciler", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "post failed", entries[0].Message)

	entries = nil
	w = do(srv, http.MethodGet, "/api/logs?limit=1", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0].Level)
}

func TestGetLogsNoBuffer(t *testing.T) {
	srv, _ := newTestServer(t, newTestLinks(t), "", nil)

	w := do(srv, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func entry(at time.Time, level, component, msg string) logbuf.Entry {
	return logbuf.Entry{Time: at, Level: level, Component: component, Message: msg}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
