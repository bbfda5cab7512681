package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStaticEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/", http.StatusOK, "Phrase hat server is running!"},
		{"hello", "/hello/from/warp", http.StatusOK, "Hello from warp!"},
		{"sum", "/sum/3/4", http.StatusOK, "3 + 4 = 7"},
		{"sum of zeros", "/sum/0/0", http.StatusOK, "0 + 0 = 0"},
		{"sum without overflow", "/sum/4294967295/4294967295", http.StatusOK, "4294967295 + 4294967295 = 8589934590"},
		{"non-numeric operand", "/sum/x/4", http.StatusBadRequest, ""},
		{"negative operand", "/sum/3/-4", http.StatusBadRequest, ""},
		{"operand beyond 32 bits", "/sum/4294967296/1", http.StatusBadRequest, ""},
		{"unknown route", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestTestPage(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func recordRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestRecordPhrases(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, recordRequest("/recordphrases", `{"phrases":["Cat","Hike"]}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "phrases recorded", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")

	snap := s.State().Snapshot()
	assert.Equal(t, []string{"Cat", "Hike"}, snap.Hat)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestRecordPhrasesGameScopedRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, recordRequest("/games/g1/alice/recordphrases", `{"phrases":["Cat"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, recordRequest("/games/g2/bob/recordphrases", `{"phrases":["Dog"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	// Every game shares a single hat.
	assert.Equal(t, []string{"Cat", "Dog"}, s.State().Snapshot().Hat)
}

func TestRecordPhrasesEmptyBatch(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, recordRequest("/recordphrases", `{"phrases":[]}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.State().Len())
	assert.Equal(t, uint64(1), s.State().Snapshot().Version)
}

func TestRecordPhrasesRejectsBadBodies(t *testing.T) {
	s := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed JSON", `{"phrases":`, http.StatusBadRequest},
		{"missing phrases", `{"words":["Cat"]}`, http.StatusBadRequest},
		{"null phrases", `{"phrases":null}`, http.StatusBadRequest},
		{"wrong element type", `{"phrases":[1,2]}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"trailing garbage", `{"phrases":["Cat"]} trailing garbage`, http.StatusBadRequest},
		{"two concatenated messages", `{"phrases":["Cat"]}{"phrases":["Dog"]}`, http.StatusBadRequest},
		{"null element", `{"phrases":[null]}`, http.StatusBadRequest},
		{"oversized", `{"phrases":["` + strings.Repeat("x", 17*1024) + `"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, recordRequest("/recordphrases", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	assert.Zero(t, s.State().Len())
	assert.Zero(t, s.State().Snapshot().Version)
}

// bodyOfSize returns a valid recording body exactly n bytes long.
func bodyOfSize(t *testing.T, n int) string {
	t.Helper()
	const prefix, suffix = `{"phrases":["`, `"]}`
	pad := n - len(prefix) - len(suffix)
	require.GreaterOrEqual(t, pad, 0)
	return prefix + strings.Repeat("x", pad) + suffix
}

func TestRecordPhrasesBodySizeBoundary(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantStatus int
	}{
		{"exactly at the limit", 16 * 1024, http.StatusOK},
		{"one byte over", 16*1024 + 1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			body := bodyOfSize(t, tt.size)
			require.Len(t, body, tt.size)

			rec := serve(s, recordRequest("/recordphrases", body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, 1, s.State().Len())
			} else {
				assert.Zero(t, s.State().Len())
			}
		})
	}
}

func TestRecordPhrasesOversizedWithoutContentLength(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := recordRequest("/recordphrases", `{"phrases":["`+strings.Repeat("x", 17*1024)+`"]}`)
	req.ContentLength = -1

	rec := serve(s, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, s.State().Len())
}

func TestRecordPhrasesHandlerBodyGuard(t *testing.T) {
	s := newTestServer(t, nil, func(cfg *Config) { cfg.MaxBodyBytes = 8 })

	// Invoke the handler directly so the route's BodyLimit middleware is bypassed.
	req := recordRequest("/recordphrases", `{"phrases":["long enough"]}`)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.RecordPhrasesHandler(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, httpErr.Code)
	assert.Zero(t, s.State().Len())
}

func TestRecordPhrasesRateLimited(t *testing.T) {
	s := newTestServer(t, nil, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Enabled: true, Burst: 2, RefillInterval: time.Hour}
	})

	for i := 0; i < 2; i++ {
		rec := serve(s, recordRequest("/recordphrases", `{"phrases":["ok"]}`))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(s, recordRequest("/recordphrases", `{"phrases":["too many"]}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"ok", "ok"}, s.State().Snapshot().Hat)
}

func TestRecordPhrasesNotRateLimitedByDefault(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for i := 0; i < 50; i++ {
		rec := serve(s, recordRequest("/recordphrases", `{"phrases":["ok"]}`))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		require.Equal(t, "phrases recorded", rec.Body.String())
	}
	assert.Equal(t, 50, s.State().Len())
}

func TestGameState(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/gamestate", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hat":[]}`, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get(hatVersionHeader))

	s.recorder.Record("g1", "alice", []string{"Cat", "Hike"})
	s.recorder.Record("g2", "bob", []string{"Dog"})

	for _, path := range []string{"/api/gamestate", "/api/gamestate/g1", "/api/gamestate/unknown"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, path, http.NoBody))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
			assert.JSONEq(t, `{"hat":["Cat","Hike","Dog"]}`, rec.Body.String())
			assert.Equal(t, "2", rec.Header().Get(hatVersionHeader))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, recordRequest("/recordphrases", `{"phrases":["a","b"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "phrasehat_phrases_recorded_total 2")
	assert.Contains(t, body, "phrasehat_hat_size 2")
	assert.Contains(t, body, "phrasehat_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/recordphrases", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, testOrigin)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)

	rec := serve(s, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
