package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/rules"
	"github.com/vyrodovalexey/qkrun/internal/store"
)

func init() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

const testRules = `default: https://www.google.com/search?q=%q
g: https://www.google.com/search?q=%q
d: https://duckduckgo.com/?q=%q
help: { q: "https://qk.run/%hash", alias: ["edit", "list"] }
`

type testEnv struct {
	server  *Server
	store   *store.MemoryStore
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config), opts ...Option) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.SaveRateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemoryStore()
	m := observability.NewMetrics("")
	m.InitVecMetrics(rules.OutcomeMatched, rules.OutcomeFallback)

	opts = append([]Option{WithMetrics(m)}, opts...)
	srv, err := New(cfg, st, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{server: srv, store: st, metrics: m}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (e *testEnv) save(t *testing.T, value string) string {
	t.Helper()

	w := e.do(saveRequestFor(t, value, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Body.String()
}

func saveRequestFor(t *testing.T, value, query string) *http.Request {
	t.Helper()

	body, err := json.Marshal(map[string]string{"value": value})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/save"+query, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) scrape(t *testing.T) string {
	t.Helper()

	w := e.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, store.NewMemoryStore())
	assert.Error(t, err)

	_, err = New(config.Default(), nil)
	assert.Error(t, err)
}

func TestRedirect_Examples(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	id := env.save(t, testRules)
	require.Equal(t, store.ContentID(testRules), id)

	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name:     "keyword encodes the remainder",
			query:    "g+hello+world",
			expected: "https://www.google.com/search?q=hello%20world",
		},
		{
			name:     "unknown keyword falls back with the whole query",
			query:    "foo+bar",
			expected: "https://www.google.com/search?q=foo%20bar",
		},
		{
			name:     "alias expands the config hash",
			query:    "edit",
			expected: "https://qk.run/" + id,
		},
		{
			name:     "percent-encoded query",
			query:    "d+a%26b%3Dc",
			expected: "https://duckduckgo.com/?q=a%26b%3Dc",
		},
		{
			name:     "empty query falls back",
			query:    "",
			expected: "https://www.google.com/search?q=",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := env.get("/q/" + id + "?q=" + tt.query)

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tt.expected, w.Header().Get("Location"))
		})
	}
}

func TestRedirect_RecordsOutcome(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	id := env.save(t, testRules)

	env.get("/q/" + id + "?q=g+x")
	env.get("/q/" + id + "?q=g+y")
	env.get("/q/" + id + "?q=nothing")

	body := env.scrape(t)
	assert.Contains(t, body, `qkrun_resolutions_total{outcome="matched"} 2`)
	assert.Contains(t, body, `qkrun_resolutions_total{outcome="fallback"} 1`)
	assert.Contains(t, body, `qkrun_http_requests_total{method="GET",route="/q/:id",status="303"} 3`)
}

func TestRedirect_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	id := env.save(t, testRules)

	broken, err := env.store.Put(context.Background(), "g: [https://a.example]")
	require.NoError(t, err)

	tests := []struct {
		name     string
		target   string
		expected int
	}{
		{name: "missing q", target: "/q/" + id, expected: http.StatusBadRequest},
		{name: "unknown id", target: "/q/" + store.ContentID("nothing here") + "?q=g", expected: http.StatusNotFound},
		{name: "malformed id", target: "/q/not-an-id?q=g", expected: http.StatusNotFound},
		{name: "stored config does not parse", target: "/q/" + broken + "?q=g", expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := env.get(tt.target)

			assert.Equal(t, tt.expected, w.Code)
			assert.Empty(t, w.Header().Get("Location"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, http.StatusText(tt.expected), body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	t.Run("returns the content id as text", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.do(saveRequestFor(t, testRules, ""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Equal(t, store.ContentID(testRules), w.Body.String())
		assert.Equal(t, 1, env.store.Len())
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.do(saveRequestFor(t, testRules, "?format=json"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%q}`, store.ContentID(testRules)), w.Body.String())
	})

	t.Run("saving twice is idempotent", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		first := env.save(t, testRules)
		second := env.save(t, testRules)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, env.store.Len())
	})

	t.Run("invalid config names the key and leaves the store untouched", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.do(saveRequestFor(t, `help: { alias: ["edit"] }`, ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Bad Request", body["error"])
		assert.Equal(t, "help", body["key"])
		assert.NotEmpty(t, body["reason"])
		assert.Equal(t, 0, env.store.Len())
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.do(saveRequestFor(t, "g: [unclosed", ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, env.store.Len())
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		for _, body := range []string{"not json", `{}`, `{"value": 42}`} {
			req := httptest.NewRequest(http.MethodPost, "/save", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			w := env.do(req)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
		assert.Equal(t, 0, env.store.Len())
	})

	t.Run("body over limit", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 64 })
		w := env.do(saveRequestFor(t, "g: https://example.com/?q=%q\n"+strings.Repeat("# pad\n", 20), ""))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, 0, env.store.Len())
	})

	t.Run("streamed body over limit", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 64 })
		body := `{"value": "` + strings.Repeat("x", 128) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/save", io.NopCloser(strings.NewReader(body)))
		req.ContentLength = -1

		w := env.do(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestSave_RateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.SaveRateLimit = config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.001,
			Burst:             1,
		}
	})

	env.save(t, testRules)

	w := env.do(saveRequestFor(t, testRules, ""))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Only saves are limited.
	assert.Equal(t, http.StatusOK, env.get("/").Code)

	assert.Contains(t, env.scrape(t), `qkrun_rate_limit_hits_total{route="/save"} 1`)
}

func TestEditor(t *testing.T) {
	t.Parallel()

	t.Run("index shows the starter config", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.get("/")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		body := w.Body.String()
		assert.Contains(t, body, "<title>qk.run - search bar superpowers</title>")
		assert.Contains(t, body, `content="https://qk.run/"`)
		assert.Contains(t, body, "default: https://www.google.com/search?q=%q")
	})

	t.Run("custom starter and title", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(cfg *config.Config) {
			cfg.Editor.Title = "my shortcuts"
			cfg.Server.PublicURL = "https://go.example.com"
		}, WithStarter(StaticText("x: https://x.example/<%q>")))
		body := env.get("/").Body.String()

		assert.Contains(t, body, "<title>my shortcuts</title>")
		assert.Contains(t, body, `data-base-url="https://go.example.com/"`)
		assert.Contains(t, body, "x: https://x.example/&lt;%q&gt;")
	})

	t.Run("saved config", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		id := env.save(t, "mine: https://mine.example/?q=%q")

		w := env.get("/" + id)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "mine: https://mine.example/?q=%q")
		assert.Contains(t, w.Body.String(), `data-config-id="`+id+`"`)
	})

	t.Run("unknown config", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		assert.Equal(t, http.StatusNotFound, env.get("/"+store.ContentID("nope")).Code)
		assert.Equal(t, http.StatusNotFound, env.get("/nope").Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	t.Run("enabled by default", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		w := env.get("/")

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, config.DefaultContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(cfg *config.Config) {
			cfg.Server.SecurityHeaders.Enabled = false
		})
		w := env.get("/")

		assert.Empty(t, w.Header().Get("X-Content-Type-Options"))
		assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	})
}

func TestStaticAssets(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	w := env.get("/favicon.ico")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/x-icon", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = env.get("/assets/style.css")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/css")

	w = env.get("/assets/editor.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/save?format=json")

	assert.Equal(t, http.StatusNotFound, env.get("/assets/missing.css").Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	w := env.get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = env.get("/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store"`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *config.Config) { cfg.Metrics.Enabled = false })

	// With metrics off, /metrics is just an unknown config id.
	assert.Equal(t, http.StatusNotFound, env.get("/metrics").Code)
}

func TestStoreFailures(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.SaveRateLimit.Enabled = false

	st := &failingStore{err: fmt.Errorf("%w: redis get: connection refused", store.ErrUnavailable)}
	srv, err := New(cfg, st)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q/"+store.ContentID("x")+"?q=g", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, saveRequestFor(t, testRules, ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRedirect_ReadsStoreEveryRequest(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.SaveRateLimit.Enabled = false

	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	id, err := st.Put(context.Background(), testRules)
	require.NoError(t, err)

	srv, err := New(cfg, st)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q/"+id+"?q=d+gophers", nil))
		require.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "https://duckduckgo.com/?q=gophers", w.Header().Get("Location"))
	}

	assert.Equal(t, int64(3), st.gets.Load())
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, env.server.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	require.NoError(t, <-errCh)
	assert.False(t, env.server.IsRunning())

	// Second shutdown is a no-op.
	assert.NoError(t, env.server.Shutdown(ctx))
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "not found", err: fmt.Errorf("get: %w", store.ErrNotFound), expected: http.StatusNotFound},
		{name: "unavailable", err: store.ErrUnavailable, expected: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, expected: http.StatusServiceUnavailable},
		{name: "config", err: &rules.ConfigError{Key: "g", Reason: "bad"}, expected: http.StatusBadRequest},
		{name: "other", err: io.ErrUnexpectedEOF, expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, statusForError(tt.err))
		})
	}
}

type failingStore struct {
	err error
}

func (f *failingStore) Get(context.Context, string) (string, error) { return "", f.err }
func (f *failingStore) Put(context.Context, string) (string, error) { return "", f.err }
func (f *failingStore) Ping(context.Context) error                  { return f.err }
func (f *failingStore) Close() error                                { return nil }

type countingStore struct {
	*store.MemoryStore
	gets atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, id string) (string, error) {
	c.gets.Add(1)
	return c.MemoryStore.Get(ctx, id)
}
