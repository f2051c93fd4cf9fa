package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/pkg/logging"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("m1"), mark("m2"), mark("m3"))(ok)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"m1", "m2", "m3"}, order)
}

func TestLogger(t *testing.T) {
	tl := logging.NewTestLogger(t)
	h := Logger(tl.Logger)(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	tl.AssertContains(t, "HTTP request")
	tl.AssertContains(t, `"status":204`)
	tl.AssertContains(t, `"path":"/health"`)
}

func TestLoggerKeepsHijacker(t *testing.T) {
	tl := logging.NewTestLogger(t)
	var hijackable bool
	h := Logger(tl.Logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, hijackable = w.(http.Hijacker)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.True(t, hijackable)
}

func TestRequestID(t *testing.T) {
	tl := logging.NewTestLogger(t)
	var seen string
	h := RequestID(Logger(tl.Logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
		logging.FromContext(r.Context()).Info().Msg("inside handler")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	tl.AssertContains(t, `"request_id":"`+seen+`"`)
	tl.AssertContains(t, "inside handler")

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(RequestIDHeader, "from-caller")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "from-caller", seen)
	assert.Equal(t, "from-caller", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	tl := logging.NewTestLogger(t)
	h := Recovery(tl.Logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	tl.AssertContains(t, "Panic recovered")
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORS(ParseOrigins([]string{"*"}), "")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Authorization, Content-Type, Sec-WebSocket-Protocol", w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("listed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("Origin", "https://app.example")
		w := httptest.NewRecorder()
		CORS(ParseOrigins([]string{"https://app.example"}), "X-API-Key")(ok).ServeHTTP(w, r)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
	})

	t.Run("unlisted origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		CORS(ParseOrigins([]string{"https://app.example"}), "")(ok).ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORS(ParseOrigins([]string{"*"}), "")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ws", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestOrigins(t *testing.T) {
	origins := ParseOrigins([]string{" https://App.Example/ ", "*.example.com", ""})
	assert.False(t, origins.Empty())
	assert.True(t, origins.Allows("https://app.example"))
	assert.True(t, origins.Allows("https://db.example.com"))
	assert.True(t, origins.Allows("http://a.b.example.com:8080"))
	assert.False(t, origins.Allows("https://example.com"))
	assert.False(t, origins.Allows("https://other.example"))

	assert.True(t, ParseOrigins(nil).Empty())
	assert.False(t, ParseOrigins(nil).Allows("https://app.example"))
}

func TestCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://db.local:8080/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://db.local:8080", true},
		{"other host", nil, "http://evil.example", false},
		{"listed", []string{"http://app.example"}, "http://app.example", true},
		{"not listed", []string{"http://app.example"}, "http://db.local:8080", false},
		{"wildcard", []string{"*"}, "http://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckOrigin(ParseOrigins(tt.allowed))(request(tt.origin)))
		})
	}
}

func TestRateLimit(t *testing.T) {
	tl := logging.NewTestLogger(t)
	h := RateLimit(NewRateLimiter(2, tl.Logger))(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	tl.AssertContains(t, "Rate limit exceeded")

	// Another address has its own bucket.
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.2:5000"
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitWindowExpires(t *testing.T) {
	rl := newRateLimiter(1, 50*time.Millisecond, logging.NewNopLogger())
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.Eventually(t, func() bool { return rl.allow("10.0.0.1") }, time.Second, 10*time.Millisecond)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestAuth(t *testing.T) {
	tl := logging.NewTestLogger(t)
	cfg := DefaultAuthConfig()
	cfg.Enabled = true
	cfg.APIKey = "s3cret"
	h := Auth(cfg, tl.Logger)(ok)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"public path", "/health", "", "", http.StatusNoContent},
		{"missing key", "/ws", "", "", http.StatusUnauthorized},
		{"wrong key", "/ws", "X-API-Key", "nope", http.StatusUnauthorized},
		{"key header", "/ws", "X-API-Key", "s3cret", http.StatusNoContent},
		{"bearer", "/ws", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"raw authorization", "/ws", "Authorization", "s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			require.Equal(t, tt.want, w.Code)
		})
	}
	tl.AssertContains(t, "Authentication failed")
}

func TestAuthDisabled(t *testing.T) {
	w := httptest.NewRecorder()
	Auth(DefaultAuthConfig(), logging.NewNopLogger())(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
