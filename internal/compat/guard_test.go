package compat_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/devgate/internal/compat"
	"github.com/shaharia-lab/devgate/internal/compat/mocks"
)

const (
	chrome129 = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.1234.56 Safari/537.36"
	chrome128 = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.6613.84 Safari/537.36"
	firefox   = "Mozilla/5.0 (X11; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0"
)

// nextRecorder is a downstream handler that remembers whether it ran.
type nextRecorder struct {
	called int
}

func (n *nextRecorder) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	n.called++
	w.WriteHeader(http.StatusTeapot)
}

func serve(t *testing.T, g *compat.Guard, ua *string) (*httptest.ResponseRecorder, *nextRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if ua != nil {
		req.Header.Set("User-Agent", *ua)
	}
	next := &nextRecorder{}
	w := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(w, req)
	return w, next
}

func ptr(s string) *string { return &s }

func TestChromiumMajor(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		want   int
		wantOK bool
	}{
		{"chrome 129", chrome129, 129, true},
		{"chrome 128", chrome128, 128, true},
		{"chromium", "Mozilla/5.0 Chromium/130.0.0.0 Safari/537.36", 130, true},
		{"large version", "Chrome/99999.1", 99999, true},
		{"four digits starting with 129", "Chrome/1290.0", 1290, true},
		{"dotted short version", "Chrome/12.9", 12, true},
		{"leading zeros", "Chrome/0129.0", 129, true},
		{"no trailing dot", "Chrome/129", 0, false},
		{"firefox", firefox, 0, false},
		{"empty", "", 0, false},
		{"lowercase product", "chrome/129.0", 0, false},
		{"overflowing digits", "Chrome/99999999999999999999999.0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := compat.ChromiumMajor(tt.ua)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		present bool
		want    compat.Decision
	}{
		{"header absent", "", false, compat.PassNoUserAgent},
		{"header empty", "", true, compat.PassNoMatch},
		{"firefox", firefox, true, compat.PassNoMatch},
		{"chrome 128", chrome128, true, compat.PassVersion},
		{"chrome 130", "Chrome/130.0.0.0", true, compat.PassVersion},
		{"chrome 1290", "Chrome/1290.0", true, compat.PassVersion},
		{"chrome 12.9", "Chrome/12.9.0", true, compat.PassVersion},
		{"chrome 129", chrome129, true, compat.Intercepted},
		{"chromium 129", "Chromium/129.0.6668.58", true, compat.Intercepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := compat.Classify(tt.ua, tt.present)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.want == compat.Intercepted, d.Handled())
		})
	}
}

func TestGuard_PassesWithoutUserAgent(t *testing.T) {
	w, next := serve(t, compat.New(), nil)

	assert.Equal(t, 1, next.called)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestGuard_PassesThrough(t *testing.T) {
	for _, ua := range []string{firefox, chrome128, "Chrome/130.0", "Chrome/99999.0", "Chrome/1290.1", "Chrome/12.9", "curl/8.5.0", ""} {
		t.Run(ua, func(t *testing.T) {
			w, next := serve(t, compat.New(), ptr(ua))

			assert.Equal(t, 1, next.called)
			assert.Equal(t, http.StatusTeapot, w.Code)
			assert.NotContains(t, w.Body.String(), "Chrome Canary")
		})
	}
}

func TestGuard_InterceptsChrome129(t *testing.T) {
	w, next := serve(t, compat.New(), ptr(chrome129))

	assert.Equal(t, 0, next.called)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Please use Chrome Canary for testing")
	assert.Equal(t, compat.Page, w.Body.String())
}

func TestGuard_HeaderNameIsCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("user-agent", chrome129)
	w := httptest.NewRecorder()

	handled := compat.New().Check(w, req)

	assert.True(t, handled)
	assert.Equal(t, "text/html", w.Header().Get("Content-Type"))
}

func TestGuard_IsIdempotent(t *testing.T) {
	g := compat.New()
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.Header.Set("User-Agent", chrome129)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		require.True(t, g.Check(w, req), "attempt %d", i)
		assert.Equal(t, compat.Page, w.Body.String())
	}

	req.Header.Set("User-Agent", chrome128)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		require.False(t, g.Check(w, req), "attempt %d", i)
		assert.Zero(t, w.Body.Len())
	}
}

func TestGuard_ReportsDecisions(t *testing.T) {
	tests := []struct {
		name string
		ua   *string
		want compat.Decision
	}{
		{"no header", nil, compat.PassNoUserAgent},
		{"no match", ptr(firefox), compat.PassNoMatch},
		{"other version", ptr(chrome128), compat.PassVersion},
		{"broken version", ptr(chrome129), compat.Intercepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := new(mocks.MockObserver)
			obs.On("ObserveDecision", tt.want).Return().Once()

			serve(t, compat.New(compat.WithObserver(obs)), tt.ua)

			obs.AssertExpectations(t)
		})
	}
}
