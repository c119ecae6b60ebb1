// Package compat holds the dev-server compatibility guard. Chrome 129 has a
// bug with JavaScript modules that breaks Vite local development, so requests
// from that browser get a static explanation page instead of the app.
//
// The guard fails open: a missing or unrecognised user agent always passes.
package compat

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BrokenChromiumMajor is the only browser major version the guard intercepts.
const BrokenChromiumMajor = 129

// Page is the body written for intercepted requests.
const Page = `<body><h1>Please use Chrome Canary for testing.</h1><p>Chrome 129 has an issue with JavaScript modules & Vite local development, see <a href="https://github.com/stackblitz/bolt.new/issues/86#issuecomment-2395519258">for more information.</a></p><p><b>Note:</b> This only impacts <u>local development</u>. ` + "`pnpm run build`" + ` and ` + "`pnpm run start`" + ` will work fine in this browser.</p></body>`

var chromiumVersion = regexp.MustCompile(`Chrom(e|ium)/([0-9]+)\.`)

// Decision is the outcome of classifying one request.
type Decision string

const (
	// PassNoUserAgent: the request carried no User-Agent header.
	PassNoUserAgent Decision = "pass-no-ua"
	// PassNoMatch: the user agent names no Chrome or Chromium version.
	PassNoMatch Decision = "pass-no-match"
	// PassVersion: a Chromium version other than BrokenChromiumMajor.
	PassVersion Decision = "pass-version"
	// Intercepted: Chromium BrokenChromiumMajor; the guard wrote Page.
	Intercepted Decision = "intercepted"
)

// Handled reports whether the guard answered the request itself.
func (d Decision) Handled() bool {
	return d == Intercepted
}

// Observer receives every decision the guard makes. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDecision(d Decision)
}

// ChromiumMajor extracts the major version following "Chrome/" or
// "Chromium/" in a user agent. ok is false when there is no match or the
// digits do not fit an int.
func ChromiumMajor(userAgent string) (major int, ok bool) {
	m := chromiumVersion.FindStringSubmatch(userAgent)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(m[2], 10, 0)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// Classify decides what the guard would do with a user agent header value.
// present is false when the request carried no user-agent header at all.
func Classify(userAgent string, present bool) Decision {
	if !present {
		return PassNoUserAgent
	}
	major, ok := ChromiumMajor(userAgent)
	if !ok {
		return PassNoMatch
	}
	if major != BrokenChromiumMajor {
		return PassVersion
	}
	return Intercepted
}

// Guard is an HTTP request gate. It holds no mutable state; one Guard can
// serve any number of concurrent requests.
type Guard struct {
	observer Observer
	logger   *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithObserver reports each decision to o.
func WithObserver(o Observer) Option {
	return func(g *Guard) { g.observer = o }
}

// WithLogger logs intercepted requests at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// New returns a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check classifies r and, for the broken browser, writes the explanation page
// to w. It returns true when the response has been written and the request
// must not continue down the chain.
func (g *Guard) Check(w http.ResponseWriter, r *http.Request) bool {
	ua, present := userAgent(r)
	d := Classify(ua, present)
	if g.observer != nil {
		g.observer.ObserveDecision(d)
	}
	if !d.Handled() {
		return false
	}

	span := trace.SpanFromContext(r.Context())
	span.AddEvent("compat.intercepted", trace.WithAttributes(
		attribute.Int("browser.chromium_major", BrokenChromiumMajor),
	))
	if g.logger != nil {
		g.logger.Debug("compat guard intercepted request",
			slog.String("path", r.URL.Path),
			slog.String("user_agent", ua),
		)
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Page)
	return true
}

// Middleware wraps next so that it only runs for requests the guard lets
// through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Check(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userAgent returns the first user-agent value. Header lookup is
// case-insensitive through the canonical key.
func userAgent(r *http.Request) (string, bool) {
	vals, ok := r.Header["User-Agent"]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}
