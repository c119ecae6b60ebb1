// Package devproxy forwards requests to the Vite dev server.
package devproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// ErrInvalidTarget is returned for a target that is not an absolute
// http(s) URL.
var ErrInvalidTarget = errors.New("invalid dev server URL")

// Proxy is a reverse proxy to the dev server. HMR websocket upgrades are
// passed through by httputil.ReverseProxy.
type Proxy struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// New returns a Proxy forwarding to target, e.g. http://localhost:5173.
func New(target string, logger *slog.Logger) (*Proxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTarget, target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q: want http(s)://host[:port]", ErrInvalidTarget, target)
	}

	p := &Proxy{target: u, logger: logger}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			// Vite checks Host against its allow list; keep the one it
			// listens on.
			pr.Out.Host = u.Host
		},
		ErrorHandler: p.handleError,
	}
	return p, nil
}

// Target returns the upstream URL.
func (p *Proxy) Target() *url.URL {
	return p.target
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Warn("dev server unreachable",
		slog.String("target", p.target.String()),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = fmt.Fprintf(w, "dev server at %s is not reachable; is `pnpm run dev` running?\n", p.target)
}
