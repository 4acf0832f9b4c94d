// Package gateway turns the edge router into a reverse proxy over the
// backend services, with response caching for public reads.
package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/httpserver"
)

// NewProxy builds a reverse proxy for one upstream. Upstream failures
// surface as 502 in the standard error envelope instead of a bare
// proxy error page.
func NewProxy(target *url.URL, name string, log *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		rid := httpserver.RequestIDFromContext(r.Context())
		log.Warn("upstream unreachable",
			zap.String("upstream", name),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		api.WriteError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "service temporarily unavailable", rid, nil)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	proxy.Transport = transport

	return proxy
}
