package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the full HTTP handler: routes wrapped in security headers, CORS,
// and request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(WithCORS(WithSecurityHeaders(mux), a.cfg, a.log), a.log)
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if a.pool != nil {
			if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	mux.Handle("/ws", a.ws)

	a.uploads.Register(mux)

	// Blobs are served locally only when the public base is a path on this server.
	if prefix := strings.TrimRight(a.cfg.BlobPublicURL, "/"); strings.HasPrefix(prefix, "/") {
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(a.cfg.BlobDir)))
		mux.Handle("GET "+prefix+"/", noDirListing(files))
	}
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
