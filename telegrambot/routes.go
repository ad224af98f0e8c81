package telegrambot

import (
	"log/slog"
	"net/http"
)

// NewRouter mounts the webhook at path, the status page at / and the metrics
// endpoint at /metrics, behind permissive CORS. Nil status or metrics leave
// their route unmounted.
func NewRouter(path string, webhook http.Handler, metrics *Metrics, status http.Handler, secretHeader string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, webhook)
	if status != nil && path != "/" {
		mux.Handle("GET /{$}", status)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	return withCORS(mux, secretHeader)
}

// Status is the body of the status page.
type Status struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Mode    string `json:"mode"`
	Version string `json:"version"`
}

// NewStatusHandler reports the run mode and health. It answers 503 while
// healthy returns false, so orchestrators can use it as a liveness check.
func NewStatusHandler(mode string, healthy func() bool, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "status")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := Status{
			OK:      healthy == nil || healthy(),
			Service: "Volleyball Bot",
			Mode:    mode,
			Version: Version,
		}
		code := http.StatusOK
		if !st.OK {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, logger, code, st)
	})
}

// withCORS allows any origin and answers preflight requests itself.
func withCORS(next http.Handler, secretHeader string) http.Handler {
	if secretHeader == "" {
		secretHeader = DefaultSecretHeader
	}
	allowHeaders := "X-Requested-With, " + secretHeader

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
