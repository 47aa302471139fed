// Package http implements the HTTP transport collaborator described in
// spec.md section 6: a thin 1:1 mapping from routes onto the Engine's
// command/query surface. Grounded on generichttp's RouteTable idiom and
// cmd/andorhttp3's chi.NewRouter()+Mount() wiring, adapted to a
// map[MethodPath]http.HandlerFunc bound directly onto a chi.Mux instead of
// goji.io's pat-based router.
package http

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"

	"github.com/eggbot-project/pitctl/eggbot"
)

// MethodPath names one HTTP route: a verb plus a path template.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes onto their handlers, mirroring generichttp's
// RouteTable but keyed by (method, path) instead of path alone so GET and
// POST on the same path can coexist in one table.
type RouteTable map[MethodPath]http.HandlerFunc

// NewRouter builds the chi.Mux implementing the full table in spec.md
// section 6, bound onto e's command/query surface, with CORS applied from
// the CORS_ORIGINS environment variable.
func NewRouter(e *eggbot.Engine) *chi.Mux {
	h := &handlers{engine: e}
	table := RouteTable{
		{http.MethodGet, "/health"}:                   h.health,
		{http.MethodGet, "/status"}:                    h.status,
		{http.MethodGet, "/telemetry"}:                 h.telemetry,
		{http.MethodPost, "/setpoint"}:                 h.setSetpoint,
		{http.MethodPost, "/meat_setpoint"}:             h.setMeatSetpoint,
		{http.MethodPost, "/damper"}:                   h.setDamper,
		{http.MethodPost, "/pid_gains"}:                h.setPIDGains,
		{http.MethodGet, "/pi/system/status"}:          h.systemStatus,
		{http.MethodPost, "/pi/pid/preset/load"}:       h.loadPreset,
		{http.MethodPost, "/pi/probes/calibrate"}:      h.calibrateProbe,
		{http.MethodPost, "/pi/safety/reset"}:          h.resetSafety,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(corsOrigins()))
	for mp, fn := range table {
		r.Method(mp.Method, mp.Path, fn)
	}
	return r
}

// corsOrigins reads the comma-separated CORS_ORIGINS environment variable
// named in spec.md section 6's configuration table.
func corsOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// corsMiddleware is a small allow-listed-origin gate, in the spirit of
// server/middleware's request-gating middleware style.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	allowSet := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowSet[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowSet[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
