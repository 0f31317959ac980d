// Package httpapi serves the operator status page, health and metrics
// endpoints, the LINE webhook and optional pprof handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

// StatusView is everything the status endpoints render.
type StatusView struct {
	Platform  string             `json:"platform"`
	StartedAt time.Time          `json:"started_at"`
	Now       time.Time          `json:"now"`
	Store     reminder.Stats     `json:"store"`
	Persist   persistence.Status `json:"persistence"`
	Scheduler scheduler.Status   `json:"scheduler"`
	// Healthy is false once a supervised component has failed.
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Deps are the handlers and data sources mounted by Router. Nil handlers
// leave their route unmounted.
type Deps struct {
	Status   func() StatusView
	Metrics  http.Handler
	Webhook  http.Handler
	Location *time.Location
}

func Router(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(log))

	r.Get("/", statusPage(deps))
	r.Get("/healthz", health(deps))
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, view(deps))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/callback", deps.Webhook)
	}
	if cfg.Pprof {
		r.Group(func(r chi.Router) {
			r.Use(withAuth(cfg.PprofToken))
			r.Mount("/debug", middleware.Profiler())
		})
	}
	return r
}

func view(deps Deps) StatusView {
	if deps.Status == nil {
		return StatusView{Now: time.Now(), Healthy: true}
	}
	return deps.Status()
}

func health(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := view(deps)
		code := http.StatusOK
		status := "ok"
		if !v.Healthy {
			code = http.StatusServiceUnavailable
			status = "degraded"
		}
		body := map[string]any{
			"status":     status,
			"platform":   v.Platform,
			"uptime_sec": int64(v.Now.Sub(v.StartedAt).Seconds()),
			"pending":    v.Store.Pending,
		}
		if v.Error != "" {
			body["error"] = v.Error
		}
		respondJSON(w, code, body)
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("dur", time.Since(start)),
			}
			if ww.Status() >= 500 {
				log.Warn("http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
// An empty token disables the check.
func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
