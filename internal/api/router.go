package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pairpad/backend/internal/ratelimit"
	"github.com/pairpad/backend/internal/ws"
)

// NewRouter wires the REST surface, the websocket endpoint and the HTTP
// middleware stack.
func NewRouter(a *API, hub *ws.Hub, limiter *ratelimit.Limiter, log *slog.Logger, corsAllow []string) http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware(corsAllow))

	r.Get("/health", a.HealthHandler)

	// Only the REST API is rate limited; health checks and websocket
	// upgrades go straight through.
	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Get("/stats", a.StatsHandler)
		r.Post("/rooms", a.CreateRoomHandler)
		r.Get("/rooms/{roomID}", a.GetRoomHandler)
		r.Post("/autocomplete", a.AutocompleteHandler)
		r.Post("/execute", a.ExecuteHandler)
	})

	r.Get("/ws/rooms/{roomID}/status", a.RoomStatusHandler)
	r.Get("/ws/{roomID}", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(hub, log, w, req)
	})

	return r
}

func corsMiddleware(allow []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allow))
	for _, origin := range allow {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(allowed) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
