// internal/server/router.go
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fleetmaint/internal/access"
	"fleetmaint/internal/httpx"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/maintenance"
)

// Pinger reports backend health for /healthz. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Store       machine.Store
	Transitions machine.TransitionPolicy
	Access      *access.Policy
	Health      Pinger
	Limiter     *ClientRateLimiter
}

// NewRouter wires both handlers under /machines.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Tracing)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	r.Get("/healthz", healthHandler(d.Health))

	var policy maintenance.Authorizer
	if d.Access != nil {
		policy = d.Access
	}
	machines := machine.NewHandler(machine.NewService(d.Store, d.Transitions))
	alarms := maintenance.NewHandler(maintenance.NewService(d.Store, policy))
	r.Route("/machines", func(r chi.Router) {
		machines.Routes(r)
		alarms.Routes(r)
	})

	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.PingContext(r.Context()); err != nil {
				httpx.WriteJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
