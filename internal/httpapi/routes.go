package httpapi

import (
	"net/http"

	"github.com/fitclash/battle-backend/internal/conn"
	"github.com/fitclash/battle-backend/internal/coordinator"
	"github.com/fitclash/battle-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(svc *coordinator.Service, hub *conn.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	h := &Handler{Svc: svc, Log: log}

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(hub, svc, log))

	r.Route("/battles", func(r chi.Router) {
		r.Post("/", h.CreateBattle)
		r.Post("/quick", h.CreateQuickChallenge)
		r.Get("/", h.ListMyBattles)
		r.Route("/{battleID}", func(r chi.Router) {
			r.Post("/accept", h.Accept)
			r.Post("/decline", h.Decline)
			r.Post("/start", h.Start)
			r.Post("/reps", h.SubmitReps)
			r.Post("/cancel", h.Cancel)
			r.Get("/performances", h.Performances)
		})
	})
	return r
}
