package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"relay/internal/api"
	"relay/internal/metrics"
	"relay/internal/roomdir"
	"relay/internal/session"
)

func New(log *zap.Logger, hub *session.Hub, dir *roomdir.Directory, queueSize int) http.Handler {
	h := api.NewHandlers(log, hub, dir, queueSize)
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)

	r.Post("/api/v1/rooms", h.CreateRoom)
	r.Get("/api/v1/rooms/{id}", h.RoomStatus)

	r.Get("/ws", h.SessionWS)

	r.Handle("/metrics", metrics.Handler())

	return r
}
