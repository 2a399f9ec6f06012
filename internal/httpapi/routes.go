package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-arena-backend/internal/gateway"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/ws"
)

type Deps struct {
	Hub      *hub.Hub
	Registry *identity.Registry
	Gateway  *gateway.Gateway
	Logger   *zap.Logger
	WS       ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Gateway, d.Logger, d.WS))

	// Ops
	r.Get("/stats", Stats(d.Hub, d.Registry))
	r.Handle("/metrics", promhttp.Handler())
	return r
}
