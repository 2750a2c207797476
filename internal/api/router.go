package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/hookline/internal/webhook"
	ws "github.com/Priya8975/hookline/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// RouterDeps are the components served over HTTP. Queue, Hub and Metrics are
// optional.
type RouterDeps struct {
	Service *webhook.Service
	Queue   QueueDepther
	Hub     *ws.Hub
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	subHandler := NewSubscriptionHandler(d.Service, d.Logger)
	eventHandler := NewEventHandler(d.Service, d.Logger)
	deliveryHandler := NewDeliveryHandler(d.Service, d.Logger)

	var clients ClientCounter
	if d.Hub != nil {
		clients = d.Hub
		r.Get("/ws", d.Hub.HandleWebSocket)
	}
	dashHandler := NewDashboardHandler(d.Service, d.Queue, clients, d.Logger)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", HealthHandler(Version))

		r.Route("/events", func(r chi.Router) {
			r.Get("/catalog", eventHandler.Catalog)
			r.Post("/", eventHandler.Dispatch)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subHandler.Get)
				r.Patch("/", subHandler.Update)
				r.Delete("/", subHandler.Delete)
				r.Post("/pause", subHandler.Pause)
				r.Post("/resume", subHandler.Resume)
				r.Get("/statistics", subHandler.Statistics)
				r.Get("/health", subHandler.Health)
			})
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Get("/{id}", deliveryHandler.Get)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/subscriptions-health", dashHandler.SubscriptionHealth)
	})

	return r
}
