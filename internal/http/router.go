// Package http exposes the products and orders API over HTTP.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/safar/go-tienda/internal/config"
	"github.com/safar/go-tienda/internal/service"
	"github.com/safar/go-tienda/internal/telemetry"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Products *service.ProductService
	Orders   *service.OrderService
	Store    Pinger
	Logger   *slog.Logger
	Server   config.ServerConfig
}

func NewRouter(d Deps) http.Handler {
	products := NewProductHandler(d.Products, d.Logger)
	orders := NewOrderHandler(d.Orders, d.Logger)
	health := NewHealthHandler(d.Store, d.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(d.Logger))
	r.Use(recoverer(d.Logger))
	r.Use(middleware.StripSlashes)
	if d.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.Server.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{"Location", HeaderRequestID},
		MaxAge:         300,
	}))
	r.Use(limitBody(d.Server.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Ruta no encontrada")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Método no permitido")
	})

	r.Get("/", health.Root)
	r.Get("/health", health.Check)

	r.Route("/api", func(r chi.Router) {
		r.Route("/productos", func(r chi.Router) {
			r.Get("/", products.List)
			r.Post("/", products.Create)
			r.Get("/{id}", products.Get)
			r.Put("/{id}", products.Update)
			r.Patch("/{id}", products.Update)
			r.Delete("/{id}", products.Delete)
		})
		r.Route("/pedidos", func(r chi.Router) {
			r.Get("/", orders.List)
			r.Post("/", orders.Create)
			r.Get("/{id}", orders.Get)
			r.Patch("/{id}", orders.Update)
			r.Delete("/{id}", orders.Delete)
		})
	})

	return telemetry.Middleware(r)
}
