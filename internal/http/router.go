package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cart *CartHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Metrics)
	r.Use(UserID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(MaxBody(cfg.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Delete("/", cart.ClearCart)
			r.Post("/items", cart.AddItem)
			r.Post("/items/{id}/decrement", cart.DecrementItem)
			r.Delete("/items/{id}", cart.RemoveItem)
			r.Post("/checkout", cart.Checkout)
		})
	})

	return otelhttp.NewHandler(r, "lineitems-http")
}
