// Package httpapi — HTTP-фасад движка: создание заказов, платёжные колбэки,
// операции жизненного цикла и административные ручки.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает chi-роутер с базовыми middleware и маршрутами API.
func NewRouter(h *Handler, healthz http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	if healthz != nil {
		r.Method(http.MethodGet, "/healthz", healthz)
	}
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)

		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/deliver", h.deliverOrder)
		r.Post("/orders/{id}/refund", h.refundOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Post("/orders/{id}/review", h.reviewOrder)
		r.Get("/users/{id}/orders", h.listUserOrders)

		r.Post("/payments/callback", h.paymentCallback)

		r.Post("/admin/sweep", h.adminSweep)
		r.Post("/admin/recompute", h.adminRecompute)
	})

	return r
}
