package httpx

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/atee-topup/internal/installments"
	"github.com/ariefcatur/atee-topup/internal/orders"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
	"github.com/ariefcatur/atee-topup/internal/verify"
)

type Handler struct {
	Store   *syncstore.SyncStore
	Orders  *orders.Ledger
	Plans   *installments.Tracker
	Players *verify.Client
	Now     func() time.Time
	// Timeout bounds every route except the event stream.
	Timeout time.Duration
}

func (h *Handler) Register(r chi.Router) {
	if h.Now == nil {
		h.Now = time.Now
	}
	r.Get("/collections/{name}/stream", h.streamCollection)

	r.Group(func(r chi.Router) {
		if h.Timeout > 0 {
			r.Use(middleware.Timeout(h.Timeout))
		}
		r.Get("/collections/{name}", h.getCollection)
		r.Get("/outbox", h.listOutbox)
		r.Get("/outbox/{id}", h.getOutboxEntry)

		r.Post("/coupons/validate", h.validateCoupon)
		r.Post("/verify/{gameId}", h.verifyPlayer)
		r.Get("/games/{gameId}/form", h.gameForm)
		r.Get("/flash-sales", h.flashSales)

		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Post("/orders/{id}/payment", h.submitPayment)
		r.Get("/users/{userId}/orders", h.userOrders)
		r.Get("/users/{userId}/installments", h.userInstallments)

		r.Post("/installments", h.openInstallment)
		r.Get("/installments/{id}", h.getInstallment)
		r.Post("/installments/{id}/payments", h.payInstallment)
		r.Post("/installments/{id}/cancel", h.cancelInstallment)
	})
}
