package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/orders"
	"github.com/ariefcatur/atee-topup/internal/pricing"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

type ValidateCouponReq struct {
	Code      string  `json:"code"`
	PackageID string  `json:"packageId,omitempty"`
	Amount    float64 `json:"amount,omitempty"` // used when no package is given, e.g. a cart
	GameID    string  `json:"gameId,omitempty"`
}

// VerifyPlayerReq carries the player id directly, or the order form answers
// from which the game's main field is read.
type VerifyPlayerReq struct {
	PlayerID string         `json:"playerId,omitempty"`
	FormData model.FormData `json:"formData,omitempty"`
}

type UpdateStatusReq struct {
	Status           model.OrderStatus `json:"status"`
	AdminNote        string            `json:"adminNote,omitempty"`
	VerificationData any               `json:"verificationData,omitempty"`
}

type SubmitPaymentReq struct {
	Slip   string              `json:"slip"`
	Method model.PaymentMethod `json:"method,omitempty"`
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponReq
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	coupons := syncstore.List[model.Coupon](ctx, h.Store, model.CollectionCoupons)

	var q pricing.Quote
	var err error
	if req.PackageID != "" {
		pkg, ok := syncstore.Find[model.Package](ctx, h.Store, model.CollectionPackages, req.PackageID)
		if !ok {
			writeDomainError(w, r, orders.ErrPackageNotFound)
			return
		}
		q, err = pricing.QuotePackage(pkg, coupons, req.Code, h.Now())
	} else {
		q, err = pricing.QuotePrice(req.Amount, coupons, req.Code, req.GameID, h.Now())
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) verifyPlayer(w http.ResponseWriter, r *http.Request) {
	var req VerifyPlayerReq
	if !decode(w, r, &req) {
		return
	}
	gameID := chi.URLParam(r, "gameId")
	playerID := req.PlayerID
	if playerID == "" {
		playerID = req.FormData.MainID(h.Orders.FormFields(r.Context(), gameID))
	}
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing playerId")
		return
	}
	name, ok := h.Players.VerifyPlayer(r.Context(), gameID, playerID)
	if !ok {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// flashSales lists the active games whose flash sale is still running.
func (h *Handler) flashSales(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	out := []model.Game{}
	for _, g := range syncstore.List[model.Game](r.Context(), h.Store, model.CollectionGames) {
		if g.Active && pricing.GameFlashSaleActive(g, now) {
			out = append(out, g)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) gameForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orders.FormFields(r.Context(), chi.URLParam(r, "gameId")))
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) userOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orders.UserOrders(r.Context(), chi.URLParam(r, "userId")))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.AdminNote, req.VerificationData)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	var req SubmitPaymentReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.SubmitPayment(r.Context(), chi.URLParam(r, "id"), req.Slip, req.Method)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
