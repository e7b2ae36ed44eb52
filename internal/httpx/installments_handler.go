package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/atee-topup/internal/installments"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/orders"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

type OpenInstallmentReq struct {
	OrderID      string  `json:"orderId"`
	FirstPayment float64 `json:"firstPayment"`
	Slip         string  `json:"slip,omitempty"`
}

type InstallmentPaymentReq struct {
	Amount float64 `json:"amount"`
	Slip   string  `json:"slip,omitempty"`
}

type InstallmentResp struct {
	model.Installment
	Progress  float64 `json:"progress"`
	Remaining float64 `json:"remaining"`
}

func installmentResp(inst model.Installment) InstallmentResp {
	return InstallmentResp{
		Installment: inst,
		Progress:    installments.Progress(inst),
		Remaining:   installments.Remaining(inst),
	}
}

func (h *Handler) openInstallment(w http.ResponseWriter, r *http.Request) {
	var req OpenInstallmentReq
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	o, ok := h.Orders.Get(ctx, req.OrderID)
	if !ok {
		writeDomainError(w, r, orders.ErrOrderNotFound)
		return
	}
	pkg, ok := syncstore.Find[model.Package](ctx, h.Store, model.CollectionPackages, o.PackageID)
	if !ok {
		writeDomainError(w, r, orders.ErrPackageNotFound)
		return
	}
	inst, err := h.Plans.Open(ctx, o, pkg, req.FirstPayment, req.Slip)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, installmentResp(*inst))
}

func (h *Handler) getInstallment(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.Plans.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, r, installments.ErrPlanNotFound)
		return
	}
	writeJSON(w, http.StatusOK, installmentResp(inst))
}

func (h *Handler) userInstallments(w http.ResponseWriter, r *http.Request) {
	list := h.Plans.ForUser(r.Context(), chi.URLParam(r, "userId"))
	out := make([]InstallmentResp, 0, len(list))
	for _, inst := range list {
		out = append(out, installmentResp(inst))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) payInstallment(w http.ResponseWriter, r *http.Request) {
	var req InstallmentPaymentReq
	if !decode(w, r, &req) {
		return
	}
	inst, ok := h.Plans.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, r, installments.ErrPlanNotFound)
		return
	}
	updated, err := h.Plans.RecordPayment(r.Context(), inst, req.Amount, req.Slip)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installmentResp(*updated))
}

func (h *Handler) cancelInstallment(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.Plans.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, r, installments.ErrPlanNotFound)
		return
	}
	updated, err := h.Plans.Cancel(r.Context(), inst)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installmentResp(*updated))
}
