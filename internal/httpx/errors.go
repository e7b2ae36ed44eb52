package httpx

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/installments"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/orders"
	"github.com/ariefcatur/atee-topup/internal/pricing"
)

// writeDomainError maps validation and lookup failures to client errors.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var couponErr *pricing.CouponError
	var formErr *model.FormError
	switch {
	case errors.As(err, &couponErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": couponErr.Error(), "reason": couponErr.Reason,
		})
	case errors.As(err, &formErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": formErr.Error(), "problems": formErr.Problems,
		})
	case errors.Is(err, orders.ErrIllegalTransition),
		errors.Is(err, orders.ErrPaymentNotExpected),
		errors.Is(err, installments.ErrPlanCancelled),
		errors.Is(err, installments.ErrPlanExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrPackageNotFound),
		errors.Is(err, installments.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrMaintenance):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, orders.ErrNothingToOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInstallmentNotAllowed),
		errors.Is(err, orders.ErrInstallmentsDisabled),
		errors.Is(err, orders.ErrUnknownTopupType),
		errors.Is(err, orders.ErrMissingSlip),
		errors.Is(err, installments.ErrInvalidAmount),
		errors.Is(err, installments.ErrNotInstallmentOrder),
		errors.Is(err, installments.ErrInstallmentNotAllowed),
		errors.Is(err, installments.ErrBelowMinimum):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
