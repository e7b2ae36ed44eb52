package orders

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/atee-topup/internal/model"
)

var (
	ErrIllegalTransition     = errors.New("illegal order status transition")
	ErrOrderNotFound         = errors.New("order not found")
	ErrPackageNotFound       = errors.New("package not found")
	ErrNothingToOrder        = errors.New("order has no package")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInstallmentNotAllowed = errors.New("package does not allow installments")
	ErrInstallmentsDisabled  = errors.New("installments are disabled")
	ErrMaintenance           = errors.New("store is under maintenance")
	ErrUnknownTopupType      = errors.New("unknown top-up type")
	ErrMissingSlip           = errors.New("payment slip is required")
	ErrPaymentNotExpected    = errors.New("order is not awaiting payment")
)

type TransitionError struct {
	OrderID string
	From    model.OrderStatus
	To      model.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
