// Package installments tracks partial payments against installment orders.
package installments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

var (
	ErrPlanCancelled         = errors.New("installment plan is cancelled")
	ErrInvalidAmount         = errors.New("payment amount must be positive")
	ErrNotInstallmentOrder   = errors.New("order is not an installment order")
	ErrInstallmentNotAllowed = errors.New("package does not allow installments")
	ErrBelowMinimum          = errors.New("first payment below the minimum installment")
	ErrPlanNotFound          = errors.New("installment plan not found")
	ErrPlanExists            = errors.New("installment plan already exists")
)

type Store interface {
	syncstore.Fetcher
	Write(ctx context.Context, collection string, entity any) (syncstore.Receipt, error)
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, now: now}
}

// PlanID derives the plan id from the order id, one plan per order.
func PlanID(orderID string) string {
	return "INS-" + strings.TrimPrefix(orderID, "AT-")
}

// Open starts a plan for an installment order, recording the first payment
// when there is one.
func (t *Tracker) Open(ctx context.Context, order model.Order, pkg model.Package, firstPayment float64, slip string) (*model.Installment, error) {
	if !order.IsInstallment {
		return nil, ErrNotInstallmentOrder
	}
	if !pkg.AllowInstallment {
		return nil, ErrInstallmentNotAllowed
	}
	if firstPayment < 0 {
		return nil, ErrInvalidAmount
	}
	if pkg.MinInstallmentAmount != nil && firstPayment < *pkg.MinInstallmentAmount {
		return nil, fmt.Errorf("%w (minimum ฿%s)", ErrBelowMinimum, decimal.NewFromFloat(*pkg.MinInstallmentAmount).String())
	}

	if _, ok := t.Get(ctx, PlanID(order.ID)); ok {
		return nil, fmt.Errorf("%w for order %s", ErrPlanExists, order.ID)
	}

	inst := model.Installment{
		ID:          PlanID(order.ID),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.Amount,
		Status:      model.InstallmentActive,
		History:     []model.InstallmentPayment{},
	}
	if firstPayment == 0 {
		if err := t.save(ctx, inst); err != nil {
			return nil, err
		}
		return &inst, nil
	}
	return t.RecordPayment(ctx, inst, firstPayment, slip)
}

// RecordPayment adds amount to the plan. Paying past the total is accepted;
// the plan is simply COMPLETED.
func (t *Tracker) RecordPayment(ctx context.Context, inst model.Installment, amount float64, slip string) (*model.Installment, error) {
	if inst.Status == model.InstallmentCancelled {
		return nil, ErrPlanCancelled
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	paid := decimal.NewFromFloat(inst.PaidAmount).Add(decimal.NewFromFloat(amount))
	inst.PaidAmount = paid.InexactFloat64()
	if paid.GreaterThanOrEqual(decimal.NewFromFloat(inst.TotalAmount)) {
		inst.Status = model.InstallmentCompleted
	} else {
		inst.Status = model.InstallmentActive
	}
	history := make([]model.InstallmentPayment, 0, len(inst.History)+1)
	history = append(history, inst.History...)
	inst.History = append(history, model.InstallmentPayment{Amount: amount, Date: t.now().UnixMilli(), Slip: slip})

	if err := t.save(ctx, inst); err != nil {
		return nil, err
	}
	log.Info().Str("installment_id", inst.ID).Float64("amount", amount).
		Float64("paid", inst.PaidAmount).Str("status", string(inst.Status)).Msg("installment payment recorded")
	return &inst, nil
}

func (t *Tracker) Cancel(ctx context.Context, inst model.Installment) (*model.Installment, error) {
	inst.Status = model.InstallmentCancelled
	if err := t.save(ctx, inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (model.Installment, bool) {
	return syncstore.FindFresh[model.Installment](ctx, t.store, model.CollectionInstallments, id)
}

func (t *Tracker) ForUser(ctx context.Context, userID string) []model.Installment {
	out := []model.Installment{}
	for _, inst := range syncstore.ListFresh[model.Installment](ctx, t.store, model.CollectionInstallments) {
		if inst.UserID == userID {
			out = append(out, inst)
		}
	}
	return out
}

func (t *Tracker) save(ctx context.Context, inst model.Installment) error {
	if _, err := t.store.Write(ctx, model.CollectionInstallments, inst); err != nil {
		return fmt.Errorf("failed to save installment: %w", err)
	}
	return nil
}

// Progress is the paid share in percent, capped at 100.
func Progress(inst model.Installment) float64 {
	if inst.TotalAmount <= 0 {
		return 100
	}
	p := decimal.NewFromFloat(inst.PaidAmount).
		Div(decimal.NewFromFloat(inst.TotalAmount)).
		Mul(decimal.NewFromInt(100))
	if p.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	return p.Round(2).InexactFloat64()
}

// Remaining is what is still owed, never negative.
func Remaining(inst model.Installment) float64 {
	r := decimal.NewFromFloat(inst.TotalAmount).Sub(decimal.NewFromFloat(inst.PaidAmount))
	if r.IsNegative() {
		return 0
	}
	return r.InexactFloat64()
}
