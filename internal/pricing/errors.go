package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrCouponExpired        = errors.New("coupon has expired")
	ErrCouponUsageLimit     = errors.New("coupon usage limit reached")
	ErrCouponBelowMinimum   = errors.New("order below coupon minimum")
	ErrCouponGameRestricted = errors.New("coupon not valid for this game")
)

type CouponReason string

const (
	ReasonNotFound       CouponReason = "not_found"
	ReasonExpired        CouponReason = "expired"
	ReasonUsageLimit     CouponReason = "usage_limit"
	ReasonBelowMinimum   CouponReason = "below_minimum"
	ReasonGameRestricted CouponReason = "game_restricted"
)

// CouponError explains why a coupon cannot be applied.
type CouponError struct {
	Reason    CouponReason
	MinAmount float64 // set for ReasonBelowMinimum
}

func (e *CouponError) Error() string {
	if e.Reason == ReasonBelowMinimum {
		return fmt.Sprintf("minimum order for this coupon is ฿%s", decimal.NewFromFloat(e.MinAmount).String())
	}
	return e.Unwrap().Error()
}

func (e *CouponError) Unwrap() error {
	switch e.Reason {
	case ReasonExpired:
		return ErrCouponExpired
	case ReasonUsageLimit:
		return ErrCouponUsageLimit
	case ReasonBelowMinimum:
		return ErrCouponBelowMinimum
	case ReasonGameRestricted:
		return ErrCouponGameRestricted
	default:
		return ErrCouponNotFound
	}
}
