// Package pricing computes what a buyer pays: effective package price, coupon
// eligibility, discount and order total.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/atee-topup/internal/model"
)

var dec100 = decimal.NewFromInt(100)

// EffectivePrice is the flash-sale price when the package is on flash sale
// with a non-zero override, else the list price.
func EffectivePrice(p model.Package) float64 {
	if p.IsFlashSale && p.FlashSalePrice != nil && *p.FlashSalePrice != 0 {
		return *p.FlashSalePrice
	}
	return p.Price
}

// GameFlashSaleActive reports whether a game-level flash sale is running at now.
func GameFlashSaleActive(g model.Game, now time.Time) bool {
	if !g.IsFlashSale {
		return false
	}
	return g.FlashSaleEnd == 0 || now.Before(time.UnixMilli(g.FlashSaleEnd))
}

// FindCoupon looks up an active coupon by code, ignoring case and surrounding spaces.
func FindCoupon(coupons []model.Coupon, code string) *model.Coupon {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	for i := range coupons {
		if coupons[i].Active && strings.EqualFold(coupons[i].Code, code) {
			c := coupons[i]
			return &c
		}
	}
	return nil
}

// ValidateCoupon checks, in order: existence, expiry, usage, minimum amount
// and game restriction. nil means the coupon applies.
func ValidateCoupon(c *model.Coupon, effectivePrice float64, gameID string, now time.Time) *CouponError {
	if c == nil || !c.Active {
		return &CouponError{Reason: ReasonNotFound}
	}
	if !now.Before(time.UnixMilli(c.ExpiryDate)) {
		return &CouponError{Reason: ReasonExpired}
	}
	if c.UsedCount >= c.UsageLimit {
		return &CouponError{Reason: ReasonUsageLimit}
	}
	if c.MinAmount != nil && effectivePrice < *c.MinAmount {
		return &CouponError{Reason: ReasonBelowMinimum, MinAmount: *c.MinAmount}
	}
	if c.SpecificGameID != "" && c.SpecificGameID != gameID {
		return &CouponError{Reason: ReasonGameRestricted}
	}
	return nil
}

// ComputeDiscount is price*value/100 capped by maxDiscount for PERCENT
// coupons and the flat value for FIXED ones. A missing or non-positive cap
// means no cap.
func ComputeDiscount(c model.Coupon, effectivePrice float64) float64 {
	if c.DiscountType != model.DiscountPercent {
		return c.DiscountValue
	}
	d := decimal.NewFromFloat(effectivePrice).
		Mul(decimal.NewFromFloat(c.DiscountValue)).
		Div(dec100)
	if c.MaxDiscount != nil && *c.MaxDiscount > 0 {
		d = decimal.Min(d, decimal.NewFromFloat(*c.MaxDiscount))
	}
	return d.InexactFloat64()
}

// ComputeTotal never goes below zero.
func ComputeTotal(effectivePrice, discount float64) float64 {
	t := decimal.NewFromFloat(effectivePrice).Sub(decimal.NewFromFloat(discount))
	if t.IsNegative() {
		return 0
	}
	return t.InexactFloat64()
}

// CartTotal sums the line prices.
func CartTotal(items []model.OrderItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price))
	}
	return sum.InexactFloat64()
}

// Multiply returns price*qty without float drift.
func Multiply(price float64, qty int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).InexactFloat64()
}

type Quote struct {
	EffectivePrice float64       `json:"effectivePrice"`
	Discount       float64       `json:"discount"`
	Total          float64       `json:"total"`
	Coupon         *model.Coupon `json:"coupon,omitempty"`
}

// QuotePrice prices amount with an optional coupon code. An empty code
// means no coupon; an unknown code is an error.
func QuotePrice(amount float64, coupons []model.Coupon, code, gameID string, now time.Time) (Quote, error) {
	q := Quote{EffectivePrice: amount, Total: amount}
	if strings.TrimSpace(code) == "" {
		return q, nil
	}
	c := FindCoupon(coupons, code)
	if cerr := ValidateCoupon(c, amount, gameID, now); cerr != nil {
		return q, cerr
	}
	q.Coupon = c
	q.Discount = ComputeDiscount(*c, amount)
	q.Total = ComputeTotal(amount, q.Discount)
	return q, nil
}

// QuotePackage prices a single package.
func QuotePackage(p model.Package, coupons []model.Coupon, code string, now time.Time) (Quote, error) {
	return QuotePrice(EffectivePrice(p), coupons, code, p.GameID, now)
}
