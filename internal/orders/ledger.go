package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/payment"
	"github.com/ariefcatur/atee-topup/internal/pricing"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

const (
	// MultiID stands in for gameId/packageId on cart orders.
	MultiID = "MULTI"

	userOrdersLimit = 50
)

// Store is the slice of SyncStore the ledger needs.
type Store interface {
	syncstore.Fetcher
	Write(ctx context.Context, collection string, entity any) (syncstore.Receipt, error)
	Merge(ctx context.Context, collection, id string, fields map[string]any) (syncstore.Receipt, error)
	Settings(ctx context.Context) model.SystemSettings
}

type SlipVerifier interface {
	Verify(ctx context.Context, image string, amount float64) payment.SlipResult
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func WithIDGenerator(gen func() string) Option { return func(l *Ledger) { l.newID = gen } }

// Ledger creates orders and moves them through their statuses.
type Ledger struct {
	store Store
	slips SlipVerifier
	now   func() time.Time
	newID func() string
}

func NewLedger(store Store, slips SlipVerifier, opts ...Option) *Ledger {
	l := &Ledger{store: store, slips: slips, now: time.Now, newID: NewOrderID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewOrderID returns AT- followed by 8 random digits. Collisions are not checked.
func NewOrderID() string {
	return fmt.Sprintf("AT-%d", 10000000+rand.IntN(90000000))
}

type CreateRequest struct {
	UserID      string         `json:"userId,omitempty"`
	PackageID   string         `json:"packageId,omitempty"`
	Quantity    int            `json:"quantity,omitempty"`
	Items       []string       `json:"items,omitempty"` // package ids, for cart checkout
	TopupType   string         `json:"topupType,omitempty"`
	FormData    model.FormData `json:"formData,omitempty"`
	CouponCode  string         `json:"couponCode,omitempty"`
	Installment bool           `json:"installment,omitempty"`
	IGN         string         `json:"ign,omitempty"`
}

func (l *Ledger) CreateOrder(ctx context.Context, req CreateRequest) (*model.Order, error) {
	settings := l.store.Settings(ctx)
	if settings.IsMaintenanceMode {
		return nil, ErrMaintenance
	}
	now := l.now()
	order := model.Order{
		ID:        l.newID(),
		UserID:    req.UserID,
		Status:    model.StatusPending,
		IGN:       req.IGN,
		CreatedAt: now.UnixMilli(),
	}

	var price float64
	var couponGameID string
	switch {
	case len(req.Items) > 0:
		if req.Installment {
			return nil, ErrInstallmentNotAllowed
		}
		items, err := l.resolveItems(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		order.Items = items
		order.GameID, order.PackageID = MultiID, MultiID
		order.GameData = cartFormData(req.FormData)
		price = pricing.CartTotal(items)
		couponGameID = commonGameID(items)

	case req.PackageID != "":
		pkg, ok := syncstore.Find[model.Package](ctx, l.store, model.CollectionPackages, req.PackageID)
		if !ok || !pkg.Active {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, req.PackageID)
		}
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, ErrInvalidQuantity
		}
		if req.Installment {
			if !settings.IsInstallmentEnabled {
				return nil, ErrInstallmentsDisabled
			}
			if !pkg.AllowInstallment {
				return nil, ErrInstallmentNotAllowed
			}
			order.IsInstallment = true
		}
		order.GameID, order.PackageID = pkg.GameID, pkg.ID
		price = pricing.Multiply(pricing.EffectivePrice(pkg), qty)
		couponGameID = pkg.GameID

		data, topup, err := l.gameData(ctx, pkg.GameID, req.TopupType, req.FormData)
		if err != nil {
			return nil, err
		}
		order.GameData, order.TopupType = data, topup

	default:
		return nil, ErrNothingToOrder
	}

	order.Amount = price
	var coupon *model.Coupon
	if req.CouponCode != "" {
		coupons := syncstore.List[model.Coupon](ctx, l.store, model.CollectionCoupons)
		coupon = pricing.FindCoupon(coupons, req.CouponCode)
		if cerr := pricing.ValidateCoupon(coupon, price, couponGameID, now); cerr != nil {
			return nil, cerr
		}
		discount := pricing.ComputeDiscount(*coupon, price)
		order.DiscountAmount = discount
		order.CouponID = coupon.ID
		order.Amount = pricing.ComputeTotal(price, discount)
	}

	if _, err := l.store.Write(ctx, model.CollectionOrders, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}
	if coupon != nil {
		coupon.UsedCount++
		if _, err := l.store.Write(ctx, model.CollectionCoupons, *coupon); err != nil {
			log.Warn().Err(err).Str("coupon_id", coupon.ID).Msg("failed to count coupon use")
		}
	}

	log.Info().Str("order_id", order.ID).Str("game_id", order.GameID).
		Float64("amount", order.Amount).Bool("installment", order.IsInstallment).Msg("order created")
	return &order, nil
}

// UpdateStatus merges only the supplied fields. Remote delivery happens later
// through the outbox.
func (l *Ledger) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus, note string, verification any) (*model.Order, error) {
	return l.apply(ctx, orderID, status, note, verification, nil)
}

// SubmitPayment attaches the slip and routes the order: verified slips
// succeed, unverifiable ones wait for review, and without automatic checks
// the order is marked paid for an admin to confirm.
func (l *Ledger) SubmitPayment(ctx context.Context, orderID, slip string, method model.PaymentMethod) (*model.Order, error) {
	if slip == "" {
		return nil, ErrMissingSlip
	}
	o, ok := l.Get(ctx, orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != model.StatusPending {
		return nil, ErrPaymentNotExpected
	}

	extra := map[string]any{"paymentSlip": slip}
	if method != "" {
		extra["paymentMethod"] = method
	}

	if !l.store.Settings(ctx).IsSlipVerifyEnabled {
		return l.apply(ctx, o.ID, model.StatusPaid, "waiting for an admin to check the slip", nil, extra)
	}

	res := l.slips.Verify(ctx, slip, o.Amount)
	if res.Success {
		extra["isAutoVerified"] = true
		return l.apply(ctx, o.ID, model.StatusSuccess, "payment verified automatically", res.Data(), extra)
	}
	log.Info().Str("order_id", o.ID).Msg("slip not verified, sending to manual review")
	return l.apply(ctx, o.ID, model.StatusWaitingReview, "automatic check failed, an admin is reviewing the slip", nil, extra)
}

// Get looks the order up locally and falls back to one remote refresh.
func (l *Ledger) Get(ctx context.Context, orderID string) (model.Order, bool) {
	return syncstore.FindFresh[model.Order](ctx, l.store, model.CollectionOrders, orderID)
}

// UserOrders refreshes orders from the remote store and returns the user's
// most recent ones, newest first.
func (l *Ledger) UserOrders(ctx context.Context, userID string) []model.Order {
	all := syncstore.ListFresh[model.Order](ctx, l.store, model.CollectionOrders)
	out := make([]model.Order, 0)
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if len(out) > userOrdersLimit {
		out = out[:userOrdersLimit]
	}
	return out
}

func (l *Ledger) apply(ctx context.Context, orderID string, status model.OrderStatus, note string, verification any, extra map[string]any) (*model.Order, error) {
	o, ok := l.Get(ctx, orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := CheckTransition(orderID, o.Status, status); err != nil {
		return nil, err
	}

	fields := map[string]any{"status": status}
	if note != "" {
		fields["adminNote"] = note
	}
	if verification != nil {
		fields["verificationData"] = verification
	}
	for k, v := range extra {
		fields[k] = v
	}
	if _, err := l.store.Merge(ctx, model.CollectionOrders, orderID, fields); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	log.Info().Str("order_id", orderID).Str("from", string(o.Status)).Str("to", string(status)).Msg("order status changed")
	updated, ok := l.Get(ctx, orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &updated, nil
}

func (l *Ledger) resolveItems(ctx context.Context, packageIDs []string) ([]model.OrderItem, error) {
	items := make([]model.OrderItem, 0, len(packageIDs))
	for _, id := range packageIDs {
		pkg, ok := syncstore.Find[model.Package](ctx, l.store, model.CollectionPackages, id)
		if !ok || !pkg.Active {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
		}
		items = append(items, model.OrderItem{
			GameID:    pkg.GameID,
			PackageID: pkg.ID,
			Name:      pkg.Name,
			Price:     pricing.EffectivePrice(pkg),
		})
	}
	return items, nil
}

// gameData validates the buyer's answers against the game's form and records
// the chosen top-up type.
func (l *Ledger) gameData(ctx context.Context, gameID, topupType string, in model.FormData) (model.FormData, string, error) {
	if game, ok := syncstore.Find[model.Game](ctx, l.store, model.CollectionGames, gameID); ok && len(game.TopupTypes) > 0 {
		switch {
		case topupType == "":
			topupType = game.TopupTypes[0]
		case !slices.Contains(game.TopupTypes, topupType):
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownTopupType, topupType)
		}
	}

	data := make(model.FormData, len(in)+1)
	for k, v := range in {
		data[k] = v
	}
	if err := data.Validate(l.FormFields(ctx, gameID)); err != nil {
		return nil, "", err
	}
	if topupType != "" {
		data[model.TopupTypeField] = topupType
	}
	return data, topupType, nil
}

// FormFields returns the game's form, or the single-field default.
func (l *Ledger) FormFields(ctx context.Context, gameID string) []model.FormField {
	if form, ok := syncstore.Find[model.GameForm](ctx, l.store, model.CollectionForms, gameID); ok && len(form.Fields) > 0 {
		return form.Fields
	}
	return model.DefaultFormFields()
}

func cartFormData(in model.FormData) model.FormData {
	if len(in) == 0 {
		return model.FormData{"note": "Cart Checkout"}
	}
	out := make(model.FormData, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// commonGameID is the shared game of all items, or "" for mixed carts.
func commonGameID(items []model.OrderItem) string {
	if len(items) == 0 {
		return ""
	}
	id := items[0].GameID
	for _, it := range items[1:] {
		if it.GameID != id {
			return ""
		}
	}
	return id
}
