package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/fallback"
	"github.com/ariefcatur/atee-topup/internal/localstore"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/payment"
	"github.com/ariefcatur/atee-topup/internal/pricing"
	"github.com/ariefcatur/atee-topup/internal/remote/memory"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type stubSlips struct {
	result payment.SlipResult
	calls  int
}

func (s *stubSlips) Verify(_ context.Context, _ string, amount float64) payment.SlipResult {
	s.calls++
	r := s.result
	r.Amount = amount
	return r
}

type fixture struct {
	local  *localstore.Memory
	remote *memory.Store
	store  *syncstore.SyncStore
	slips  *stubSlips
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{local: localstore.NewMemory(), remote: memory.New(), slips: &stubSlips{}}
	f.store = syncstore.New(f.local, f.remote, fallback.New(testNow), syncstore.WithClock(func() time.Time { return testNow }))
	seq := 0
	f.ledger = NewLedger(f.store, f.slips,
		WithClock(func() time.Time { return testNow.Add(time.Duration(seq) * time.Second) }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("AT-%08d", 10000000+seq)
		}),
	)
	return f
}

func (f *fixture) setSettings(t *testing.T, fn func(*model.SystemSettings)) {
	t.Helper()
	st := f.store.Settings(context.Background())
	fn(&st)
	_, err := f.store.Write(context.Background(), model.CollectionSettings, st)
	require.NoError(t, err)
}

func TestNewOrderIDFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewOrderID()
		require.Regexp(t, `^AT-[1-9][0-9]{7}$`, id)
	}
}

func TestCreateOrderSinglePackage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{
		UserID:    "u1",
		PackageID: "p7",
		FormData:  model.FormData{"account_id": "steam-user"},
	})
	require.NoError(t, err)

	assert.Equal(t, "AT-10000001", o.ID)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, "7", o.GameID)
	assert.Equal(t, 1000.0, o.Amount)
	assert.Equal(t, "Gift Card Code", o.TopupType)
	assert.Equal(t, "Gift Card Code", o.GameData[model.TopupTypeField])
	assert.Equal(t, testNow.UnixMilli(), o.CreatedAt)

	saved, ok := f.ledger.Get(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, o.Amount, saved.Amount)
	assert.Len(t, f.store.PendingWrites(ctx), 1)
}

func TestCreateOrderWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{
		PackageID:  "p7",
		FormData:   model.FormData{"account_id": "x"},
		CouponCode: "welcome",
	})
	require.NoError(t, err)
	assert.Equal(t, 950.0, o.Amount)
	assert.Equal(t, 50.0, o.DiscountAmount)
	assert.Equal(t, "welcome", o.CouponID)

	c, ok := syncstore.Find[model.Coupon](ctx, f.store, model.CollectionCoupons, "welcome")
	require.True(t, ok)
	assert.Equal(t, 1, c.UsedCount)
}

func TestCreateOrderRejectsCouponBelowMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateOrder(ctx, CreateRequest{
		PackageID:  "p4c", // 50 THB
		FormData:   model.FormData{"account_id": "0812345678"},
		CouponCode: "WELCOME",
	})
	var cerr *pricing.CouponError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, pricing.ReasonBelowMinimum, cerr.Reason)
	assert.Empty(t, syncstore.List[model.Order](ctx, f.store, model.CollectionOrders))
}

func TestCreateOrderUsesFlashSalePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Write(ctx, model.CollectionPackages, model.Package{
		ID: "fs1", GameID: "2", Name: "VP", Price: 200, IsFlashSale: true, FlashSalePrice: model.Float(150), Active: true,
	})
	require.NoError(t, err)

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "fs1", Quantity: 2, FormData: model.FormData{"account_id": "p"}})
	require.NoError(t, err)
	assert.Equal(t, 300.0, o.Amount)
}

func TestCreateOrderValidatesForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1"})
	var ferr *model.FormError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "account_id", ferr.Problems[0].FieldID)

	_, err = f.store.Write(ctx, model.CollectionForms, model.GameForm{
		ID: "1", GameID: "1",
		Fields: []model.FormField{
			{ID: "uid", Label: "UID", Type: model.FieldNumber, Required: true},
			{ID: "server", Label: "Server", Type: model.FieldSelect, Options: []string{"Asia", "EU"}},
		},
	})
	require.NoError(t, err)

	_, err = f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"uid": "abc", "server": "Mars"}})
	require.ErrorAs(t, err, &ferr)
	assert.Len(t, ferr.Problems, 2)

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"uid": "123", "server": "Asia"}})
	require.NoError(t, err)
	assert.Equal(t, "123", o.GameData["uid"])
}

func TestCreateOrderTopupType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", TopupType: "Email", FormData: model.FormData{"account_id": "x"}})
	assert.ErrorIs(t, err, ErrUnknownTopupType)
}

func TestCreateCartOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{UserID: "u1", Items: []string{"p5", "p6"}})
	require.NoError(t, err)
	assert.Equal(t, MultiID, o.GameID)
	assert.Equal(t, 700.0, o.Amount)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Steam 500 THB", o.Items[1].Name)
	assert.Equal(t, "Cart Checkout", o.GameData["note"])

	// every line is for game 7, so the coupon's game check passes
	o, err = f.ledger.CreateOrder(ctx, CreateRequest{UserID: "u1", Items: []string{"p5", "p6"}, CouponCode: "WELCOME"})
	require.NoError(t, err)
	assert.Equal(t, 650.0, o.Amount)

	_, err = f.ledger.CreateOrder(ctx, CreateRequest{Items: []string{"p5", "nope"}})
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestCreateOrderInstallmentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", Installment: true, FormData: model.FormData{"account_id": "x"}})
	assert.ErrorIs(t, err, ErrInstallmentNotAllowed)

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p7", Installment: true, FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)
	assert.True(t, o.IsInstallment)

	f.setSettings(t, func(s *model.SystemSettings) { s.IsInstallmentEnabled = false })
	_, err = f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p7", Installment: true, FormData: model.FormData{"account_id": "x"}})
	assert.ErrorIs(t, err, ErrInstallmentsDisabled)
}

func TestCreateOrderMaintenance(t *testing.T) {
	f := newFixture(t)
	f.setSettings(t, func(s *model.SystemSettings) { s.IsMaintenanceMode = true })
	_, err := f.ledger.CreateOrder(context.Background(), CreateRequest{PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	assert.ErrorIs(t, err, ErrMaintenance)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)

	updated, err := f.ledger.UpdateStatus(ctx, o.ID, model.StatusProcessing, "topping up", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, updated.Status)
	assert.Equal(t, "topping up", updated.AdminNote)
	assert.Equal(t, o.Amount, updated.Amount)

	updated, err = f.ledger.UpdateStatus(ctx, o.ID, model.StatusSuccess, "", map[string]any{"ref": "R1"})
	require.NoError(t, err)
	assert.Equal(t, "topping up", updated.AdminNote, "note untouched when not supplied")
	raw, _ := json.Marshal(updated.VerificationData)
	assert.JSONEq(t, `{"ref":"R1"}`, string(raw))

	_, err = f.ledger.UpdateStatus(ctx, o.ID, model.StatusSuccess, "delivered twice?", nil)
	require.NoError(t, err)

	_, err = f.ledger.UpdateStatus(ctx, o.ID, model.StatusCancelled, "", nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = f.ledger.UpdateStatus(ctx, "AT-00000000", model.StatusPaid, "", nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSubmitPaymentManualReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)

	paid, err := f.ledger.SubmitPayment(ctx, o.ID, "data:image/png;base64,AAA", model.PaymentPromptPay)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, paid.Status)
	assert.Equal(t, "data:image/png;base64,AAA", paid.PaymentSlip)
	assert.Equal(t, model.PaymentPromptPay, paid.PaymentMethod)
	assert.Zero(t, f.slips.calls)

	_, err = f.ledger.SubmitPayment(ctx, o.ID, "again", model.PaymentPromptPay)
	assert.ErrorIs(t, err, ErrPaymentNotExpected)
}

func TestSubmitPaymentAutoVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setSettings(t, func(s *model.SystemSettings) { s.IsSlipVerifyEnabled = true })
	f.slips.result = payment.SlipResult{Success: true, TransRef: "TXN1", SenderName: "A"}

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)

	done, err := f.ledger.SubmitPayment(ctx, o.ID, "slip", model.PaymentTrueMoney)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, done.Status)
	assert.True(t, done.IsAutoVerified)
	data, ok := done.VerificationData.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TXN1", data["transRef"])
}

func TestSubmitPaymentVerificationFailureGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setSettings(t, func(s *model.SystemSettings) { s.IsSlipVerifyEnabled = true })

	o, err := f.ledger.CreateOrder(ctx, CreateRequest{PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)

	got, err := f.ledger.SubmitPayment(ctx, o.ID, "slip", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingReview, got.Status)
	assert.False(t, got.IsAutoVerified)

	_, err = f.ledger.SubmitPayment(ctx, o.ID, "", "")
	assert.ErrorIs(t, err, ErrMissingSlip)
}

func TestUserOrdersNewestFirstCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		_, err := f.ledger.CreateOrder(ctx, CreateRequest{UserID: "u1", PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
		require.NoError(t, err)
	}
	_, err := f.ledger.CreateOrder(ctx, CreateRequest{UserID: "u2", PackageID: "p1", FormData: model.FormData{"account_id": "x"}})
	require.NoError(t, err)

	list := f.ledger.UserOrders(ctx, "u1")
	require.Len(t, list, 50)
	assert.Equal(t, "AT-10000055", list[0].ID)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].CreatedAt, list[i].CreatedAt)
	}
	assert.Empty(t, f.ledger.UserOrders(ctx, "nobody"))
}

func TestLedgerReachesOrdersHeldOnlyRemotely(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, o := range []model.Order{
		{ID: "AT-20000001", UserID: "u1", Amount: 100, Status: model.StatusPending, CreatedAt: 1},
		{ID: "AT-20000002", UserID: "u1", Amount: 200, Status: model.StatusPending, CreatedAt: 2},
		{ID: "AT-20000003", UserID: "u2", Amount: 300, Status: model.StatusPending, CreatedAt: 3},
	} {
		raw, err := json.Marshal(o)
		require.NoError(t, err)
		require.NoError(t, f.remote.Upsert(ctx, model.CollectionOrders, o.ID, raw))
	}

	// nothing is cached yet: the first lookup refreshes from the remote store
	o, err := f.ledger.UpdateStatus(ctx, "AT-20000003", model.StatusProcessing, "checking", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, o.Status)

	o, err = f.ledger.SubmitPayment(ctx, "AT-20000001", "slip.png", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, o.Status)

	mine := f.ledger.UserOrders(ctx, "u1")
	require.Len(t, mine, 2)
	assert.Equal(t, "AT-20000002", mine[0].ID)
	assert.Equal(t, model.StatusPaid, mine[1].Status)

	assert.Equal(t, 2, f.store.Flush(ctx))
	remote, err := f.remote.FetchAll(ctx, model.CollectionOrders)
	require.NoError(t, err)
	byID := map[string]model.Order{}
	for _, o := range docjson.Decode[model.Order](remote) {
		byID[o.ID] = o
	}
	assert.Equal(t, model.StatusProcessing, byID["AT-20000003"].Status)
	assert.Equal(t, model.StatusPaid, byID["AT-20000001"].Status)
	assert.Equal(t, "slip.png", byID["AT-20000001"].PaymentSlip)
}
