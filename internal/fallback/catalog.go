// Package fallback holds the built-in catalogue served when nothing is cached.
package fallback

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/model"
)

const couponLifetime = 365 * 24 * time.Hour

// Catalog is immutable after New.
type Catalog struct {
	docs map[string][]json.RawMessage
}

// New builds the catalogue. Coupon expiry is computed relative to now.
func New(now time.Time) *Catalog {
	c := &Catalog{docs: make(map[string][]json.RawMessage)}
	c.put(model.CollectionGames, games())
	c.put(model.CollectionPackages, packages())
	c.put(model.CollectionPromos, promos())
	c.put(model.CollectionCoupons, coupons(now))
	c.put(model.CollectionAPIConfigs, apiConfigs())
	c.put(model.CollectionSettings, []model.SystemSettings{settings()})
	c.put(model.CollectionReviews, []model.Review{})
	return c
}

func (c *Catalog) put(collection string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("collection", collection).Msg("fallback: encode failed")
		return
	}
	var docs []json.RawMessage
	_ = json.Unmarshal(raw, &docs)
	c.docs[collection] = docs
}

// Collection returns a copy of the built-in documents, or an empty list.
func (c *Catalog) Collection(name string) []json.RawMessage {
	docs := c.docs[name]
	out := make([]json.RawMessage, len(docs))
	copy(out, docs)
	return out
}

// Collections lists the names that have built-in documents.
func (c *Catalog) Collections() []string {
	return []string{
		model.CollectionGames,
		model.CollectionPackages,
		model.CollectionPromos,
		model.CollectionCoupons,
		model.CollectionAPIConfigs,
		model.CollectionSettings,
	}
}

func games() []model.Game {
	img := func(id string) string {
		return "https://images.unsplash.com/" + id + "?w=400&h=400&fit=crop"
	}
	return []model.Game{
		{ID: "1", Name: "ROBLOX", Image: img("photo-1627389955609-bc02120bc04d"), Category: model.CategoryPC, SoldCount: 99, Active: true, OrderIndex: 1, TotalStock: 999, TopupTypes: []string{"Player ID"}},
		{ID: "2", Name: "VALORANT", Image: img("photo-1614680376593-902f74cf0d41"), Category: model.CategoryPC, IsFlashSale: true, FlashSalePrice: model.Float(150), SoldCount: 150, TotalStock: 200, Active: true, OrderIndex: 2, TopupTypes: []string{"Player ID"}},
		{ID: "3", Name: "FREE FIRE", Image: img("photo-1542751371-adc38448a05e"), Category: model.CategoryMobile, SoldCount: 200, Active: true, OrderIndex: 3, TotalStock: 999, TopupTypes: []string{"Player ID"}},
		{ID: "4", Name: "NETFLIX PREMIUM", Image: img("photo-1522869635100-9f4c5e86aa37"), Category: model.CategoryPremiumApp, IsNewArrival: true, SoldCount: 450, Active: true, OrderIndex: 4, TotalStock: 999, TopupTypes: []string{"Email Account"}},
		{ID: "5", Name: "YOUTUBE PREMIUM", Image: img("photo-1611162617213-7d7a39e9b1d7"), Category: model.CategoryPremiumApp, IsFlashSale: true, FlashSalePrice: model.Float(39), SoldCount: 88, TotalStock: 100, Active: true, OrderIndex: 5, TopupTypes: []string{"Email Account"}},
		{ID: "6", Name: "AIS TOPUP", Image: "https://cdn.pixabay.com/photo-2021/11/03/17/28/sim-card-6766345_1280.jpg", Category: model.CategoryMobileTopup, SoldCount: 120, Active: true, OrderIndex: 6, TotalStock: 999, TopupTypes: []string{"Phone Number"}},
		{ID: "6b", Name: "TRUE MOVE H", Image: "https://cdn.pixabay.com/photo-2016/11/19/23/00/mobile-phone-1841571_1280.jpg", Category: model.CategoryMobileTopup, SoldCount: 210, Active: true, OrderIndex: 11, TotalStock: 999, TopupTypes: []string{"Phone Number"}},
		{ID: "6c", Name: "DTAC", Image: "https://cdn.pixabay.com/photo-2017/04/19/13/03/smartphone-2242133_1280.jpg", Category: model.CategoryMobileTopup, SoldCount: 145, Active: true, OrderIndex: 12, TotalStock: 999, TopupTypes: []string{"Phone Number"}},
		{ID: "7", Name: "STEAM WALLET", Image: img("photo-1612287230202-1ff1d85d1bdf"), Category: model.CategoryGiftCard, IsNewArrival: true, SoldCount: 50, Active: true, OrderIndex: 7, TotalStock: 999, TopupTypes: []string{"Gift Card Code"}},
		{ID: "8", Name: "RAZER GOLD", Image: img("photo-1593642532400-2682810df593"), Category: model.CategoryGiftCard, SoldCount: 310, Active: true, OrderIndex: 8, TotalStock: 999, TopupTypes: []string{"Gift Card Code"}},
		{ID: "9", Name: "GOOGLE PLAY", Image: img("photo-1614680376739-414d95ff43df"), Category: model.CategoryGiftCard, SoldCount: 190, Active: true, OrderIndex: 9, TotalStock: 999, TopupTypes: []string{"Gift Card Code"}},
		{ID: "10", Name: "ITUNES GIFT CARD", Image: img("photo-1511671782779-c97d3d27a1d4"), Category: model.CategoryGiftCard, SoldCount: 85, Active: true, OrderIndex: 10, TotalStock: 999, TopupTypes: []string{"Gift Card Code"}},
	}
}

func packages() []model.Package {
	return []model.Package{
		{ID: "p1", GameID: "1", Name: "400 Robux", Price: 150, Active: true},
		{ID: "p2", GameID: "4", Name: "Netflix 30 days", Price: 120, Active: true},
		{ID: "p3", GameID: "5", Name: "Youtube 30 days", Price: 59, Active: true},
		{ID: "p4", GameID: "6", Name: "Top-up 100 THB", Price: 100, Active: true},
		{ID: "p4b", GameID: "6", Name: "Top-up 200 THB", Price: 200, Active: true},
		{ID: "p4c", GameID: "6b", Name: "True 50 THB", Price: 50, Active: true},
		{ID: "p4d", GameID: "6b", Name: "True 100 THB", Price: 100, Active: true},
		{ID: "p4e", GameID: "6c", Name: "DTAC 100 THB", Price: 100, Active: true},
		{ID: "p5", GameID: "7", Name: "Steam 200 THB", Price: 200, Active: true},
		{ID: "p6", GameID: "7", Name: "Steam 500 THB", Price: 500, Active: true},
		{ID: "p7", GameID: "7", Name: "Steam 1000 THB", Price: 1000, AllowInstallment: true, MinInstallmentAmount: model.Float(500), Active: true},
		{ID: "p8", GameID: "8", Name: "Razer 100 Gold", Price: 100, Active: true},
		{ID: "p9", GameID: "8", Name: "Razer 300 Gold", Price: 300, Active: true},
	}
}

func promos() []model.PromoBanner {
	return []model.PromoBanner{
		{ID: "promo1", Image: "https://images.unsplash.com/photo-1627389955609-bc02120bc04d?w=1400&h=600&fit=crop", Active: true, Priority: 1},
		{ID: "promo2", Image: "https://images.unsplash.com/photo-1542751371-adc38448a05e?w=1400&h=600&fit=crop", Active: true, Priority: 2},
	}
}

func coupons(now time.Time) []model.Coupon {
	return []model.Coupon{{
		ID:            "welcome",
		Code:          "WELCOME",
		DiscountType:  model.DiscountPercent,
		DiscountValue: 10,
		ExpiryDate:    now.Add(couponLifetime).UnixMilli(),
		UsageLimit:    1000,
		Active:        true,
		MinAmount:     model.Float(100),
		MaxDiscount:   model.Float(50),
	}}
}

func apiConfigs() []model.APIConfig {
	return []model.APIConfig{{
		ID:           "api_roblox",
		Name:         "Roblox Verify",
		Endpoint:     "https://users.roblox.com/v1/users/{id}",
		Method:       "GET",
		ResponsePath: "name",
	}}
}

func settings() model.SystemSettings {
	return model.SystemSettings{
		ID:                   model.SettingsID,
		PromptPayID:          "0863058154",
		PromptPayName:        "AT Topup Co., Ltd.",
		TruemoneyPhone:       "0863058154",
		TruemoneyName:        "ATEE TOPUP",
		IsInstallmentEnabled: true,
		ForceLogin:           true,
		ContactLine:          "@ATEETOPUP",
		Terms:                "1. Double-check your ID\n2. Completed top-ups cannot be cancelled",
		FlashSaleEnabled:     true,
		Announcement:         "Welcome to ATEE TOPUP, cheap game top-ups 24/7",
	}
}
