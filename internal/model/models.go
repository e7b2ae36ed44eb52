package model

// Collection names as stored remotely and in the local cache.
const (
	CollectionGames        = "games"
	CollectionPackages     = "packages"
	CollectionPromos       = "promos"
	CollectionCoupons      = "coupons"
	CollectionAPIConfigs   = "api_configs"
	CollectionSettings     = "settings"
	CollectionReviews      = "reviews"
	CollectionOrders       = "orders"
	CollectionInstallments = "installments"
	CollectionForms        = "forms"
	CollectionUsers        = "users"
)

// SettingsID is the id of the singleton settings record.
const SettingsID = "global"

type GameCategory string

const (
	CategoryMobile      GameCategory = "Mobile"
	CategoryPC          GameCategory = "PC"
	CategoryConsole     GameCategory = "Console"
	CategoryPremiumApp  GameCategory = "PremiumApp"
	CategoryGiftCard    GameCategory = "GiftCard"
	CategoryMobileTopup GameCategory = "MobileTopup"
)

type Game struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Image           string       `json:"image"`
	Category        GameCategory `json:"category"`
	Active          bool         `json:"active"`
	OrderIndex      int          `json:"orderIndex"`
	SoldCount       int          `json:"soldCount"`
	TotalStock      int          `json:"totalStock"`
	IsFlashSale     bool         `json:"isFlashSale"`
	FlashSalePrice  *float64     `json:"flashSalePrice,omitempty"`
	FlashSaleEnd    int64        `json:"flashSaleEnd,omitempty"` // epoch ms, 0 = open ended
	IsNewArrival    bool         `json:"isNewArrival"`
	IsVerifyEnabled bool         `json:"isVerifyEnabled"`
	APIConfigID     string       `json:"apiConfigId,omitempty"`
	TopupTypes      []string     `json:"topupTypes"`
}

type Package struct {
	ID                   string   `json:"id"`
	GameID               string   `json:"gameId"`
	Name                 string   `json:"name"`
	Price                float64  `json:"price"`
	IsFlashSale          bool     `json:"isFlashSale,omitempty"`
	FlashSalePrice       *float64 `json:"flashSalePrice,omitempty"`
	AllowInstallment     bool     `json:"allowInstallment"`
	MinInstallmentAmount *float64 `json:"minInstallmentAmount,omitempty"`
	InstallmentMonths    int      `json:"installmentMonths,omitempty"`
	Active               bool     `json:"active"`
}

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

type Coupon struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discountType"`
	DiscountValue  float64      `json:"discountValue"`
	MinAmount      *float64     `json:"minAmount,omitempty"`
	MaxDiscount    *float64     `json:"maxDiscount,omitempty"` // PERCENT only
	ExpiryDate     int64        `json:"expiryDate"`            // epoch ms
	UsageLimit     int          `json:"usageLimit"`
	UsedCount      int          `json:"usedCount"`
	SpecificGameID string       `json:"specificGameId,omitempty"`
	Active         bool         `json:"active"`
}

type PaymentMethod string

const (
	PaymentPromptPay PaymentMethod = "PROMPTPAY"
	PaymentTrueMoney PaymentMethod = "TRUEMONEY"
)

type OrderItem struct {
	GameID    string  `json:"gameId"`
	PackageID string  `json:"packageId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId,omitempty"`
	GameID           string        `json:"gameId"`
	PackageID        string        `json:"packageId"`
	TopupType        string        `json:"topupType,omitempty"`
	Amount           float64       `json:"amount"`
	DiscountAmount   float64       `json:"discountAmount,omitempty"`
	CouponID         string        `json:"couponId,omitempty"`
	Status           OrderStatus   `json:"status"` // see status.go
	GameData         FormData      `json:"gameData"`
	IsInstallment    bool          `json:"isInstallment"`
	AdminNote        string        `json:"adminNote,omitempty"`
	PaymentSlip      string        `json:"paymentSlip,omitempty"`
	PaymentMethod    PaymentMethod `json:"paymentMethod,omitempty"`
	IsAutoVerified   bool          `json:"isAutoVerified,omitempty"`
	VerificationData any           `json:"verificationData,omitempty"`
	IGN              string        `json:"ign,omitempty"`
	CreatedAt        int64         `json:"createdAt"` // epoch ms
	Items            []OrderItem   `json:"items,omitempty"`
}

type InstallmentStatus string

const (
	InstallmentActive    InstallmentStatus = "ACTIVE"
	InstallmentCompleted InstallmentStatus = "COMPLETED"
	InstallmentCancelled InstallmentStatus = "CANCELLED"
)

type InstallmentPayment struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"` // epoch ms
	Slip   string  `json:"slip,omitempty"`
}

type Installment struct {
	ID          string               `json:"id"`
	OrderID     string               `json:"orderId"`
	UserID      string               `json:"userId"`
	TotalAmount float64              `json:"totalAmount"`
	PaidAmount  float64              `json:"paidAmount"`
	Status      InstallmentStatus    `json:"status"`
	History     []InstallmentPayment `json:"history"`
}

type ContactChannel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

type SystemSettings struct {
	ID                   string           `json:"id"`
	PromptPayID          string           `json:"promptPayId"`
	PromptPayName        string           `json:"promptPayName"`
	TruemoneyPhone       string           `json:"truemoneyPhone"`
	TruemoneyName        string           `json:"truemoneyName"`
	IsInstallmentEnabled bool             `json:"isInstallmentEnabled"`
	IsMaintenanceMode    bool             `json:"isMaintenanceMode"`
	MaintenanceMessage   string           `json:"maintenanceMessage,omitempty"`
	ForceLogin           bool             `json:"forceLogin"`
	ContactLine          string           `json:"contactLine"`
	Terms                string           `json:"terms"`
	FlashSaleEnabled     bool             `json:"flashSaleEnabled"`
	SlipVerifyAPIKey     string           `json:"slipVerifyApiKey,omitempty"`
	IsSlipVerifyEnabled  bool             `json:"isSlipVerifyEnabled"`
	Announcement         string           `json:"announcement,omitempty"`
	ContactChannels      []ContactChannel `json:"contactChannels,omitempty"`
}

type APIConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Endpoint     string `json:"endpoint"` // contains {id}
	Method       string `json:"method"`   // GET | POST
	Headers      string `json:"headers,omitempty"`
	ResponsePath string `json:"responsePath"`
}

type PromoBanner struct {
	ID       string `json:"id"`
	Image    string `json:"image"`
	Link     string `json:"link"`
	Active   bool   `json:"active"`
	Priority int    `json:"priority"`
}

type Review struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	GameID    string `json:"gameId"`
	GameName  string `json:"gameName"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt int64  `json:"createdAt"`
}

// Float returns a pointer to v, for the optional money fields.
func Float(v float64) *float64 { return &v }
