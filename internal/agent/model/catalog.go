package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const DeviceCategory = "device"

type PricingPlan struct {
	ID           string                   `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string                   `gorm:"size:255" json:"name"`
	Description  string                   `gorm:"type:text" json:"description"`
	PriceMonthly decimal.Decimal          `gorm:"type:numeric(10,2)" json:"price_monthly"`
	Currency     string                   `gorm:"size:3" json:"currency"`
	Features     []string                 `gorm:"type:jsonb;serializer:json" json:"features"`
	SortOrder    int                      `json:"sort_order"`
	IsActive     bool                     `gorm:"index" json:"-"`
	Translations []PricingPlanTranslation `gorm:"foreignKey:PlanID" json:"translations,omitempty"`
}

func (PricingPlan) TableName() string { return "pricing_plans" }

type PricingPlanTranslation struct {
	ID          string   `gorm:"primaryKey;type:uuid" json:"-"`
	PlanID      string   `gorm:"type:uuid;index" json:"-"`
	Language    string   `gorm:"size:5" json:"language"`
	Name        string   `gorm:"size:255" json:"name"`
	Description string   `gorm:"type:text" json:"description"`
	Features    []string `gorm:"type:jsonb;serializer:json" json:"features,omitempty"`
}

func (PricingPlanTranslation) TableName() string { return "pricing_plan_translations" }

type Product struct {
	ID           string               `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string               `gorm:"size:255" json:"name"`
	Description  string               `gorm:"type:text" json:"description"`
	Category     string               `gorm:"size:50;index" json:"category"`
	PriceMonthly decimal.Decimal      `gorm:"type:numeric(10,2)" json:"price_monthly"`
	Currency     string               `gorm:"size:3" json:"currency"`
	SortOrder    int                  `json:"sort_order"`
	IsActive     bool                 `gorm:"index" json:"-"`
	Translations []ProductTranslation `gorm:"foreignKey:ProductID" json:"translations,omitempty"`
}

func (Product) TableName() string { return "products" }

type ProductTranslation struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"-"`
	ProductID   string `gorm:"type:uuid;index" json:"-"`
	Language    string `gorm:"size:5" json:"language"`
	Name        string `gorm:"size:255" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (ProductTranslation) TableName() string { return "product_translations" }

// Quote is the computed monthly price of a plan plus add-on devices.
type Quote struct {
	Plan         PricingPlan     `json:"plan"`
	Devices      []Product       `json:"devices"`
	TotalMonthly decimal.Decimal `json:"totalMonthly"`
}

// NewQuote sums the plan price and every device price.
func NewQuote(plan PricingPlan, devices []Product) Quote {
	total := plan.PriceMonthly
	for _, d := range devices {
		total = total.Add(d.PriceMonthly)
	}
	if devices == nil {
		devices = []Product{}
	}
	return Quote{Plan: plan, Devices: devices, TotalMonthly: total}
}

type LeadStatus string

const LeadNew LeadStatus = "new"

// Lead is a prospective customer captured for sales follow-up.
type Lead struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	Email        string     `gorm:"size:255;not null" json:"email"`
	Phone        *string    `gorm:"size:50" json:"phone,omitempty"`
	InterestType string     `gorm:"size:50" json:"interest_type"`
	Message      *string    `gorm:"type:text" json:"message,omitempty"`
	SourcePage   string     `gorm:"size:255" json:"source_page"`
	SessionID    string     `gorm:"size:100;index" json:"session_id"`
	Status       LeadStatus `gorm:"size:20;index" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (Lead) TableName() string { return "leads" }
