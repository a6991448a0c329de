package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription statuses
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

const FreePlanSlug = "free"

// BillingPlan is a purchasable plan. CreditsMonthly is what the monthly
// top-up adds for each subscriber.
type BillingPlan struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug           string    `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	Period         string    `gorm:"type:text;not null;default:monthly" json:"period"`
	Credits        int64     `gorm:"not null;default:0" json:"credits"`
	CreditsMonthly int64     `gorm:"not null;default:0" json:"credits_monthly"`
	PriceCents     int64     `gorm:"not null;default:0" json:"price_cents"`
	Currency       string    `gorm:"type:text;not null;default:BRL" json:"currency"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (BillingPlan) TableName() string {
	return "billing_plans"
}

// BeforeCreate sets UUID before creating
func (p *BillingPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Subscription links a user to a plan
type Subscription struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             string     `gorm:"type:text;not null;index" json:"user_id"`
	PlanID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"plan_id"`
	Status             string     `gorm:"type:text;not null;default:active" json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Plan *BillingPlan `gorm:"foreignKey:PlanID;references:ID" json:"-"`
}

// TableName specifies the table name
func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate sets UUID before creating
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TopupTarget is a subscriber eligible for the monthly top-up
type TopupTarget struct {
	UserID         string
	PlanSlug       string
	CreditsMonthly int64
}

// FreePlan is served when a user has no subscription and no free plan row
// exists.
func FreePlan() *BillingPlan {
	return &BillingPlan{
		Slug:     FreePlanSlug,
		Name:     "Free",
		Period:   "monthly",
		Currency: "BRL",
		IsActive: true,
	}
}

// DefaultPlans are inserted at startup when their slugs are missing.
func DefaultPlans() []BillingPlan {
	return []BillingPlan{
		{Slug: FreePlanSlug, Name: "Free", Period: "monthly", Currency: "BRL", IsActive: true},
		{Slug: "starter", Name: "Starter", Period: "monthly", Credits: 50, CreditsMonthly: 50, PriceCents: 1990, Currency: "BRL", IsActive: true},
		{Slug: "pro", Name: "Pro", Period: "monthly", Credits: 200, CreditsMonthly: 200, PriceCents: 4990, Currency: "BRL", IsActive: true},
	}
}
