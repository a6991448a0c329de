package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
)

type PlanRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BillingPlan, error)
	GetBySlug(ctx context.Context, slug string) (*models.BillingPlan, error)
	ListActive(ctx context.Context) ([]models.BillingPlan, error)
	EnsureDefaults(ctx context.Context, plans []models.BillingPlan) error
}

type planRepo struct {
	db *gorm.DB
}

func NewPlanRepo(db *gorm.DB) PlanRepo {
	return &planRepo{db: db}
}

// GetByID returns nil without error when the plan does not exist.
func (r *planRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetBySlug returns nil without error when the plan does not exist.
func (r *planRepo) GetBySlug(ctx context.Context, slug string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepo) ListActive(ctx context.Context) ([]models.BillingPlan, error) {
	plans := []models.BillingPlan{}
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_cents ASC").
		Find(&plans).Error
	return plans, err
}

// EnsureDefaults inserts plans whose slug is not taken yet.
func (r *planRepo) EnsureDefaults(ctx context.Context, plans []models.BillingPlan) error {
	for i := range plans {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&plans[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

type SubscriptionRepo interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetCurrent(ctx context.Context, userID string) (*models.Subscription, error)
	ListTopupTargets(ctx context.Context) ([]models.TopupTarget, error)
}

type subscriptionRepo struct {
	db *gorm.DB
}

func NewSubscriptionRepo(db *gorm.DB) SubscriptionRepo {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// GetCurrent returns the newest subscription that still grants a plan,
// or nil when the user has none.
func (r *subscriptionRepo) GetCurrent(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{
			models.SubscriptionActive,
			models.SubscriptionTrialing,
			models.SubscriptionPastDue,
		}).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListTopupTargets lists users on active or trialing subscriptions whose
// plan carries monthly credits. A user appears once, with the most
// generous plan.
func (r *subscriptionRepo) ListTopupTargets(ctx context.Context) ([]models.TopupTarget, error) {
	var rows []models.TopupTarget
	err := r.db.WithContext(ctx).
		Table("subscriptions AS s").
		Select("s.user_id AS user_id, p.slug AS plan_slug, p.credits_monthly AS credits_monthly").
		Joins("JOIN billing_plans AS p ON p.id = s.plan_id").
		Where("s.status IN ? AND p.is_active = ? AND p.credits_monthly > 0", []string{
			models.SubscriptionActive,
			models.SubscriptionTrialing,
		}, true).
		Order("s.user_id ASC, p.credits_monthly DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	targets := make([]models.TopupTarget, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.UserID] {
			continue
		}
		seen[row.UserID] = true
		targets = append(targets, row)
	}
	return targets, nil
}
