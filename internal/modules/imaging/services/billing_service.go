package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/usage"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/repositories"
)

var ErrUnknownAction = errors.New("unknown action")

// PlanView is the caller's effective plan
type PlanView struct {
	Plan         *models.BillingPlan  `json:"plan"`
	Subscription *models.Subscription `json:"subscription"`
}

// Pricing is the public price list
type Pricing struct {
	credits.Policy
	Sizes           []string `json:"sizes"`
	MaxImages       int      `json:"max_images"`
	StartingCredits int64    `json:"starting_credits"`
}

// TopupResult summarises one monthly top-up run
type TopupResult struct {
	Period         string `json:"period"`
	Credited       int    `json:"credited"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	CreditsGranted int64  `json:"credits_granted"`
}

// BillingService serves balances, plans, pricing and operator grants
type BillingService struct {
	ledger *credits.Ledger
	policy credits.Policy
	plans  repositories.PlanRepo
	subs   repositories.SubscriptionRepo
	usage  *usage.Service
	now    func() time.Time
}

// NewBillingService creates a new billing service
func NewBillingService(
	ledger *credits.Ledger,
	policy credits.Policy,
	plans repositories.PlanRepo,
	subs repositories.SubscriptionRepo,
	usageService *usage.Service,
) *BillingService {
	return &BillingService{
		ledger: ledger,
		policy: policy,
		plans:  plans,
		subs:   subs,
		usage:  usageService,
		now:    time.Now,
	}
}

// Balance returns the caller's balance, creating the account on first use.
func (s *BillingService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// Plan resolves the caller's plan. Users without a live subscription get
// the free plan.
func (s *BillingService) Plan(ctx context.Context, userID string) (*PlanView, error) {
	sub, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub == nil {
		plan, err := s.plans.GetBySlug(ctx, models.FreePlanSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to load free plan: %w", err)
		}
		if plan == nil {
			plan = models.FreePlan()
		}
		return &PlanView{Plan: plan}, nil
	}

	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &PlanView{Plan: plan, Subscription: sub}, nil
}

// Plans lists the plans currently on sale, cheapest first.
func (s *BillingService) Plans(ctx context.Context) ([]models.BillingPlan, error) {
	return s.plans.ListActive(ctx)
}

// Transactions returns the caller's newest ledger entries.
func (s *BillingService) Transactions(ctx context.Context, userID string, limit int) ([]credits.Entry, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.ledger.History(ctx, userID, limit)
}

// Pricing returns the price list
func (s *BillingService) Pricing() Pricing {
	return Pricing{
		Policy:          s.policy,
		Sizes:           imagegen.SupportedSizes(),
		MaxImages:       4,
		StartingCredits: s.ledger.StartingBalance(),
	}
}

// Quote prices a request without charging it.
func (s *BillingService) Quote(action string, n int, quality string) (int64, error) {
	a, ok := credits.ParseAction(action)
	if !ok {
		return 0, ErrUnknownAction
	}
	return s.policy.Cost(credits.ChargeRequest{Action: a, Quantity: n, Quality: quality}), nil
}

// Usage lists the caller's usage log
func (s *BillingService) Usage(ctx context.Context, userID string, page, pageSize int) (*usage.UsageLogResponse, error) {
	return s.usage.GetLogs(ctx, usage.UsageFilter{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
	})
}

// Grant adds credits by hand. Re-sending the same idempotency key is a no-op.
func (s *BillingService) Grant(ctx context.Context, req models.GrantRequest) (credits.Result, error) {
	reference := req.Reference
	if reference == "" {
		reference = "admin grant"
	}

	res, err := s.ledger.Grant(ctx, credits.CreditRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Kind:           credits.KindAdjustment,
		Reference:      reference,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return credits.Result{}, err
	}

	log.Info().
		Str("user_id", req.UserID).
		Int64("credits", req.Amount).
		Bool("applied", res.Applied).
		Int64("balance", res.Balance).
		Msg("🎁 Credits granted")
	return res, nil
}

// MonthlyTopup credits every eligible subscriber with their plan's monthly
// credits, at most once per user per calendar month (UTC).
func (s *BillingService) MonthlyTopup(ctx context.Context) (*TopupResult, error) {
	period := s.now().UTC().Format("2006-01")

	targets, err := s.subs.ListTopupTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	result := &TopupResult{Period: period}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := s.ledger.Grant(ctx, credits.CreditRequest{
			UserID:         t.UserID,
			Amount:         t.CreditsMonthly,
			Kind:           credits.KindTopup,
			Reference:      "plan:" + t.PlanSlug + " period:" + period,
			IdempotencyKey: TopupKey(t.UserID, period),
		})
		switch {
		case err != nil:
			result.Failed++
			log.Error().Err(err).Str("user_id", t.UserID).Str("period", period).Msg("❌ Monthly top-up failed")
		case res.Applied:
			result.Credited++
			result.CreditsGranted += t.CreditsMonthly
		default:
			result.Skipped++
		}
	}

	log.Info().
		Str("period", period).
		Int("credited", result.Credited).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("📅 Monthly top-up finished")
	return result, nil
}

// TopupKey is the idempotency key of a user's top-up for a period.
func TopupKey(userID, period string) string {
	return "topup:" + userID + ":" + period
}
