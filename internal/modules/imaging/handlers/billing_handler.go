package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/services"
)

type BillingHandler struct {
	billingService *services.BillingService
}

func NewBillingHandler(billingService *services.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

// GetCredits godoc
// @Summary Get credit balance
// @Description Returns the caller's balance, creating the account on first use
// @Tags Billing
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/billing/credits [get]
func (h *BillingHandler) GetCredits(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	balance, err := h.billingService.Balance(c.UserContext(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("❌ Failed to load balance")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "Failed to load balance",
		})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"balance": balance,
	})
}

// GetPlan godoc
// @Summary Get current plan
// @Description Returns the caller's plan and subscription, or the free plan
// @Tags Billing
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/billing/plan [get]
func (h *BillingHandler) GetPlan(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	view, err := h.billingService.Plan(c.UserContext(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("❌ Failed to load plan")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "Failed to load plan",
		})
	}

	return c.JSON(fiber.Map{
		"ok":           true,
		"plan":         view.Plan,
		"subscription": view.Subscription,
	})
}

// GetUsage godoc
// @Summary Usage history
// @Description Paginated usage log of the caller
// @Tags Billing
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/billing/usage [get]
func (h *BillingHandler) GetUsage(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	res, err := h.billingService.Usage(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("❌ Failed to load usage")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "Failed to load usage",
		})
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"logs":        res.Logs,
		"total_count": res.TotalCount,
		"page":        res.Page,
		"page_size":   res.PageSize,
		"total_pages": res.TotalPages,
	})
}

// GetTransactions godoc
// @Summary Credit transactions
// @Description Newest entries of the caller's credit journal
// @Tags Billing
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param limit query int false "Max rows (default 50, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/billing/transactions [get]
func (h *BillingHandler) GetTransactions(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	entries, err := h.billingService.Transactions(c.UserContext(), userID, c.QueryInt("limit", 50))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("❌ Failed to load transactions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "Failed to load transactions",
		})
	}

	return c.JSON(fiber.Map{
		"ok":           true,
		"transactions": entries,
	})
}

// ListPlans godoc
// @Summary Plan catalog
// @Description Active billing plans, cheapest first
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/billing/plans [get]
func (h *BillingHandler) ListPlans(c *fiber.Ctx) error {
	plans, err := h.billingService.Plans(c.UserContext())
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to list plans")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "Failed to list plans",
		})
	}

	return c.JSON(fiber.Map{
		"ok":    true,
		"plans": plans,
	})
}

// GetPricing godoc
// @Summary Price list
// @Description Credit prices used by the image endpoints
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/billing/pricing [get]
func (h *BillingHandler) GetPricing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":      true,
		"pricing": h.billingService.Pricing(),
	})
}

// GetQuote godoc
// @Summary Quote a request
// @Description Credits a request would cost, without charging
// @Tags Billing
// @Produce json
// @Param action query string true "generate or edit"
// @Param n query int false "Number of images"
// @Param quality query string false "Quality tier"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/billing/quote [get]
func (h *BillingHandler) GetQuote(c *fiber.Ctx) error {
	action := c.Query("action")
	n := c.QueryInt("n", 1)
	if n > 4 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":    false,
			"error": "n must be between 1 and 4",
		})
	}

	cost, err := h.billingService.Quote(action, n, c.Query("quality"))
	if errors.Is(err, services.ErrUnknownAction) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":    false,
			"error": "action must be generate or edit",
		})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"action":  action,
		"credits": cost,
	})
}
