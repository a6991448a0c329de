package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/services"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/validation"
)

// AdminHandler serves operator endpoints guarded by the cron secret
type AdminHandler struct {
	billingService *services.BillingService
	validator      *validation.Validator
}

func NewAdminHandler(billingService *services.BillingService, validator *validation.Validator) *AdminHandler {
	return &AdminHandler{
		billingService: billingService,
		validator:      validator,
	}
}

// MonthlyTopup godoc
// @Summary Run the monthly top-up
// @Description Credits every active subscriber once per calendar month
// @Tags Admin
// @Produce json
// @Param x-cron-secret header string true "Cron secret"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/cron/monthly-topup [post]
func (h *AdminHandler) MonthlyTopup(c *fiber.Ctx) error {
	result, err := h.billingService.MonthlyTopup(c.UserContext())
	if err != nil {
		log.Error().Err(err).Msg("❌ Monthly top-up failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":     false,
			"error":  err.Error(),
			"result": result,
		})
	}

	return c.JSON(fiber.Map{
		"ok":     true,
		"result": result,
	})
}

// GrantCredits godoc
// @Summary Grant credits
// @Description Adds credits to a user. Re-sending the same idempotency_key is a no-op.
// @Tags Admin
// @Accept json
// @Produce json
// @Param x-cron-secret header string true "Cron secret"
// @Param request body models.GrantRequest true "Grant"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/admin/credits/grant [post]
func (h *AdminHandler) GrantCredits(c *fiber.Ctx) error {
	var req models.GrantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := h.validator.Struct(req); errs != nil {
		return validationError(c, errs)
	}

	res, err := h.billingService.Grant(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, credits.ErrInvalidAmount) || errors.Is(err, credits.ErrInvalidUser) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Error().Err(err).Str("user_id", req.UserID).Msg("❌ Grant failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to grant credits",
		})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"applied": res.Applied,
		"balance": res.Balance,
	})
}
