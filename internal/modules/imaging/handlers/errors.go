package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/services"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/validation"
)

// NoStore marks every response as uncacheable.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
		return c.Next()
	}
}

func validationError(c *fiber.Ctx, details []validation.FieldError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Invalid request",
		"details": details,
	})
}

// writeImageError maps a failed billed image call to a response.
func writeImageError(c *fiber.Ctx, err error) error {
	var insufficient *credits.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "Not enough credits",
			"code":    "INSUFFICIENT_CREDITS",
			"needed":  insufficient.Needed,
			"balance": insufficient.Balance,
			"cost":    insufficient.Cost,
		})
	}

	if errors.Is(err, services.ErrEmptyPrompt) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request",
			"details": []validation.FieldError{{Field: "prompt", Rule: "required"}},
		})
	}

	var failed *credits.WorkFailedError
	if !errors.As(err, &failed) {
		log.Error().Err(err).Str("user_id", localUser(c)).Msg("❌ Billing error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process request",
		})
	}

	charged := failed.Amount
	if failed.Refunded {
		charged = 0
	}
	body := fiber.Map{
		"refunded": failed.Refunded,
		"charged":  fiber.Map{"credits": charged},
	}

	status := fiber.StatusBadGateway
	var providerErr *imagegen.ProviderError
	switch {
	case errors.Is(err, imagegen.ErrTimeout):
		status = fiber.StatusGatewayTimeout
		body["error"] = "Image generation took too long and was cancelled. Try one 1024x1024 image at a time."
		body["code"] = "TIMEOUT"
	case errors.Is(err, imagegen.ErrContentPolicy):
		status = fiber.StatusBadRequest
		body["error"] = "Your request was blocked by the safety system. Describe the scene in neutral terms."
		body["code"] = "CONTENT_POLICY"
	case errors.Is(err, imagegen.ErrPayloadTooLarge):
		status = fiber.StatusRequestEntityTooLarge
		body["error"] = "The request or response was too large. Generate one image at a time."
		body["code"] = "PAYLOAD_TOO_LARGE"
	case errors.Is(err, imagegen.ErrNoImages):
		status = fiber.StatusInternalServerError
		body["error"] = "No images returned"
		body["code"] = "NO_IMAGES"
	case errors.As(err, &providerErr):
		if providerErr.StatusCode >= 400 && providerErr.StatusCode <= 599 {
			status = providerErr.StatusCode
		}
		body["error"] = providerErr.Message
		body["code"] = "PROVIDER_ERROR"
	default:
		body["error"] = failed.Err.Error()
		body["code"] = "PROVIDER_ERROR"
	}

	log.Warn().
		Err(failed.Err).
		Str("user_id", localUser(c)).
		Str("charge_id", failed.ChargeID).
		Bool("refunded", failed.Refunded).
		Int("status", status).
		Msg("⚠️ Image request failed")
	return c.Status(status).JSON(body)
}
