package handlers

import "github.com/gofiber/fiber/v2"

// Routes groups the handlers and guards mounted by Register
type Routes struct {
	Image   *ImageHandler
	Billing *BillingHandler
	Admin   *AdminHandler
	Health  *HealthHandler

	// Auth resolves the bearer token, Operator checks the cron secret and
	// RateLimit throttles paid endpoints. RateLimit may be nil.
	Auth      fiber.Handler
	Operator  fiber.Handler
	RateLimit fiber.Handler
}

// Register mounts every imaging route on app.
func (r *Routes) Register(app fiber.Router) {
	app.Get("/health", r.Health.GetHealth)

	api := app.Group("/api", NoStore())

	api.Get("/billing/pricing", r.Billing.GetPricing)
	api.Get("/billing/quote", r.Billing.GetQuote)
	api.Get("/billing/plans", r.Billing.ListPlans)

	paid := []fiber.Handler{r.Auth}
	if r.RateLimit != nil {
		paid = append(paid, r.RateLimit)
	}
	paid = paid[:len(paid):len(paid)]
	api.Post("/image/generate", append(paid, r.Image.Generate)...)
	api.Post("/image/edit", append(paid, r.Image.Edit)...)

	api.Get("/billing/credits", r.Auth, r.Billing.GetCredits)
	api.Get("/billing/plan", r.Auth, r.Billing.GetPlan)
	api.Get("/billing/usage", r.Auth, r.Billing.GetUsage)
	api.Get("/billing/transactions", r.Auth, r.Billing.GetTransactions)
	api.Get("/generations", r.Auth, r.Image.ListGenerations)

	api.Get("/cron/monthly-topup", r.Operator, r.Admin.MonthlyTopup)
	api.Post("/cron/monthly-topup", r.Operator, r.Admin.MonthlyTopup)
	api.Post("/admin/credits/grant", r.Operator, r.Admin.GrantCredits)
}
