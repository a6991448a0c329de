package handlers

import (
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/auth"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/repositories"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/services"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/validation"
)

type ImageHandler struct {
	imageService  *services.ImageService
	generations   repositories.GenerationRepo
	validator     *validation.Validator
	maxImageBytes int64
}

func NewImageHandler(imageService *services.ImageService, generations repositories.GenerationRepo, validator *validation.Validator, maxImageBytes int64) *ImageHandler {
	return &ImageHandler{
		imageService:  imageService,
		generations:   generations,
		validator:     validator,
		maxImageBytes: maxImageBytes,
	}
}

func localUser(c *fiber.Ctx) string {
	return auth.UserID(c)
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "unauthenticated",
	})
}

func imageResponse(res *services.ImageResult) fiber.Map {
	body := fiber.Map{
		"ok":          true,
		"charged":     fiber.Map{"credits": res.Credits},
		"balance":     res.Balance,
		"uploaded":    nil,
		"images_b64":  nil,
		"prompt_used": res.PromptUsed,
	}
	if res.Uploaded != nil {
		body["uploaded"] = res.Uploaded
	} else {
		body["images_b64"] = res.ImagesB64
	}
	if res.Used != nil {
		body["used"] = res.Used
	}
	return body
}

// Generate godoc
// @Summary Generate images
// @Description Debits credits, calls the image provider and refunds on failure
// @Tags Images
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.GenerateRequest true "Generation parameters"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 402 {object} map[string]interface{}
// @Failure 413 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Failure 504 {object} map[string]interface{}
// @Router /api/image/generate [post]
func (h *ImageHandler) Generate(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	var req models.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Prompt = services.NormalizePrompt(req.Prompt)
	req.ApplyDefaults()
	if errs := h.validator.Struct(req); errs != nil {
		return validationError(c, errs)
	}

	res, err := h.imageService.Generate(c.UserContext(), services.GenerateInput{
		UserID:     userID,
		Prompt:     req.Prompt,
		Size:       req.Size,
		Quality:    req.Quality,
		Background: req.Background,
		N:          req.N,
	})
	if err != nil {
		return writeImageError(c, err)
	}

	return c.JSON(imageResponse(res))
}

// Edit godoc
// @Summary Edit an image
// @Description Edits an uploaded image (multipart). Costs a fixed number of credits.
// @Tags Images
// @Accept multipart/form-data
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param prompt formData string true "Edit instructions"
// @Param image formData file true "Base image (max 6MB)"
// @Param mask formData file false "Optional mask"
// @Param size formData string false "Output size"
// @Param quality formData string false "standard, hd, auto, low, medium or high"
// @Param background formData string false "auto, transparent or opaque (validated, not sent to the provider)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 402 {object} map[string]interface{}
// @Failure 413 {object} map[string]interface{}
// @Router /api/image/edit [post]
func (h *ImageHandler) Edit(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	var req models.EditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}
	req.Prompt = services.NormalizePrompt(req.Prompt)
	req.ApplyDefaults()
	if errs := h.validator.Struct(req); errs != nil {
		return validationError(c, errs)
	}

	header, err := c.FormFile("image")
	if err != nil || header.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Send the base image in the image field",
		})
	}
	if header.Size > h.maxImageBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Image too large (max " + strconv.FormatInt(h.maxImageBytes>>20, 10) + "MB)",
		})
	}
	image, err := readFormFile(header, "image/png")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read image",
		})
	}

	var mask *imagegen.File
	if maskHeader, err := c.FormFile("mask"); err == nil && maskHeader.Size > 0 {
		if maskHeader.Size > h.maxImageBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Mask too large",
			})
		}
		m, err := readFormFile(maskHeader, "image/png")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Failed to read mask",
			})
		}
		mask = &m
	}

	res, err := h.imageService.Edit(c.UserContext(), services.EditInput{
		UserID:  userID,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
		Image:   image,
		Mask:    mask,
	})
	if err != nil {
		return writeImageError(c, err)
	}

	return c.JSON(imageResponse(res))
}

// ListGenerations godoc
// @Summary List generations
// @Description Most recent generation history of the caller
// @Tags Images
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param limit query int false "Max rows (default 20, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/generations [get]
func (h *ImageHandler) ListGenerations(c *fiber.Ctx) error {
	userID := localUser(c)
	if userID == "" {
		return unauthenticated(c)
	}

	generations, err := h.generations.ListByUser(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load generations",
		})
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"generations": generations,
	})
}

func readFormFile(header *multipart.FileHeader, fallbackType string) (imagegen.File, error) {
	f, err := header.Open()
	if err != nil {
		return imagegen.File{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imagegen.File{}, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = fallbackType
	}
	return imagegen.File{Name: header.Filename, ContentType: contentType, Data: data}, nil
}
