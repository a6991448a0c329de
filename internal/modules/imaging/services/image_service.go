package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/upload"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/usage"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/repositories"
)

var ErrEmptyPrompt = errors.New("prompt is empty")

// ImageConfig holds the timeouts and model name used by ImageService
type ImageConfig struct {
	Model             string
	GenerateTimeout   time.Duration
	EditTimeout       time.Duration
	UploadTimeout     time.Duration
	GenerationTimeout time.Duration
}

// DefaultImageConfig returns the production timeouts
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Model:             "gpt-image-1",
		GenerateTimeout:   55 * time.Second,
		EditTimeout:       50 * time.Second,
		UploadTimeout:     7 * time.Second,
		GenerationTimeout: 2 * time.Second,
	}
}

// GenerateInput is a validated generate request
type GenerateInput struct {
	UserID     string
	Prompt     string
	Size       string
	Quality    string
	Background string
	N          int
}

// EditInput is a validated edit request
type EditInput struct {
	UserID  string
	Prompt  string
	Size    string
	Quality string
	Image   imagegen.File
	Mask    *imagegen.File
}

// UsedParams echoes the provider parameters an edit actually ran with
type UsedParams struct {
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

// ImageResult is a successful billed image call
type ImageResult struct {
	ChargeID   string
	Credits    int64
	Balance    int64
	Uploaded   []models.GenerationResult
	ImagesB64  []string
	PromptUsed string
	Used       *UsedParams
}

// ImageService runs billed image work: debit, provider call, refund on
// failure, then best-effort storage, history and usage.
type ImageService struct {
	ledger      *credits.Ledger
	policy      credits.Policy
	provider    imagegen.Provider
	storage     *upload.Service
	generations repositories.GenerationRepo
	usage       *usage.Recorder
	dispatcher  *jobs.Dispatcher
	config      ImageConfig
}

// NewImageService wires the image service. storage and generations may be
// nil; images are then returned inline and history is not kept.
func NewImageService(
	ledger *credits.Ledger,
	policy credits.Policy,
	provider imagegen.Provider,
	storage *upload.Service,
	generations repositories.GenerationRepo,
	recorder *usage.Recorder,
	dispatcher *jobs.Dispatcher,
	config ImageConfig,
) *ImageService {
	return &ImageService{
		ledger:      ledger,
		policy:      policy,
		provider:    provider,
		storage:     storage,
		generations: generations,
		usage:       recorder,
		dispatcher:  dispatcher,
		config:      config,
	}
}

// Policy returns the cost policy the service charges with.
func (s *ImageService) Policy() credits.Policy {
	return s.policy
}

// Generate creates images from a prompt.
func (s *ImageService) Generate(ctx context.Context, in GenerateInput) (*ImageResult, error) {
	prompt := NormalizePrompt(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if in.N < 1 {
		in.N = 1
	}

	cost := s.policy.Cost(credits.ChargeRequest{
		Action:   credits.ActionGenerate,
		Quantity: in.N,
		Quality:  in.Quality,
	})

	params := imagegen.GenerateParams{
		Prompt:     prompt,
		Size:       in.Size,
		Quality:    imagegen.GenerateQuality(in.Quality),
		Background: imagegen.NormalizeBackground(in.Background),
		N:          in.N,
		User:       in.UserID,
	}

	job := billedJob{
		userID:  in.UserID,
		action:  usage.ActionGenerate,
		kind:    models.KindGenerate,
		prompt:  prompt,
		size:    in.Size,
		quality: in.Quality,
		n:       in.N,
		cost:    cost,
		meta: map[string]interface{}{
			"background": params.Background,
		},
	}

	return s.run(ctx, job, s.config.GenerateTimeout, func(ctx context.Context) ([]imagegen.Image, error) {
		return s.provider.Generate(ctx, params)
	})
}

// Edit changes an uploaded image according to a prompt.
func (s *ImageService) Edit(ctx context.Context, in EditInput) (*ImageResult, error) {
	prompt := NormalizePrompt(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	cost := s.policy.Cost(credits.ChargeRequest{Action: credits.ActionEdit, Quantity: 1})

	used := &UsedParams{
		Size:    imagegen.NormalizeSize(in.Size),
		Quality: imagegen.EditQuality(in.Quality),
	}
	params := imagegen.EditParams{
		Prompt:  prompt,
		Size:    used.Size,
		Quality: used.Quality,
		N:       1,
		User:    in.UserID,
		Image:   in.Image,
		Mask:    in.Mask,
	}

	job := billedJob{
		userID:  in.UserID,
		action:  usage.ActionEdit,
		kind:    models.KindEdit,
		prompt:  prompt,
		size:    used.Size,
		quality: used.Quality,
		n:       1,
		cost:    cost,
		meta: map[string]interface{}{
			"has_mask": in.Mask != nil,
		},
	}

	res, err := s.run(ctx, job, s.config.EditTimeout, func(ctx context.Context) ([]imagegen.Image, error) {
		return s.provider.Edit(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	res.Used = used
	return res, nil
}

type billedJob struct {
	userID  string
	action  string
	kind    string
	prompt  string
	size    string
	quality string
	n       int
	cost    int64
	meta    map[string]interface{}
}

func (s *ImageService) run(ctx context.Context, job billedJob, timeout time.Duration, call func(ctx context.Context) ([]imagegen.Image, error)) (*ImageResult, error) {
	var images []string
	work := func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := call(wctx)
		if err != nil {
			return imagegen.Classify(err)
		}
		images = collectB64(out)
		if len(images) == 0 {
			return imagegen.ErrNoImages
		}
		return nil
	}

	charge, err := s.spend(ctx, job, work)
	if err != nil {
		var failed *credits.WorkFailedError
		if errors.As(err, &failed) {
			s.recordFailure(job, charge, failed)
		}
		return nil, err
	}

	res := &ImageResult{
		Credits:    job.cost,
		PromptUsed: job.prompt,
	}
	if charge != nil {
		res.ChargeID = charge.ID
		res.Balance = charge.BalanceAfter
	} else if res.Balance, err = s.ledger.Balance(ctx, job.userID); err != nil {
		log.Warn().Err(err).Str("user_id", job.userID).Msg("⚠️ Failed to read balance after free request")
	}

	res.Uploaded = s.store(ctx, job.userID, images)
	if res.Uploaded == nil {
		res.ImagesB64 = images
	}

	s.saveGeneration(job, res)
	s.recordSuccess(job, res)
	return res, nil
}

// spend charges the job around work. Free jobs skip the ledger.
func (s *ImageService) spend(ctx context.Context, job billedJob, work func(ctx context.Context) error) (*credits.Charge, error) {
	if job.cost <= 0 {
		if err := work(ctx); err != nil {
			return nil, &credits.WorkFailedError{Err: err, Refunded: true}
		}
		return nil, nil
	}
	return s.ledger.Spend(ctx, job.userID, job.cost, job.action, work)
}

func collectB64(images []imagegen.Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img.B64JSON != "" {
			out = append(out, img.B64JSON)
		}
	}
	return out
}

// store uploads every image within the upload timeout. Any failure drops
// all URLs so the caller falls back to inline base64.
func (s *ImageService) store(ctx context.Context, userID string, images []string) []models.GenerationResult {
	if s.storage == nil {
		return nil
	}

	uctx, cancel := context.WithTimeout(ctx, s.config.UploadTimeout)
	defer cancel()

	uploaded := make([]models.GenerationResult, 0, len(images))
	for _, b64 := range images {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("⚠️ Provider returned invalid base64, skipping upload")
			return nil
		}

		res, err := s.storage.PutImage(uctx, userID, data, "image/png")
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("provider", s.storage.GetProviderName()).Msg("⚠️ Upload failed, returning base64")
			return nil
		}
		uploaded = append(uploaded, models.GenerationResult{URL: res.URL, Path: res.Path})
	}
	return uploaded
}

func (s *ImageService) saveGeneration(job billedJob, res *ImageResult) {
	if s.generations == nil {
		return
	}

	gen := &models.Generation{
		UserID:  job.userID,
		Kind:    job.kind,
		Prompt:  job.prompt,
		Size:    job.size,
		Quality: job.quality,
		N:       job.n,
	}

	results := res.Uploaded
	if results == nil {
		results = make([]models.GenerationResult, 0, len(res.ImagesB64))
		for _, b64 := range res.ImagesB64 {
			results = append(results, models.GenerationResult{B64: b64})
		}
	}
	if err := gen.SetResults(results); err != nil {
		log.Warn().Err(err).Str("user_id", job.userID).Msg("⚠️ Failed to encode generation results")
		return
	}

	err := s.dispatcher.Submit(jobs.Task{
		Name:    "generation:" + job.kind,
		Timeout: s.config.GenerationTimeout,
		Run: func(ctx context.Context) error {
			if err := s.generations.Create(ctx, gen); err != nil {
				return fmt.Errorf("failed to save generation: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", job.userID).Msg("⚠️ Generation record dropped")
	}
}

func (s *ImageService) recordSuccess(job billedJob, res *ImageResult) {
	meta := copyMeta(job.meta)
	meta["charge_id"] = res.ChargeID
	meta["uploaded"] = res.Uploaded != nil

	s.usage.RecordUsage(usage.Record{
		UserID:      job.userID,
		Action:      job.action,
		CreditsUsed: job.cost,
		Model:       s.config.Model,
		Size:        job.size,
		Quality:     job.quality,
		N:           job.n,
		Meta:        meta,
	})
}

// recordFailure logs what a failed request actually cost: nothing after a
// refund, the full amount when the refund did not go through.
func (s *ImageService) recordFailure(job billedJob, charge *credits.Charge, failed *credits.WorkFailedError) {
	meta := copyMeta(job.meta)
	meta["error"] = failed.Err.Error()
	meta["charge_id"] = failed.ChargeID

	used := int64(0)
	if charge != nil {
		used = charge.NetCharged()
	}
	if !failed.Refunded {
		meta["refund_failed"] = true
	}

	s.usage.RecordUsage(usage.Record{
		UserID:      job.userID,
		Action:      job.action,
		CreditsUsed: used,
		Model:       s.config.Model,
		Size:        job.size,
		Quality:     job.quality,
		N:           job.n,
		Meta:        meta,
	})
}

func copyMeta(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+4)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
