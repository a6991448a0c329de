package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/config"
)

// Service stores generated images through the configured provider
type Service struct {
	provider Provider
	folder   string
	now      func() time.Time
}

// NewService creates a new upload service
func NewService(provider Provider, folder string) *Service {
	return &Service{
		provider: provider,
		folder:   folder,
		now:      time.Now,
	}
}

// NewServiceFromConfig picks the provider from STORAGE_PROVIDER. It returns
// nil when storage is disabled; images are then returned inline.
func NewServiceFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	var provider Provider
	var err error

	switch cfg.StorageProvider {
	case "s3":
		provider, err = NewS3Provider(ctx, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSRegion, cfg.AWSS3Bucket)
	case "cloudinary":
		provider, err = NewCloudinaryProvider(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	case "local":
		provider, err = NewLocalProvider(cfg.UploadPath, cfg.UploadBaseURL)
	case "none", "":
		log.Warn().Msg("⚠️  Storage disabled, images will be returned as base64")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("provider", provider.GetProviderName()).Msg("🗄️  Storage provider ready")
	return NewService(provider, cfg.StorageFolder), nil
}

// PutImage stores one image for a user under <userID>/<unixms>_<uuid>.<ext>.
func (s *Service) PutImage(ctx context.Context, userID string, data []byte, contentType string) (*UploadResult, error) {
	if s == nil || s.provider == nil {
		return nil, fmt.Errorf("upload provider not configured")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := fmt.Sprintf("%s/%d_%s%s", userID, s.now().UnixMilli(), uuid.New().String(), extensionFor(contentType))
	return s.provider.Upload(ctx, bytes.NewReader(data), &UploadOptions{
		Folder:      s.folder,
		Key:         key,
		ContentType: contentType,
	})
}

// Delete deletes a stored object
func (s *Service) Delete(ctx context.Context, objectPath string) error {
	if s == nil || s.provider == nil {
		return fmt.Errorf("upload provider not configured")
	}
	return s.provider.Delete(ctx, objectPath)
}

// GetProviderName returns the current provider name
func (s *Service) GetProviderName() string {
	if s == nil || s.provider == nil {
		return "none"
	}
	return s.provider.GetProviderName()
}

// readAll buffers a reader so its length is known up front.
func readAll(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(*bytes.Reader); ok {
		return rs, rs.Size(), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read upload body: %w", err)
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
