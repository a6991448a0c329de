package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryProvider implements object storage on Cloudinary
type CloudinaryProvider struct {
	cld       *cloudinary.Cloudinary
	cloudName string
}

// NewCloudinaryProvider creates a new Cloudinary provider
func NewCloudinaryProvider(cloudName, apiKey, apiSecret string) (*CloudinaryProvider, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryProvider{
		cld:       cld,
		cloudName: cloudName,
	}, nil
}

// Upload uploads an image to Cloudinary. The object key without its
// extension becomes the public ID inside the folder.
func (p *CloudinaryProvider) Upload(ctx context.Context, file io.Reader, options *UploadOptions) (*UploadResult, error) {
	options = MergeOptions(options)

	publicID := strings.TrimSuffix(options.Key, path.Ext(options.Key))
	params := uploader.UploadParams{
		Folder:       options.Folder,
		PublicID:     publicID,
		ResourceType: "image",
		Overwrite:    &options.Overwrite,
	}

	result, err := p.cld.Upload.Upload(ctx, file, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return nil, fmt.Errorf("Cloudinary upload failed: %s", result.Error.Message)
	}

	return &UploadResult{
		URL:         result.SecureURL,
		Path:        result.PublicID,
		Size:        int64(result.Bytes),
		ContentType: options.ContentType,
	}, nil
}

// Delete deletes an image from Cloudinary
func (p *CloudinaryProvider) Delete(ctx context.Context, objectPath string) error {
	result, err := p.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     objectPath,
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Cloudinary: %w", err)
	}
	if result.Result != "ok" {
		return fmt.Errorf("Cloudinary delete failed: %s", result.Result)
	}
	return nil
}

// GetURL gets the public URL for an image on Cloudinary
func (p *CloudinaryProvider) GetURL(objectPath string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s", p.cloudName, objectPath)
}

// GetProviderName returns the provider name
func (p *CloudinaryProvider) GetProviderName() string {
	return "Cloudinary"
}
