package upload

import (
	"context"
	"io"
	"path"
	"strings"
)

// UploadResult represents the result of a stored object
type UploadResult struct {
	URL         string `json:"url"`          // Public URL to access the file
	Path        string `json:"path"`         // Object key inside the bucket/folder
	Size        int64  `json:"size"`         // Size in bytes
	ContentType string `json:"content_type"` // MIME type
}

// UploadOptions represents upload configuration options
type UploadOptions struct {
	Folder      string `json:"folder"`       // Bucket prefix / Cloudinary folder
	Key         string `json:"key"`          // Object key relative to Folder
	ContentType string `json:"content_type"` // Defaults to image/png
	Overwrite   bool   `json:"overwrite"`
}

// Provider defines the interface for object storage providers
type Provider interface {
	// Upload stores the object and returns where it can be fetched
	Upload(ctx context.Context, file io.Reader, options *UploadOptions) (*UploadResult, error)

	// Delete deletes an object by path
	Delete(ctx context.Context, objectPath string) error

	// GetURL gets the public URL for an object path
	GetURL(objectPath string) string

	// GetProviderName returns the provider name
	GetProviderName() string
}

// DefaultUploadOptions returns default upload options
func DefaultUploadOptions() *UploadOptions {
	return &UploadOptions{
		Folder:      "imaginario",
		ContentType: "image/png",
		Overwrite:   false,
	}
}

// MergeOptions merges custom options with defaults
func MergeOptions(custom *UploadOptions) *UploadOptions {
	defaults := DefaultUploadOptions()

	if custom == nil {
		return defaults
	}

	if custom.Folder != "" {
		defaults.Folder = custom.Folder
	}
	if custom.Key != "" {
		defaults.Key = custom.Key
	}
	if custom.ContentType != "" {
		defaults.ContentType = custom.ContentType
	}
	defaults.Overwrite = custom.Overwrite

	return defaults
}

// objectPath joins folder and key with forward slashes.
func (o *UploadOptions) objectPath() string {
	return strings.TrimPrefix(path.Join(o.Folder, o.Key), "/")
}

// extensionFor maps a MIME type to the file extension used in object keys.
func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
