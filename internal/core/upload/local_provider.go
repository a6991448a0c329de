package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider stores objects on the local filesystem. The API serves
// the base directory under /uploads.
type LocalProvider struct {
	basePath   string
	baseURL    string
	publicPath string
}

// NewLocalProvider creates a new local file storage provider
func NewLocalProvider(basePath, baseURL string) (*LocalProvider, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &LocalProvider{
		basePath:   basePath,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		publicPath: "/uploads/",
	}, nil
}

// Upload writes the object below basePath
func (p *LocalProvider) Upload(ctx context.Context, file io.Reader, options *UploadOptions) (*UploadResult, error) {
	options = MergeOptions(options)
	objectPath := options.objectPath()

	filePath, err := p.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	if !options.Overwrite {
		if _, err := os.Stat(filePath); err == nil {
			return nil, fmt.Errorf("file already exists: %s", objectPath)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, file)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &UploadResult{
		URL:         p.GetURL(objectPath),
		Path:        objectPath,
		Size:        size,
		ContentType: options.ContentType,
	}, nil
}

// Delete deletes a file from the local filesystem
func (p *LocalProvider) Delete(ctx context.Context, objectPath string) error {
	filePath, err := p.resolve(objectPath)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", objectPath)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetURL gets the public URL for a file
func (p *LocalProvider) GetURL(objectPath string) string {
	return p.baseURL + p.publicPath + objectPath
}

// GetProviderName returns the provider name
func (p *LocalProvider) GetProviderName() string {
	return "Local Storage"
}

// resolve keeps object paths inside basePath.
func (p *LocalProvider) resolve(objectPath string) (string, error) {
	base, err := filepath.Abs(p.basePath)
	if err != nil {
		return "", err
	}
	full := filepath.Join(base, filepath.FromSlash(objectPath))
	if full != base && !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object path: %s", objectPath)
	}
	return full, nil
}
