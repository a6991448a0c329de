package imagegen

import (
	"context"
	"fmt"
)

// Provider is an image generation backend
type Provider interface {
	Generate(ctx context.Context, params GenerateParams) ([]Image, error)
	Edit(ctx context.Context, params EditParams) ([]Image, error)
	GetProviderName() string
}

// GenerateParams are the inputs of a text-to-image call
type GenerateParams struct {
	Prompt     string
	Size       string
	Quality    string
	Background string
	N          int
	User       string
}

// EditParams are the inputs of an image edit call. The edits endpoint
// has no background option.
type EditParams struct {
	Prompt  string
	Size    string
	Quality string
	N       int
	User    string
	Image   File
	Mask    *File
}

// File is an uploaded image held in memory
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Image is one result returned by the provider. Exactly one of B64JSON or
// URL is normally set.
type Image struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ProviderType for factory
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
)

// ProviderConfig to create a provider
type ProviderConfig struct {
	Type      ProviderType
	OpenAIKey string
	Model     string
}

// NewProvider factory to create an image provider
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderOpenAI, "":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.Model), nil

	default:
		return nil, fmt.Errorf("unknown image provider type: %s", cfg.Type)
	}
}
