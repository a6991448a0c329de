package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-image-1"
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIProviderWithConfig is used to point the client at a different
// base URL (proxies, tests).
func NewOpenAIProviderWithConfig(config openai.ClientConfig, model string) *OpenAIProvider {
	p := NewOpenAIProvider("", model)
	p.client = openai.NewClientWithConfig(config)
	return p
}

func (p *OpenAIProvider) Generate(ctx context.Context, params GenerateParams) ([]Image, error) {
	req := openai.ImageRequest{
		Prompt:     params.Prompt,
		Model:      p.model,
		N:          params.N,
		Size:       params.Size,
		Quality:    params.Quality,
		Background: params.Background,
		User:       params.User,
	}
	if p.isDallE() {
		// DALL·E only understands standard/hd and needs b64 explicitly.
		req.Quality = dallEQuality(params.Quality)
		req.Background = ""
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}

	resp, err := p.client.CreateImage(ctx, req)
	if err != nil {
		return nil, Classify(fmt.Errorf("openai error: %w", err))
	}
	return toImages(resp), nil
}

func (p *OpenAIProvider) Edit(ctx context.Context, params EditParams) ([]Image, error) {
	req := openai.ImageEditRequest{
		Image:   newFormFile(params.Image, "image"),
		Prompt:  params.Prompt,
		Model:   p.model,
		N:       params.N,
		Size:    params.Size,
		Quality: params.Quality,
		User:    params.User,
	}
	if p.isDallE() {
		req.Quality = ""
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}
	if params.Mask != nil && len(params.Mask.Data) > 0 {
		req.Mask = newFormFile(*params.Mask, "mask")
	}

	resp, err := p.client.CreateEditImage(ctx, req)
	if err != nil {
		return nil, Classify(fmt.Errorf("openai error: %w", err))
	}
	return toImages(resp), nil
}

func (p *OpenAIProvider) GetProviderName() string {
	return "OpenAI (" + p.model + ")"
}

func (p *OpenAIProvider) isDallE() bool {
	return strings.HasPrefix(p.model, "dall-e")
}

func dallEQuality(quality string) string {
	if quality == "high" {
		return openai.CreateImageQualityHD
	}
	return openai.CreateImageQualityStandard
}

func toImages(resp openai.ImageResponse) []Image {
	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.B64JSON == "" && d.URL == "" {
			continue
		}
		images = append(images, Image{
			B64JSON:       d.B64JSON,
			URL:           d.URL,
			RevisedPrompt: d.RevisedPrompt,
		})
	}
	return images
}

// formFile is an in-memory upload. The multipart builder reads Name and
// ContentType off the reader to fill the part headers.
type formFile struct {
	*bytes.Reader
	name        string
	contentType string
}

func newFormFile(f File, field string) *formFile {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	name := filepath.Base(f.Name)
	if f.Name == "" || name == "." || name == "/" {
		name = field
	}
	if filepath.Ext(name) == "" {
		name += extensionFor(contentType)
	}

	return &formFile{
		Reader:      bytes.NewReader(f.Data),
		name:        name,
		contentType: contentType,
	}
}

func (f *formFile) Name() string        { return f.name }
func (f *formFile) ContentType() string { return f.contentType }

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
