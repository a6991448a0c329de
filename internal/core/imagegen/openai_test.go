package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = srv.URL + "/v1"
	return NewOpenAIProviderWithConfig(config, "gpt-image-1")
}

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"b64_json":"aGVsbG8="},{"b64_json":"d29ybGQ="}]}`)
	})

	images, err := p.Generate(context.Background(), GenerateParams{
		Prompt:     "a lighthouse at dusk",
		Size:       "1024x1024",
		Quality:    "high",
		Background: "transparent",
		N:          2,
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "aGVsbG8=", images[0].B64JSON)

	assert.Equal(t, "gpt-image-1", got["model"])
	assert.Equal(t, "high", got["quality"])
	assert.Equal(t, "transparent", got["background"])
	assert.EqualValues(t, 2, got["n"])
}

func TestOpenAIGenerateContentPolicy(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Your request was rejected as a result of our safety system.","type":"invalid_request_error","code":"content_policy_violation"}}`)
	})

	_, err := p.Generate(context.Background(), GenerateParams{Prompt: "x", N: 1})
	assert.ErrorIs(t, err, ErrContentPolicy)
}

func TestOpenAIGenerateServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	_, err := p.Generate(context.Background(), GenerateParams{Prompt: "x", N: 1})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusServiceUnavailable, providerErr.StatusCode)
}

func TestOpenAIEditSendsMultipart(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "add a hat", r.FormValue("prompt"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))

		mask, maskHeader, err := r.FormFile("mask")
		require.NoError(t, err)
		defer mask.Close()
		assert.Equal(t, "mask.webp", maskHeader.Filename)
		assert.Equal(t, "image/webp", maskHeader.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"b64_json":"ZWRpdGVk"}]}`)
	})

	images, err := p.Edit(context.Background(), EditParams{
		Prompt: "add a hat",
		Size:   "1024x1024",
		N:      1,
		Image:  File{Name: "cat.png", ContentType: "image/png", Data: []byte("png-bytes")},
		Mask:   &File{ContentType: "image/webp", Data: []byte("mask-bytes")},
	})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "ZWRpdGVk", images[0].B64JSON)
}

func TestNewFormFile(t *testing.T) {
	f := newFormFile(File{Name: "../uploads/photo.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}, "image")
	assert.Equal(t, "photo.jpg", f.Name())
	assert.Equal(t, "image/jpeg", f.ContentType())

	f = newFormFile(File{Name: "blob", Data: []byte("x")}, "image")
	assert.Equal(t, "blob.png", f.Name())
	assert.Equal(t, "image/png", f.ContentType())

	f = newFormFile(File{}, "mask")
	assert.Equal(t, "mask.png", f.Name())
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("openai error: %w", context.DeadlineExceeded), ErrTimeout},
		{"api content policy", &openai.APIError{Code: "content_policy_violation", Message: "rejected", HTTPStatusCode: 400}, ErrContentPolicy},
		{"safety wording", &openai.APIError{Message: "Your request was rejected by the safety system", HTTPStatusCode: 400}, ErrContentPolicy},
		{"too large", &openai.APIError{Message: "Request entity too large", HTTPStatusCode: 413}, ErrPayloadTooLarge},
		{"gateway timeout", &openai.RequestError{HTTPStatusCode: 504, Err: errors.New("upstream")}, ErrTimeout},
		{"already classified", ErrNoImages, ErrNoImages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err), tt.want)
		})
	}

	assert.Nil(t, Classify(nil))

	var providerErr *ProviderError
	require.ErrorAs(t, Classify(&openai.APIError{Message: "bad key", HTTPStatusCode: 401}), &providerErr)
	assert.Equal(t, 401, providerErr.StatusCode)
}

func TestNormalizeOptions(t *testing.T) {
	assert.Equal(t, "1024x1024", NormalizeSize("1024"))
	assert.Equal(t, "1024x1536", NormalizeSize("1024×1536"))
	assert.Equal(t, "1536x1024", NormalizeSize(" 1536X1024 "))
	assert.Equal(t, DefaultSize, NormalizeSize("512x512"))
	assert.True(t, IsSupportedSize("1024x1536"))
	assert.False(t, IsSupportedSize("256x256"))

	assert.Equal(t, "high", GenerateQuality("hd"))
	assert.Equal(t, "medium", GenerateQuality("standard"))
	assert.Equal(t, "medium", EditQuality("standard"))
	assert.Equal(t, "auto", EditQuality(""))
	assert.Equal(t, "high", EditQuality("HD"))

	assert.Equal(t, "transparent", NormalizeBackground("Transparent"))
	assert.Equal(t, "auto", NormalizeBackground("checkered"))
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: ProviderOpenAI})
	assert.Error(t, err)

	p, err := NewProvider(ProviderConfig{OpenAIKey: "sk-test", Model: "dall-e-3"})
	require.NoError(t, err)
	assert.Equal(t, "OpenAI (dall-e-3)", p.GetProviderName())

	_, err = NewProvider(ProviderConfig{Type: "stability", OpenAIKey: "k"})
	assert.Error(t, err)
}
