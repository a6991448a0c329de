package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrTimeout         = errors.New("image provider timed out")
	ErrContentPolicy   = errors.New("prompt rejected by the content policy")
	ErrPayloadTooLarge = errors.New("payload too large for the image provider")
	ErrNoImages        = errors.New("no images returned")
)

// ProviderError is a non-classified failure reported by the provider.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("image provider error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("image provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify turns a raw client error into one of the package errors so
// callers can pick a response status without knowing the provider.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrContentPolicy) ||
		errors.Is(err, ErrPayloadTooLarge) || errors.Is(err, ErrNoImages) {
		return err
	}
	var classified *ProviderError
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	status, code, message := 0, "", err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
		if c, ok := apiErr.Code.(string); ok {
			code = c
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
	}

	lower := strings.ToLower(code + " " + message)
	switch {
	case strings.Contains(lower, "content_policy") || strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "safety") || strings.Contains(lower, "moderation_blocked"):
		return fmt.Errorf("%w: %s", ErrContentPolicy, message)
	case status == http.StatusRequestEntityTooLarge || strings.Contains(lower, "too large"):
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, message)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, message)
	}

	return &ProviderError{StatusCode: status, Code: code, Message: message, Err: err}
}
