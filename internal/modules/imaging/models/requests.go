package models

import "github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"

// GenerateRequest is the body of POST /api/image/generate
type GenerateRequest struct {
	Prompt     string `json:"prompt" validate:"required,min=3,max=2000"`
	Size       string `json:"size" validate:"oneof=1024x1024 1024x1536 1536x1024"`
	N          int    `json:"n" validate:"min=1,max=4"`
	Quality    string `json:"quality" validate:"oneof=standard hd low medium high auto"`
	Background string `json:"background" validate:"oneof=auto transparent opaque"`
}

// ApplyDefaults fills omitted fields
func (r *GenerateRequest) ApplyDefaults() {
	if r.Size == "" {
		r.Size = imagegen.DefaultSize
	}
	if r.N == 0 {
		r.N = 1
	}
	if r.Quality == "" {
		r.Quality = "standard"
	}
	if r.Background == "" {
		r.Background = "auto"
	}
}

// EditRequest holds the text fields of the multipart edit form. Size is
// normalised rather than validated. Background is accepted for form
// compatibility with generate but the edits endpoint cannot apply it.
type EditRequest struct {
	Prompt     string `form:"prompt" json:"prompt" validate:"required,min=3,max=2000"`
	Size       string `form:"size" json:"size"`
	Quality    string `form:"quality" json:"quality" validate:"oneof=standard hd auto low medium high"`
	Background string `form:"background" json:"background" validate:"oneof=auto transparent opaque"`
}

// ApplyDefaults fills omitted fields
func (r *EditRequest) ApplyDefaults() {
	r.Size = imagegen.NormalizeSize(r.Size)
	if r.Quality == "" {
		r.Quality = "standard"
	}
	if r.Background == "" {
		r.Background = "auto"
	}
}

// GrantRequest is the body of POST /api/admin/credits/grant
type GrantRequest struct {
	UserID         string `json:"user_id" validate:"required,max=128"`
	Amount         int64  `json:"amount" validate:"required,gt=0,lte=100000"`
	Reference      string `json:"reference" validate:"max=200"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=200"`
}
