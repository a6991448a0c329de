package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Prompt string `json:"prompt" validate:"required,min=3"`
	N      int    `json:"n" validate:"min=1,max=4"`
	Size   string `form:"size" validate:"oneof=a b"`
}

func TestStruct(t *testing.T) {
	v := New()

	assert.Nil(t, v.Struct(sample{Prompt: "cat", N: 1, Size: "a"}))

	errs := v.Struct(sample{Prompt: "c", N: 9, Size: "z"})
	assert.Equal(t, []FieldError{
		{Field: "prompt", Rule: "min", Param: "3"},
		{Field: "n", Rule: "max", Param: "4"},
		{Field: "size", Rule: "oneof", Param: "a b"},
	}, errs)

	errs = v.Struct(sample{N: 1, Size: "b"})
	assert.Equal(t, []FieldError{{Field: "prompt", Rule: "required"}}, errs)
}
