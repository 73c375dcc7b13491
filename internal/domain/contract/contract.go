// Package contract decodes language-model output into validated structs.
//
// Output is repaired first (markdown fences, trailing commas, single quotes),
// then decoded and checked with go-playground/validator struct tags. Every
// failure wraps model.ErrComposition.
package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/go-playground/validator/v10"

	"github.com/okian/finsight/internal/domain/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// maxwords=N limits a string to N whitespace-separated words.
	_ = v.RegisterValidation("maxwords", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(strings.Fields(fl.Field().String())) <= n
	})
	return v
}

// Validator returns the shared validator, e.g. for request bodies.
func Validator() *validator.Validate { return validate }

type decodeOptions struct {
	allowUnknown bool
}

// Option tweaks Decode.
type Option func(*decodeOptions)

// AllowUnknownFields accepts keys the destination does not declare.
func AllowUnknownFields() Option {
	return func(o *decodeOptions) { o.allowUnknown = true }
}

// Decode repairs raw, decodes it into dst and validates dst.
func Decode(raw string, dst any, opts ...Option) error {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return fmt.Errorf("%w: empty output", model.ErrComposition)
	}
	if repaired, err := jsonrepair.RepairJSON(text); err == nil && strings.TrimSpace(repaired) != "" {
		text = repaired
	}

	dec := json.NewDecoder(strings.NewReader(text))
	if !o.allowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode: %v", model.ErrComposition, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", model.ErrComposition, err)
	}
	return nil
}
