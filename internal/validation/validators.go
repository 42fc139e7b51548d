package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/health-report/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("file_category", validateFileCategory); err != nil {
		panic(fmt.Sprintf("failed to register file_category validator: %v", err))
	}
	if err := Validate.RegisterValidation("sex", validateSex); err != nil {
		panic(fmt.Sprintf("failed to register sex validator: %v", err))
	}
}

// validateFileCategory accepts any top-level category of the upload taxonomy.
func validateFileCategory(fl validator.FieldLevel) bool {
	_, ok := models.Categories[fl.Field().String()]
	return ok
}

func validateSex(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "male", "female", "other":
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// FormatErrors flattens validator errors into a single client-facing message.
func FormatErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
