package models

import (
	"errors"
	"fmt"
)

// Top-level file categories.
const (
	CategoryDiet         = "diet"
	CategorySelfies      = "selfies"
	CategoryHealth       = "health"
	CategoryIntegrations = "integrations"
)

// Categories maps each category to its allowed subcategories. A nil slice means
// the category takes no subcategory.
var Categories = map[string][]string{
	CategoryDiet:         {"receipts", "food_images"},
	CategorySelfies:      nil,
	CategoryHealth:       {"patient_records", "diagnostic_reports", "prescriptions", "surgical_documents", "other"},
	CategoryIntegrations: {"strava"},
}

// CategoryOrder is the stable presentation order of Categories.
var CategoryOrder = []string{CategoryDiet, CategorySelfies, CategoryHealth, CategoryIntegrations}

// ErrInvalidClassification is returned when a category/subcategory pair is outside the taxonomy.
var ErrInvalidClassification = errors.New("invalid classification")

// Classification is the result of classifying one upload. Both fields are null
// when the file type cannot be classified.
type Classification struct {
	Category    *string `json:"category"`
	Subcategory *string `json:"subcategory"`
}

// Unclassified is the result for unsupported file types.
func Unclassified() Classification {
	return Classification{}
}

// Validate checks the pair against the taxonomy. An all-null classification is valid.
func (c Classification) Validate() error {
	if c.Category == nil {
		if c.Subcategory != nil {
			return fmt.Errorf("%w: subcategory %q without category", ErrInvalidClassification, *c.Subcategory)
		}
		return nil
	}

	subs, ok := Categories[*c.Category]
	if !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidClassification, *c.Category)
	}

	if subs == nil {
		if c.Subcategory != nil {
			return fmt.Errorf("%w: category %q takes no subcategory, got %q", ErrInvalidClassification, *c.Category, *c.Subcategory)
		}
		return nil
	}

	if c.Subcategory == nil {
		return fmt.Errorf("%w: category %q requires a subcategory", ErrInvalidClassification, *c.Category)
	}
	for _, s := range subs {
		if s == *c.Subcategory {
			return nil
		}
	}
	return fmt.Errorf("%w: subcategory %q is not valid for category %q", ErrInvalidClassification, *c.Subcategory, *c.Category)
}
