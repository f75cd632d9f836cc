package privacy

import (
	"context"
	"errors"
	"strings"
)

// ErrBackendUnreachable is returned when the model-assisted detector cannot
// reach its inference endpoint or the call times out.
var ErrBackendUnreachable = errors.New("privacy: detection backend unreachable")

// Category is one of the fixed PII categories shared by every backend
type Category string

const (
	CategoryCreditCard    Category = "credit_card"
	CategorySSN           Category = "ssn"
	CategoryEmail         Category = "email"
	CategoryPhone         Category = "phone"
	CategoryName          Category = "name"
	CategoryAddress       Category = "address"
	CategoryDateOfBirth   Category = "date_of_birth"
	CategoryAccountNumber Category = "account_number"
)

// Categories lists every category in substitution order.
var Categories = []Category{
	CategoryCreditCard,
	CategorySSN,
	CategoryEmail,
	CategoryPhone,
	CategoryName,
	CategoryAddress,
	CategoryDateOfBirth,
	CategoryAccountNumber,
}

// categoryAliases maps the plural keys models tend to emit
var categoryAliases = map[string]Category{
	"credit_cards":    CategoryCreditCard,
	"ssns":            CategorySSN,
	"emails":          CategoryEmail,
	"phones":          CategoryPhone,
	"names":           CategoryName,
	"addresses":       CategoryAddress,
	"dates_of_birth":  CategoryDateOfBirth,
	"account_numbers": CategoryAccountNumber,
}

// ParseCategory resolves a category name, its upper-case form or a plural alias
func ParseCategory(s string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == key {
			return c, true
		}
	}
	c, ok := categoryAliases[key]
	return c, ok
}

// Label returns the upper-case form used inside placeholders
func (c Category) Label() string {
	return strings.ToUpper(string(c))
}

// DetectionResult maps each category to the raw substrings found for it,
// in scan order. Duplicates are kept.
type DetectionResult map[Category][]string

// NewDetectionResult returns a result with every category present and empty
func NewDetectionResult() DetectionResult {
	res := make(DetectionResult, len(Categories))
	for _, c := range Categories {
		res[c] = []string{}
	}
	return res
}

// Add appends a value to a category
func (d DetectionResult) Add(c Category, value string) {
	d[c] = append(d[c], value)
}

// Total counts all values across categories
func (d DetectionResult) Total() int {
	n := 0
	for _, values := range d {
		n += len(values)
	}
	return n
}

// Counts returns the number of values per non-empty category
func (d DetectionResult) Counts() map[Category]int {
	counts := make(map[Category]int)
	for c, values := range d {
		if len(values) > 0 {
			counts[c] = len(values)
		}
	}
	return counts
}

// Result is the outcome of a detect-and-mask call
type Result struct {
	Detected   DetectionResult `json:"detected"`
	MaskedText string          `json:"masked_text"`
	Mapping    *Mapping        `json:"mapping"`
}

// Status reports availability of the model-assisted backend
type Status struct {
	BackendReachable bool `json:"backend_reachable"`
	ModelAvailable   bool `json:"model_available"`
}

// Backend is the contract shared by the pattern and model-assisted maskers
type Backend interface {
	Name() string
	DetectAndMask(ctx context.Context, text string) (*Result, error)
	Unmask(text string, mapping *Mapping) string
}
