package amounts

import (
	"encoding/json"
	"slices"
)

// StatusNoAmounts marks the guardrail result of Stage 1
const StatusNoAmounts = "no_amounts_found"

// DefaultCurrency is reported when detection finds nothing and on every error result
const DefaultCurrency = "INR"

// RawTokens is the Stage 1 success shape
type RawTokens struct {
	Tokens       []string `json:"raw_tokens"`
	CurrencyHint string   `json:"currency_hint"`
	Confidence   float64  `json:"confidence"`
}

// Guardrail signals that a document holds no plausible amounts. It is a
// terminal result, not an error.
type Guardrail struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// NewGuardrail creates a no_amounts_found signal with the given reason
func NewGuardrail(reason string) *Guardrail {
	return &Guardrail{Status: StatusNoAmounts, Reason: reason}
}

// TokenResult is either raw tokens or the guardrail, never both
type TokenResult struct {
	Raw       *RawTokens
	Guardrail *Guardrail
}

// NoAmounts reports whether Stage 1 signalled the guardrail
func (r TokenResult) NoAmounts() bool {
	return r.Guardrail != nil || r.Raw == nil
}

// MarshalJSON emits exactly one of the two result shapes
func (r TokenResult) MarshalJSON() ([]byte, error) {
	if r.NoAmounts() {
		g := r.Guardrail
		if g == nil {
			g = NewGuardrail("no monetary amounts detected")
		}
		return json.Marshal(g)
	}
	return json.Marshal(r.Raw)
}

// NormalizedAmounts is the Stage 2 output
type NormalizedAmounts struct {
	Values     []float64 `json:"normalized_amounts"`
	Confidence float64   `json:"normalization_confidence"`
}

// Category is the semantic role of an amount on a bill
type Category string

const (
	TotalBill Category = "total_bill"
	Paid      Category = "paid"
	Due       Category = "due"
	Discount  Category = "discount"
	Tax       Category = "tax"
	Subtotal  Category = "subtotal"
	Other     Category = "other"
)

// Categories lists every valid category
var Categories = []Category{TotalBill, Paid, Due, Discount, Tax, Subtotal, Other}

// ClassifiedAmount is a value with its category and the label found next to it
type ClassifiedAmount struct {
	Category Category `json:"type"`
	Value    float64  `json:"value"`
	Entity   string   `json:"entity,omitempty"`
}

// ClassificationResult is the Stage 3 output
type ClassificationResult struct {
	Amounts    []ClassifiedAmount `json:"amounts"`
	Confidence float64            `json:"confidence"`
}

// FinalAmount is an amount with its provenance
type FinalAmount struct {
	Category string  `json:"type"`
	Value    float64 `json:"value"`
	Source   string  `json:"source"`
}

// Result statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the pipeline output serialized to callers
type Result struct {
	Currency string        `json:"currency"`
	Amounts  []FinalAmount `json:"amounts"`
	Status   string        `json:"status"`
}

// ErrorResult is returned for the guardrail and for every internal failure
func ErrorResult() Result {
	return Result{
		Currency: DefaultCurrency,
		Amounts:  []FinalAmount{},
		Status:   StatusError,
	}
}

var priorities = map[string]int{
	string(TotalBill): 0,
	string(Paid):      1,
	string(Due):       2,
	string(Tax):       3,
}

// Priority orders categories for display; unlisted categories share the
// lowest priority.
func Priority(category string) int {
	if p, ok := priorities[category]; ok {
		return p
	}
	return 100
}

// SortByPriority stable-sorts items by the priority of their category
func SortByPriority[T any](items []T, category func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Priority(category(a)) - Priority(category(b))
	})
}

func classifiedCategory(a ClassifiedAmount) string { return string(a.Category) }

func finalCategory(a FinalAmount) string { return a.Category }

// mean folds scores into (sum, count) and divides; no scores means zero
func mean(scores []float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	if len(scores) == 0 {
		return 0
	}
	return sum / float64(len(scores))
}
