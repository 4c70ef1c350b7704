package amounts

import (
	"fmt"
	"log/slog"
	"math"
)

// GenerateFinalOutput attaches provenance to each classified amount and
// orders them by priority. Any failure yields ErrorResult.
func GenerateFinalOutput(text, currency string, classified []ClassifiedAmount) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Failed to assemble final output", "panic", r)
			result = ErrorResult()
		}
	}()

	final := make([]FinalAmount, 0, len(classified))
	for _, a := range classified {
		if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
			slog.Error("Failed to assemble final output", "error", "non-finite value", "type", a.Category)
			return ErrorResult()
		}
		final = append(final, FinalAmount{
			Category: string(a.Category),
			Value:    a.Value,
			Source:   provenance(text, a.Value),
		})
	}
	SortByPriority(final, finalCategory)

	if currency == "" {
		currency = DefaultCurrency
	}
	return Result{Currency: currency, Amounts: final, Status: StatusOK}
}

// provenance quotes the text around the first occurrence of v, or names the
// bare value when it does not appear in text
func provenance(text string, v float64) string {
	start, end, ok := findValue(text, v)
	if !ok {
		return fmt.Sprintf("value: %s", formatValue(v))
	}
	return fmt.Sprintf("text: '%s'", window(text, start, end, contextRadius))
}
