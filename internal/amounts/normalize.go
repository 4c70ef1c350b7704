package amounts

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	acceptedWeight = 0.9
	rejectedWeight = 0.3
)

var (
	symbolStripper = strings.NewReplacer("$", "", "₹", "", "€", "", "£", "", "¥", "", ",", "")

	// common OCR misreads of digits
	ocrDigits = strings.NewReplacer(
		"O", "0", "o", "0",
		"l", "1", "I", "1",
		"S", "5", "s", "5",
		"G", "6", "g", "6",
		"T", "7", "t", "7",
		"B", "8", "b", "8",
		"q", "9", "Q", "9",
	)
)

// NormalizeAmounts turns raw tokens into numbers, correcting OCR digit
// confusions. Tokens that still do not parse as a non-negative decimal are
// dropped and lower the confidence.
func NormalizeAmounts(tokens []string) NormalizedAmounts {
	values := []float64{}
	weights := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, ok := normalizeToken(tok)
		if !ok {
			weights[i] = rejectedWeight
			continue
		}
		values = append(values, v)
		weights[i] = acceptedWeight
	}
	return NormalizedAmounts{Values: values, Confidence: mean(weights)}
}

func normalizeToken(tok string) (float64, bool) {
	s := symbolStripper.Replace(strings.TrimSpace(tok))
	s = ocrDigits.Replace(strings.TrimSuffix(s, "%"))

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	v, _ := d.Float64()
	if math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
