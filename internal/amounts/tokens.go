package amounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/bill-amounts/internal/llm"
)

// ErrStrategiesExhausted is returned when every strategy of a stage failed
var ErrStrategiesExhausted = errors.New("all strategies failed")

// TokenStrategy extracts candidate amount tokens from bill text
type TokenStrategy interface {
	Name() string
	ExtractTokens(ctx context.Context, text string) (TokenResult, error)
}

// LLMTokenStrategy asks a model for the tokens and the currency hint
type LLMTokenStrategy struct {
	model llm.Model
}

// NewLLMTokenStrategy creates a token strategy backed by model
func NewLLMTokenStrategy(model llm.Model) *LLMTokenStrategy {
	return &LLMTokenStrategy{model: model}
}

func (s *LLMTokenStrategy) Name() string { return "llm" }

func (s *LLMTokenStrategy) ExtractTokens(ctx context.Context, text string) (TokenResult, error) {
	resp, err := s.model.Generate(ctx, buildTokensPrompt(text))
	if err != nil {
		return TokenResult{}, fmt.Errorf("generating tokens: %w", err)
	}
	raw, err := llm.ExtractJSON(resp)
	if err != nil {
		return TokenResult{}, err
	}

	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
		RawTokens
	}
	if err := decodeValidated(tokensSchema, raw, &payload); err != nil {
		return TokenResult{}, err
	}

	if payload.Status == StatusNoAmounts {
		return TokenResult{Guardrail: NewGuardrail(payload.Reason)}, nil
	}
	if len(payload.Tokens) == 0 {
		return TokenResult{Guardrail: NewGuardrail("no monetary amounts detected")}, nil
	}
	tokens := payload.RawTokens
	return TokenResult{Raw: &tokens}, nil
}

var (
	numericToken = regexp.MustCompile(`\d+(?:\.\d+)?%?`)

	// spans that hold digits but never an amount
	nonMonetary = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpage\s*(?:no\.?\s*)?\d+(?:\s*(?:of|/)\s*\d+)?`),
		regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		// one labelled number: 98765 43210, +91-98765-43210 or 555-123-4567
		regexp.MustCompile(`(?i)\b(?:phone|ph|tel|mob(?:ile)?|contact)\b\.?[ \t]*(?:no\.?)?[ \t]*:?[ \t]*` +
			`\+?(?:\d{1,3}[ \t\-]?)?(?:\d{5}[ \t\-]?\d{5}|\d{3}[ \t\-]?\d{3}[ \t\-]?\d{4})`),
		regexp.MustCompile(`\+?\d{10,}`),
	}

	// word markers must stand alone; "Rs" does not match inside "Hrs"
	currencyMarkers = []struct {
		pattern  *regexp.Regexp
		word     bool
		currency string
	}{
		{regexp.MustCompile(`(?i)INR|Rs\.?`), true, "INR"},
		{regexp.MustCompile(`₹`), false, "INR"},
		{regexp.MustCompile(`\$`), false, "USD"},
		{regexp.MustCompile(`€`), false, "EUR"},
		{regexp.MustCompile(`£`), false, "GBP"},
	}
)

// regexNoAmountsReason is reported when the heuristic finds no usable number
const regexNoAmountsReason = "document too noisy or no numeric values found"

// RegexTokenStrategy finds numeric tokens with regular expressions. It never
// fails.
type RegexTokenStrategy struct{}

func (RegexTokenStrategy) Name() string { return "regex" }

func (RegexTokenStrategy) ExtractTokens(_ context.Context, text string) (TokenResult, error) {
	masked := maskNonMonetary(text)

	var tokens []string
	for _, tok := range numericToken.FindAllString(masked, -1) {
		v, err := strconv.ParseFloat(strings.TrimSuffix(tok, "%"), 64)
		if err != nil || v < 1 {
			continue
		}
		tokens = append(tokens, tok)
	}

	if len(tokens) == 0 {
		return TokenResult{Guardrail: NewGuardrail(regexNoAmountsReason)}, nil
	}

	return TokenResult{Raw: &RawTokens{
		Tokens:       tokens,
		CurrencyHint: detectCurrency(text),
		Confidence:   math.Min(0.9, 0.5+0.1*float64(len(tokens))),
	}}, nil
}

// maskNonMonetary blanks out the nonMonetary spans
func maskNonMonetary(text string) string {
	for _, re := range nonMonetary {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.Repeat(" ", len(m))
		})
	}
	return text
}

func detectCurrency(text string) string {
	for _, m := range currencyMarkers {
		if m.word && len(wordMatches(m.pattern, text)) > 0 || !m.word && m.pattern.MatchString(text) {
			return m.currency
		}
	}
	return DefaultCurrency
}

// TokenExtractor runs token strategies in order until one succeeds
type TokenExtractor struct {
	strategies []TokenStrategy
}

// NewTokenExtractor creates an extractor over the given strategies
func NewTokenExtractor(strategies ...TokenStrategy) *TokenExtractor {
	return &TokenExtractor{strategies: strategies}
}

// Extract returns the first strategy result that is not an error
func (e *TokenExtractor) Extract(ctx context.Context, text string) (TokenResult, error) {
	var errs []error
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return TokenResult{}, err
		}
		res, err := s.ExtractTokens(ctx, text)
		if err != nil {
			slog.Warn("Token strategy failed, falling back", "strategy", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		slog.Info("Extracted raw tokens", "strategy", s.Name(), "guardrail", res.NoAmounts())
		return res, nil
	}
	return TokenResult{}, errors.Join(append([]error{ErrStrategiesExhausted}, errs...)...)
}
