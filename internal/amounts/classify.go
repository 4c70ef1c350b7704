package amounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/zombor/bill-amounts/internal/llm"
)

// ClassifyStrategy assigns a category to each value found in text
type ClassifyStrategy interface {
	Name() string
	Classify(ctx context.Context, text string, values []float64) (ClassificationResult, error)
}

// LLMClassifyStrategy asks a model for the category and label of each value
type LLMClassifyStrategy struct {
	model llm.Model
}

// NewLLMClassifyStrategy creates a classify strategy backed by model
func NewLLMClassifyStrategy(model llm.Model) *LLMClassifyStrategy {
	return &LLMClassifyStrategy{model: model}
}

func (s *LLMClassifyStrategy) Name() string { return "llm" }

func (s *LLMClassifyStrategy) Classify(ctx context.Context, text string, values []float64) (ClassificationResult, error) {
	resp, err := s.model.Generate(ctx, buildClassifyPrompt(text, values))
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("generating classification: %w", err)
	}
	raw, err := llm.ExtractJSON(resp)
	if err != nil {
		return ClassificationResult{}, err
	}

	var result ClassificationResult
	if err := decodeValidated(classificationSchema, raw, &result); err != nil {
		return ClassificationResult{}, err
	}
	for i := range result.Amounts {
		result.Amounts[i].Entity = strings.TrimSpace(result.Amounts[i].Entity)
	}
	if result.Amounts == nil {
		result.Amounts = []ClassifiedAmount{}
	}
	return result, nil
}

// keywordWindow is how far from a value a keyword may start and still count
const keywordWindow = 100

// unmatchedConfidence is given to values no keyword points at
const unmatchedConfidence = 0.3

type keywordGroup struct {
	category   Category
	confidence float64
	pattern    *regexp.Regexp
}

func newKeywordGroup(category Category, confidence float64, keywords ...string) keywordGroup {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(k), " ", `\s+`)
	}
	return keywordGroup{
		category:   category,
		confidence: confidence,
		pattern:    regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`),
	}
}

// keywordGroups is in precedence order; longer phrases come first within a group
var keywordGroups = []keywordGroup{
	newKeywordGroup(TotalBill, 0.9, "grand total", "bill total", "amount due", "final amount", "net amount", "total"),
	newKeywordGroup(Paid, 0.9, "payment", "received", "paid"),
	newKeywordGroup(Due, 0.9, "outstanding", "remaining", "balance", "pending", "due"),
	newKeywordGroup(Discount, 0.8, "discount", "reduction", "disc", "off"),
	newKeywordGroup(Tax, 0.8, "service tax", "cgst", "sgst", "gst", "vat", "tax"),
	newKeywordGroup(Subtotal, 0.8, "base amount", "sub total", "subtotal"),
}

var (
	trailingCurrency   = regexp.MustCompile(`(?i)(?:\brs\.?|\binr|[$₹€£¥])\s*$`)
	trailingSeparators = regexp.MustCompile(`[\s:=\-.,;/|()#*]+$`)
	trailingLabel      = regexp.MustCompile(`\p{L}[\p{L} ]*$`)
)

// KeywordClassifyStrategy classifies values by the keywords written near
// them. It never fails.
type KeywordClassifyStrategy struct{}

func (KeywordClassifyStrategy) Name() string { return "keyword" }

func (KeywordClassifyStrategy) Classify(_ context.Context, text string, values []float64) (ClassificationResult, error) {
	amounts := make([]ClassifiedAmount, 0, len(values))
	scores := make([]float64, 0, len(values))
	for _, v := range values {
		a, confidence := classifyValue(text, v)
		amounts = append(amounts, a)
		scores = append(scores, confidence)
	}
	return ClassificationResult{Amounts: amounts, Confidence: mean(scores)}, nil
}

type keywordHit struct {
	group     int
	preceding bool
	gap       int
}

// beats ranks hits by confidence, then keywords written before the value,
// then distance, then group precedence
func (h keywordHit) beats(o keywordHit) bool {
	hc, oc := keywordGroups[h.group].confidence, keywordGroups[o.group].confidence
	if hc != oc {
		return hc > oc
	}
	if h.preceding != o.preceding {
		return h.preceding
	}
	if h.gap != o.gap {
		return h.gap < o.gap
	}
	return h.group < o.group
}

func classifyValue(text string, v float64) (ClassifiedAmount, float64) {
	a := ClassifiedAmount{Category: Other, Value: v}

	start, end, ok := findValue(text, v)
	if !ok {
		return a, unmatchedConfidence
	}

	var best *keywordHit
	for gi, g := range keywordGroups {
		for _, m := range wordMatches(g.pattern, text) {
			var hit keywordHit
			switch {
			case m[1] <= start && start-m[0] < keywordWindow:
				hit = keywordHit{group: gi, preceding: true, gap: start - m[1]}
			case m[0] >= end && m[0]-start < keywordWindow:
				hit = keywordHit{group: gi, gap: m[0] - end}
			default:
				continue
			}
			if best == nil || hit.beats(*best) {
				best = &hit
			}
		}
	}

	a.Entity = label(text, start)
	confidence := unmatchedConfidence
	if best != nil {
		g := keywordGroups[best.group]
		a.Category = g.category
		confidence = g.confidence
		if a.Entity == "" {
			a.Entity = string(g.category)
		}
	}
	return a, confidence
}

// label returns the words written just before the value at start, skipping a
// currency marker such as "Rs." between them
func label(text string, start int) string {
	before := strings.TrimRightFunc(preceding(text, start, contextRadius), isSpace)
	before = trailingCurrency.ReplaceAllString(before, "")
	before = trailingSeparators.ReplaceAllString(before, "")
	return strings.TrimSpace(trailingLabel.FindString(before))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// ContextClassifier runs classify strategies in order until one succeeds and
// orders its amounts by category priority
type ContextClassifier struct {
	strategies []ClassifyStrategy
}

// NewContextClassifier creates a classifier over the given strategies
func NewContextClassifier(strategies ...ClassifyStrategy) *ContextClassifier {
	return &ContextClassifier{strategies: strategies}
}

// Classify returns the first strategy result that is not an error
func (c *ContextClassifier) Classify(ctx context.Context, text string, values []float64) (ClassificationResult, error) {
	if len(values) == 0 {
		return ClassificationResult{Amounts: []ClassifiedAmount{}}, nil
	}

	var errs []error
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return ClassificationResult{}, err
		}
		res, err := s.Classify(ctx, text, values)
		if err != nil {
			slog.Warn("Classify strategy failed, falling back", "strategy", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		SortByPriority(res.Amounts, classifiedCategory)
		slog.Info("Classified amounts", "strategy", s.Name(), "count", len(res.Amounts), "confidence", res.Confidence)
		return res, nil
	}
	return ClassificationResult{}, errors.Join(append([]error{ErrStrategiesExhausted}, errs...)...)
}
