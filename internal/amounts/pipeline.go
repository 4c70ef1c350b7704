package amounts

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-amounts/internal/llm"
)

// Stage identifies a pipeline step
type Stage int

const (
	StageTokens Stage = iota + 1
	StageNormalize
	StageClassify
	StageFinal
)

// Trace holds the output of every stage that ran. Stages after the guardrail
// or after the requested stage are nil.
type Trace struct {
	Tokens     TokenResult
	Normalized *NormalizedAmounts
	Classified *ClassificationResult
	Final      *Result
}

// Pipeline runs the four extraction stages over one document at a time
type Pipeline struct {
	tokens     *TokenExtractor
	classifier *ContextClassifier
}

// NewPipeline creates a Pipeline that prefers model and falls back to the
// heuristics. A nil model runs the heuristics only.
func NewPipeline(model llm.Model) *Pipeline {
	tokens := []TokenStrategy{RegexTokenStrategy{}}
	classifiers := []ClassifyStrategy{KeywordClassifyStrategy{}}
	if model != nil {
		tokens = append([]TokenStrategy{NewLLMTokenStrategy(model)}, tokens...)
		classifiers = append([]ClassifyStrategy{NewLLMClassifyStrategy(model)}, classifiers...)
	}
	return NewPipelineWithStrategies(tokens, classifiers)
}

// NewPipelineWithStrategies creates a Pipeline with custom strategy chains for testing
func NewPipelineWithStrategies(tokens []TokenStrategy, classifiers []ClassifyStrategy) *Pipeline {
	return &Pipeline{
		tokens:     NewTokenExtractor(tokens...),
		classifier: NewContextClassifier(classifiers...),
	}
}

// ExtractRawTokens runs Stage 1
func (p *Pipeline) ExtractRawTokens(ctx context.Context, text string) (TokenResult, error) {
	return p.tokens.Extract(ctx, text)
}

// NormalizeAmounts runs Stage 2
func (p *Pipeline) NormalizeAmounts(tokens []string) NormalizedAmounts {
	return NormalizeAmounts(tokens)
}

// ClassifyAmounts runs Stage 3
func (p *Pipeline) ClassifyAmounts(ctx context.Context, text string, values []float64) (ClassificationResult, error) {
	return p.classifier.Classify(ctx, text, values)
}

// GenerateFinalOutput runs Stage 4
func (p *Pipeline) GenerateFinalOutput(text, currency string, classified []ClassifiedAmount) Result {
	return GenerateFinalOutput(text, currency, classified)
}

// Inspect runs stages 1 through the given stage from scratch and returns every
// intermediate result. The guardrail ends the run without an error.
func (p *Pipeline) Inspect(ctx context.Context, text string, through Stage) (Trace, error) {
	var trace Trace

	tokens, err := p.ExtractRawTokens(ctx, text)
	if err != nil {
		return trace, fmt.Errorf("extracting raw tokens: %w", err)
	}
	trace.Tokens = tokens
	if through < StageNormalize || tokens.NoAmounts() {
		return trace, nil
	}

	normalized := p.NormalizeAmounts(tokens.Raw.Tokens)
	trace.Normalized = &normalized
	if through < StageClassify {
		return trace, nil
	}

	classified, err := p.ClassifyAmounts(ctx, text, normalized.Values)
	if err != nil {
		return trace, fmt.Errorf("classifying amounts: %w", err)
	}
	trace.Classified = &classified
	if through < StageFinal {
		return trace, nil
	}

	final := p.GenerateFinalOutput(text, tokens.Raw.CurrencyHint, classified.Amounts)
	trace.Final = &final
	return trace, nil
}

// ExecuteFullPipeline runs all four stages. It never fails: the guardrail and
// every error become ErrorResult.
func (p *Pipeline) ExecuteFullPipeline(ctx context.Context, text string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pipeline panicked", "panic", r)
			result = ErrorResult()
		}
	}()

	trace, err := p.Inspect(ctx, text, StageFinal)
	if err != nil {
		slog.Error("Pipeline failed", "error", err)
		return ErrorResult()
	}
	if trace.Tokens.NoAmounts() {
		slog.Info("No amounts found", "guardrail", trace.Tokens.Guardrail)
		return ErrorResult()
	}
	return *trace.Final
}

// ExecuteBatch runs the full pipeline over independent documents with at most
// limit in flight. Results keep the order of texts. Documents not started
// before ctx is done are reported as ErrorResult and the context error is
// returned.
func (p *Pipeline) ExecuteBatch(ctx context.Context, texts []string, limit int) ([]Result, error) {
	results := make([]Result, len(texts))
	for i := range results {
		results[i] = ErrorResult()
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.ExecuteFullPipeline(ctx, text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("processing batch: %w", err)
	}
	slog.Info("Processed batch", "documents", len(texts))
	return results, nil
}
