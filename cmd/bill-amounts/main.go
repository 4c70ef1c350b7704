package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-amounts/internal/amounts"
	"github.com/zombor/bill-amounts/internal/llm"
	"github.com/zombor/bill-amounts/internal/retry"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bill-amounts")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		modelType     = fs.StringLong("model", "gemini", "Model provider: 'gemini', 'ollama', 'openai' or 'none' for heuristics only")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", llm.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		openaiURL     = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel   = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		retryAttempts = fs.IntLong("retry-attempts", 3, "Maximum attempts per model call")
		retryBackoff  = fs.StringLong("retry-backoff", "exponential", "Backoff between attempts: 'exponential' or 'linear'")
		retryDelay    = fs.DurationLong("retry-delay", time.Second, "Base delay for exponential backoff or fixed delay for linear backoff")
		retryFailFast = fs.BoolLong("retry-fail-fast", "Do not retry errors that are not transient")
		batchLimit    = fs.IntLong("batch-limit", 4, "Maximum documents processed at once in a batch")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_AMOUNTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize retry executor
	var backoff retry.Backoff
	switch *retryBackoff {
	case "exponential":
		backoff = retry.Exponential{Base: *retryDelay}
	case "linear":
		backoff = retry.Linear{Wait: *retryDelay}
	default:
		slog.Error("Invalid retry backoff", "backoff", *retryBackoff, "valid", "exponential or linear")
		os.Exit(1)
	}
	executor := retry.NewExecutor(backoff)
	executor.FailFast = *retryFailFast

	// Initialize model based on type
	var (
		model llm.Model
		err   error
	)
	switch *modelType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini model...", "model", *geminiModel)
		model, err = llm.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama model...", "url", *ollamaURL, "model", *ollamaModel)
		model, err = llm.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "openai":
		slog.Info("Initializing OpenAI model...", "url", *openaiURL, "model", *openaiModel)
		model, err = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  *openaiKey,
			BaseURL: *openaiURL,
			Model:   *openaiModel,
		})
		if err != nil {
			slog.Error("Failed to initialize OpenAI", "error", err)
			os.Exit(1)
		}
	case "none":
		slog.Info("No model configured, using heuristics only")
	default:
		slog.Error("Invalid model type", "type", *modelType, "valid", "gemini, ollama, openai or none")
		os.Exit(1)
	}
	if model != nil {
		model = llm.NewRetrying(model, executor, *retryAttempts)
	}

	// Initialize pipeline
	pipeline := amounts.NewPipeline(model)

	// Positional arguments are documents to process once
	if files := fs.GetArgs(); len(files) > 0 {
		os.Exit(runFiles(pipeline, model, files, *batchLimit, os.Stdout))
	}

	// Initialize server
	server := amounts.NewServer(pipeline, amounts.ServerConfig{
		BasicAuth: amounts.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		Model:      *modelType,
		BatchLimit: *batchLimit,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	code := 0
	select {
	case <-sigChan:
		slog.Info("Shutting down...")
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		code = 1
	}
	closeModel(model)
	os.Exit(code)
}

func closeModel(model llm.Model) {
	if model == nil {
		return
	}
	if err := model.Close(); err != nil {
		slog.Warn("Failed to close model", "error", err)
	}
}

// runFiles processes files once and returns the process exit code. The model
// is closed before it returns.
func runFiles(pipeline *amounts.Pipeline, model llm.Model, files []string, limit int, w io.Writer) int {
	defer closeModel(model)

	if err := runBatch(pipeline, files, limit, w); err != nil {
		slog.Error("Batch failed", "error", err)
		return 1
	}
	return 0
}

// fileResult pairs a document with its extraction result
type fileResult struct {
	File   string         `json:"file"`
	Result amounts.Result `json:"result"`
}

// runBatch extracts amounts from each file and prints the results as JSON
func runBatch(pipeline *amounts.Pipeline, files []string, limit int, w io.Writer) error {
	texts := make([]string, len(files))
	for i, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}
		texts[i] = string(b)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := pipeline.ExecuteBatch(ctx, texts, limit)
	if err != nil {
		return err
	}

	out := make([]fileResult, len(files))
	for i, f := range files {
		out[i] = fileResult{File: f, Result: results[i]}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}
