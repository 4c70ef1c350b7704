package amounts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// maxBodySize caps request bodies at 1MB
const maxBodySize = 1 << 20

const serviceName = "bill-amounts"

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response with the given status code
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLogger(r).Error("Error encoding response", "error", err)
	}
}

// writeError writes the error envelope; detail is omitted when nil
func writeError(w http.ResponseWriter, r *http.Request, code int, message string, detail error) {
	body := map[string]any{
		"status":  "error",
		"message": message,
	}
	if detail != nil {
		body["error"] = detail.Error()
	}
	writeJSON(w, r, code, body)
}

type textRequest struct {
	Text string `json:"text"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

// decodeBody decodes the JSON request body into v, writing a 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		requestLogger(r).Warn("Error decoding request body", "error", err)
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body", nil)
		return false
	}
	return true
}

// decodeText reads the text field, writing a 400 when it is missing or blank
func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, "Text input is required", nil)
		return "", false
	}
	return req.Text, true
}

// handleHealth reports liveness and the configured model
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	model := s.cfg.Model
	if model == "" {
		model = "none"
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"model":     model,
		"timestamp": s.clock.Now().UTC(),
	})
}

// handleStep runs the pipeline through stage and reports that stage's result
// along with the intermediates it was computed from
func (s *Server) handleStep(stage Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r).With("step", int(stage))

		text, ok := decodeText(w, r)
		if !ok {
			return
		}

		log.Info("Processing step")
		trace, err := s.pipeline.Inspect(r.Context(), text, stage)
		if err != nil {
			log.Error("Step processing failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("Step %d processing failed", stage), err)
			return
		}

		body := map[string]any{
			"status": "success",
			"step":   int(stage),
		}
		if stage == StageTokens {
			body["result"] = trace.Tokens
			writeJSON(w, r, http.StatusOK, body)
			return
		}

		if trace.Tokens.NoAmounts() {
			log.Info("No amounts found", "guardrail", trace.Tokens.Guardrail)
			writeError(w, r, http.StatusBadRequest, "No amounts found in text", nil)
			return
		}

		body["raw_tokens"] = trace.Tokens.Raw.Tokens
		switch stage {
		case StageNormalize:
			body["result"] = trace.Normalized
		case StageClassify:
			body["normalized_amounts"] = trace.Normalized.Values
			body["result"] = trace.Classified
		case StageFinal:
			body["normalized_amounts"] = trace.Normalized.Values
			body["classified_amounts"] = trace.Classified.Amounts
			body["result"] = trace.Final
		}
		writeJSON(w, r, http.StatusOK, body)
	}
}

// handlePipeline runs all four stages and returns only the final result
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}

	requestLogger(r).Info("Processing full pipeline")
	result := s.pipeline.ExecuteFullPipeline(r.Context(), text)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "success",
		"pipeline": "complete",
		"result":   result,
	})
}

// handleBatch runs the full pipeline over several independent documents
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, r, http.StatusBadRequest, "Texts input is required", nil)
		return
	}

	log.Info("Processing batch", "documents", len(req.Texts))
	results, err := s.pipeline.ExecuteBatch(r.Context(), req.Texts, s.cfg.BatchLimit)
	if err != nil {
		log.Error("Batch processing failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Batch processing failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "success",
		"results": results,
	})
}
