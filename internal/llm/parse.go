package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model response holds no JSON object
var ErrNoJSON = errors.New("no JSON object found in response")

// ExtractJSON pulls the JSON object out of a model response. The object may
// be raw or fenced in a ```json code block, with text around it.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code fences if present
	if i := strings.Index(text, "```"); i != -1 {
		fenced := text[i+3:]
		fenced = strings.TrimPrefix(fenced, "json")
		if j := strings.Index(fenced, "```"); j != -1 {
			fenced = fenced[:j]
		}
		if strings.Contains(fenced, "{") {
			text = fenced
		}
	}

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, ErrNoJSON
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, ErrNoJSON
	}

	raw := []byte(text[startIdx : endIdx+1])
	if !json.Valid(raw) {
		return nil, errors.New("invalid JSON object in response")
	}
	return raw, nil
}
