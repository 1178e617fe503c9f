package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

type envelope struct {
	Narrative string `json:"narrative"`
}

// extractNarrative pulls the narrative text out of the model response. The
// model is asked for a {"narrative": "..."} envelope, but models are sloppy:
// fenced code blocks, trailing prose, truncated JSON. Strict parsing is
// tried first, then the jsonrepair fallback, then the raw text itself as a
// last resort.
func extractNarrative(response string) (string, error) {
	body := stripFences(strings.TrimSpace(response))
	if body == "" {
		return "", ErrEmptyNarrative
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err == nil {
		return normalize(env.Narrative)
	}

	if repaired, err := jsonrepair.JSONRepair(body); err == nil {
		if err := json.Unmarshal([]byte(repaired), &env); err == nil && strings.TrimSpace(env.Narrative) != "" {
			return normalize(env.Narrative)
		}
	}

	// Model ignored the envelope and answered in plain text.
	if strings.HasPrefix(body, "{") {
		return "", fmt.Errorf("%w: unparseable model envelope", ErrEmptyNarrative)
	}
	return normalize(body)
}

// stripFences removes a markdown code fence wrapper, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalize flattens the narrative to a single clean paragraph: newlines
// become spaces, markdown emphasis is dropped.
func normalize(s string) (string, error) {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyNarrative
	}
	return s, nil
}
