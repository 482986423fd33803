package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sitesleuth/sitesleuth/internal/scan"
)

// Field substitutes and bounds applied to raw backend output.
const (
	DefaultRiskScore = 50
	MaxTags          = 5

	placeholderSummary  = "No summary provided."
	placeholderReason   = "No reason provided."
	placeholderCategory = "Other"
)

// rawResponse mirrors the JSON object backends are instructed to return.
// risk_score is deliberately loose: backends occasionally send it as a
// string or omit it, and sanitization must not fail on that.
type rawResponse struct {
	Summary   string          `json:"summary"`
	RiskScore json.RawMessage `json:"risk_score"`
	Reason    string          `json:"reason"`
	Category  string          `json:"category"`
	Tags      []string        `json:"tags"`
}

// parseResponse decodes a backend reply and sanitizes every field.
// Markdown code fences around the JSON object are tolerated.
func parseResponse(raw string) (scan.AnalysisResult, error) {
	stripped := stripCodeFence(raw)
	var resp rawResponse
	if err := json.Unmarshal([]byte(stripped), &resp); err != nil {
		return scan.AnalysisResult{}, fmt.Errorf("unmarshal backend response: %w", err)
	}
	return sanitize(resp), nil
}

func sanitize(resp rawResponse) scan.AnalysisResult {
	result := scan.AnalysisResult{
		Summary:   strings.TrimSpace(resp.Summary),
		RiskScore: sanitizeScore(resp.RiskScore),
		Reason:    strings.TrimSpace(resp.Reason),
		Category:  strings.TrimSpace(resp.Category),
		Tags:      sanitizeTags(resp.Tags),
	}
	if result.Summary == "" {
		result.Summary = placeholderSummary
	}
	if result.Reason == "" {
		result.Reason = placeholderReason
	}
	if result.Category == "" {
		result.Category = placeholderCategory
	}
	return result
}

// sanitizeScore coerces the raw score to an integer in [0,100], accepting
// JSON numbers and numeric strings; anything else yields the default.
func sanitizeScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return DefaultRiskScore
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err != nil {
		var asString string
		if err := json.Unmarshal(raw, &asString); err != nil {
			return DefaultRiskScore
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(asString), "%f", &asFloat); err != nil {
			return DefaultRiskScore
		}
	}
	score := int(asFloat)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func sanitizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
