// Package classifier submits extracted site content to an ordered list of
// LLM-style backends and enforces the fallback protocol: backends are tried
// in list order, each at most once per request, and the first parseable
// structured response wins. Exhaustion of the list is a hard failure.
package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitesleuth/sitesleuth/internal/scan"
	"github.com/sitesleuth/sitesleuth/internal/telemetry"
)

// Backend is one opaque classification capability. Implementations must be
// safe for concurrent use.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// BackendFailure records one swallowed per-backend error, for logs and tests.
type BackendFailure struct {
	Backend string
	Err     error
}

// Gateway fans a classification request across the configured backends.
type Gateway struct {
	backends []Backend
	logger   *zap.Logger
}

// New constructs a Gateway. Backend order is significant: put the
// cheapest/highest-quota backend first.
func New(backends []Backend, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{backends: backends, logger: logger}
}

// Classify builds the assessment prompt and walks the backend list. It
// returns the sanitized result of the first backend that produces a
// parseable response, together with the failures that were swallowed along
// the way. When every backend fails the error wraps scan.ErrAnalysisFailed.
func (g *Gateway) Classify(ctx context.Context, content scan.ExtractedContent) (scan.AnalysisResult, []BackendFailure, error) {
	if len(g.backends) == 0 {
		return scan.AnalysisResult{}, nil, fmt.Errorf("%w: no backends configured", scan.ErrAnalysisFailed)
	}

	prompt := BuildPrompt(content)
	var failures []BackendFailure

	for _, backend := range g.backends {
		if err := ctx.Err(); err != nil {
			return scan.AnalysisResult{}, failures, fmt.Errorf("classify canceled: %w", err)
		}
		raw, err := backend.Complete(ctx, prompt)
		if err == nil {
			var result scan.AnalysisResult
			result, err = parseResponse(raw)
			if err == nil {
				g.logger.Debug("backend succeeded", zap.String("backend", backend.Name()))
				return result, failures, nil
			}
		}
		telemetry.ObserveBackendFailure(backend.Name())
		g.logger.Warn("backend failed, trying next",
			zap.String("backend", backend.Name()),
			zap.Error(err),
		)
		failures = append(failures, BackendFailure{Backend: backend.Name(), Err: err})
	}

	return scan.AnalysisResult{}, failures, fmt.Errorf(
		"%w: all %d backends exhausted", scan.ErrAnalysisFailed, len(g.backends),
	)
}

// BuildPrompt renders the fixed assessment prompt for the given content.
func BuildPrompt(content scan.ExtractedContent) string {
	return fmt.Sprintf(promptTemplate, content.Title, content.Text)
}

const promptTemplate = `You are a website safety analyst. Assess the website below and respond with a single JSON object, no prose, in exactly this shape:

{"summary": "<one-paragraph summary of what the site is>", "risk_score": <integer 0-100>, "reason": "<short justification for the score>", "category": "<one of: Technology, Finance, Shopping, News, Social, Adult, Gambling, Education, Health, Government, Entertainment, Other>", "tags": ["<up to 5 short lowercase tags>"]}

Scoring rubric (higher is safer):
- 0-20: malicious, phishing, malware distribution, or scam sites
- 30-50: low-quality, misleading, or unverifiable sites
- 80-90: legitimate, established sites
- 95-100: verified high-trust platforms

Website title: %s

Website content:
%s`
