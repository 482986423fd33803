// Package scan defines the core types and interfaces for the URL risk-analysis engine.
// It includes URL normalization and fingerprinting, the analysis result model, and the
// capability interfaces implemented by the fetching, storage, and publishing subsystems.
package scan

import (
	"time"
)

// MaxContentLength bounds the extracted text handed to classifier backends.
const MaxContentLength = 12000

// MinAnalyzableLength is the minimum extracted-text length considered analyzable.
const MinAnalyzableLength = 50

// FreshnessWindow is how long a stored result may be served as a cache hit.
const FreshnessWindow = 24 * time.Hour

// CrawledPage is one fetched page. Produced by the crawler and consumed
// exactly once by the extractor; never persisted.
type CrawledPage struct {
	URL        NormalizedURL
	RawContent string
}

// ExtractedContent is the cleaned text/title pair derived from one or more pages.
type ExtractedContent struct {
	Text  string
	Title string
}

// Analyzable reports whether the extracted text is long enough to classify.
func (c ExtractedContent) Analyzable() bool {
	return len(c.Text) >= MinAnalyzableLength
}

// AnalysisResult is the sanitized output of a classifier backend.
// Immutable once produced; RiskScore is always in [0,100].
type AnalysisResult struct {
	Summary   string   `json:"summary"`
	RiskScore int      `json:"risk_score"`
	Reason    string   `json:"reason"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
}

// ScanRecord is the persisted outcome of one analysis, scoped to an owner.
// Rows are append-only; the freshness filter at lookup time keeps at most
// one active entry per (owner, fingerprint).
type ScanRecord struct {
	ID          string
	OwnerID     string
	Fingerprint Fingerprint
	URL         string
	Summary     string
	RiskScore   int
	Reason      string
	Category    string
	Tags        []string
	CreatedAt   time.Time
}

// Result converts the record back into its analysis fields.
func (r ScanRecord) Result() AnalysisResult {
	return AnalysisResult{
		Summary:   r.Summary,
		RiskScore: r.RiskScore,
		Reason:    r.Reason,
		Category:  r.Category,
		Tags:      r.Tags,
	}
}
