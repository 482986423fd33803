// Package pipeline orchestrates one scan request end to end: validation,
// cache lookup, fetching, extraction, classification, persistence, and
// response shaping. Each request runs as a single logical flow; the only
// shared state is behind the injected store, archive, and publisher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sitesleuth/sitesleuth/internal/classifier"
	"github.com/sitesleuth/sitesleuth/internal/extractor"
	"github.com/sitesleuth/sitesleuth/internal/scan"
	"github.com/sitesleuth/sitesleuth/internal/telemetry"
)

// SingleFetchTimeout is the hard budget for the quick-mode page fetch.
const SingleFetchTimeout = 8 * time.Second

// DefaultDeepPages is the page cap for deep scans when none is configured.
const DefaultDeepPages = 25

const (
	defaultUserAgent     = "Mozilla/5.0 (compatible; SiteSleuthBot/1.0; +https://github.com/sitesleuth/sitesleuth)"
	defaultScreenshotAPI = "https://api.microlink.io"
	defaultArchivePrefix = "scans"
	defaultEventTopic    = "scan.completed"
	archiveContentType   = "text/html; charset=utf-8"
)

// SiteCrawler walks a site from a seed URL up to a page cap.
type SiteCrawler interface {
	Crawl(ctx context.Context, seed scan.NormalizedURL, maxPages int) ([]scan.CrawledPage, error)
}

// Classifier produces an analysis for extracted content.
type Classifier interface {
	Classify(ctx context.Context, content scan.ExtractedContent) (scan.AnalysisResult, []classifier.BackendFailure, error)
}

// Config tunes per-request behavior.
type Config struct {
	// DeepModePages caps the crawler on deep scans. Zero means DefaultDeepPages.
	DeepModePages int
	// UserAgent identifies the service on quick-mode fetches.
	UserAgent string
	// ScreenshotBaseURL is the preview-image service endpoint.
	ScreenshotBaseURL string
	// ArchivePrefix is the object path prefix for raw page snapshots.
	ArchivePrefix string
	// EventTopic receives scan-completed events.
	EventTopic string
}

// Deps are the capabilities the pipeline runs on. Archive and Publisher are
// optional; everything else is required.
type Deps struct {
	Fetcher    scan.Fetcher
	Crawler    SiteCrawler
	Classifier Classifier
	Store      scan.ResultStore
	Archive    scan.BlobStore
	Publisher  scan.Publisher
	Clock      scan.Clock
	IDs        scan.IDGenerator
}

// Request is one scan invocation. An empty OwnerID means anonymous: no cache
// lookup and no persistence.
type Request struct {
	URL     string
	OwnerID string
	Deep    bool
}

// Response is the uniform scan result envelope body.
type Response struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	URL           string    `json:"url"`
	Summary       string    `json:"summary"`
	RiskScore     int       `json:"risk_score"`
	Reason        string    `json:"reason"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	ScreenshotURL string    `json:"screenshot_url"`
	CreatedAt     time.Time `json:"created_at"`
	FromCache     bool      `json:"from_cache"`
}

// Pipeline runs scan requests.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates the required capabilities and constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Crawler == nil:
		return nil, fmt.Errorf("crawler is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("result store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}, nil
}

// Run executes the scan state machine for one request. Errors carry the
// sentinel from internal/scan that classifies them for the HTTP layer.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	normalized, err := scan.NormalizeURL(req.URL)
	if err != nil {
		telemetry.ObserveScan("invalid_url")
		return nil, err
	}
	fp := scan.FingerprintURL(normalized)
	logger := p.logger.With(
		zap.String("url", normalized.String()),
		zap.String("fingerprint", string(fp)),
	)

	if req.OwnerID != "" {
		cached, err := p.deps.Store.Lookup(ctx, fp, req.OwnerID)
		if err != nil {
			logger.Warn("cache lookup failed, treating as miss", zap.Error(err))
		}
		if cached != nil {
			telemetry.ObserveScan("cache_hit")
			logger.Info("serving cached result", zap.String("scan_id", cached.ID))
			return p.respond(*cached, normalized.String(), true), nil
		}
	}

	pages, err := p.fetch(ctx, normalized, req.Deep)
	if err != nil {
		telemetry.ObserveScan("fetch_error")
		return nil, err
	}

	content, err := p.extract(pages)
	if err != nil {
		telemetry.ObserveScan("no_content")
		return nil, err
	}

	result, failures, err := p.deps.Classifier.Classify(ctx, content)
	if err != nil {
		telemetry.ObserveScan("analysis_error")
		return nil, err
	}
	if len(failures) > 0 {
		logger.Info("classified after backend fallback", zap.Int("failed_backends", len(failures)))
	}

	record, err := p.buildRecord(req.OwnerID, fp, normalized, result)
	if err != nil {
		telemetry.ObserveScan("internal_error")
		return nil, err
	}

	if req.OwnerID != "" {
		if err := p.deps.Store.Save(ctx, record); err != nil {
			logger.Warn("save failed, returning uncached result", zap.Error(err))
		}
	}

	p.archivePages(ctx, fp, pages, logger)
	p.publishEvent(ctx, record, logger)

	telemetry.ObserveScan("success")
	logger.Info("scan complete",
		zap.String("scan_id", record.ID),
		zap.Int("risk_score", record.RiskScore),
		zap.Int("pages", len(pages)),
	)
	return p.respond(record, normalized.String(), false), nil
}

// fetch retrieves pages for the request. Quick mode is a single fetch under
// SingleFetchTimeout with a descriptive User-Agent; deep mode runs the
// bounded crawler. Timeouts on the single fetch are reported distinctly.
func (p *Pipeline) fetch(ctx context.Context, u scan.NormalizedURL, deep bool) ([]scan.CrawledPage, error) {
	if deep {
		maxPages := p.cfg.DeepModePages
		if maxPages <= 0 {
			maxPages = DefaultDeepPages
		}
		pages, err := p.deps.Crawler.Crawl(ctx, u, maxPages)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", scan.ErrFetchFailed, err)
		}
		if len(pages) == 0 {
			return nil, fmt.Errorf("%w: no pages retrieved from %s", scan.ErrFetchFailed, u.String())
		}
		return pages, nil
	}

	userAgent := p.cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	headers := make(http.Header, 1)
	headers.Set("User-Agent", userAgent)

	resp, err := p.deps.Fetcher.Fetch(ctx, scan.FetchRequest{
		URL:     u.String(),
		Headers: headers,
		Timeout: SingleFetchTimeout,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timeout after %s: %w", scan.ErrFetchFailed, SingleFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", scan.ErrFetchFailed, err)
	}
	return []scan.CrawledPage{{URL: u, RawContent: string(resp.Body)}}, nil
}

func (p *Pipeline) extract(pages []scan.CrawledPage) (scan.ExtractedContent, error) {
	content, err := extractor.Aggregate(pages)
	if err != nil {
		return scan.ExtractedContent{}, fmt.Errorf("%w: %v", scan.ErrNoContent, err)
	}
	if !content.Analyzable() {
		return scan.ExtractedContent{}, fmt.Errorf(
			"%w: extracted %d chars from %d page(s)", scan.ErrNoContent, len(content.Text), len(pages),
		)
	}
	return content, nil
}

// buildRecord stamps identity and time onto the analysis. Anonymous requests
// still get an ID so the response is uniform, it just never reaches storage.
func (p *Pipeline) buildRecord(ownerID string, fp scan.Fingerprint, u scan.NormalizedURL, result scan.AnalysisResult) (scan.ScanRecord, error) {
	id, err := p.deps.IDs.NewID()
	if err != nil {
		return scan.ScanRecord{}, fmt.Errorf("generate scan id: %w", err)
	}
	return scan.ScanRecord{
		ID:          id,
		OwnerID:     ownerID,
		Fingerprint: fp,
		URL:         u.String(),
		Summary:     result.Summary,
		RiskScore:   result.RiskScore,
		Reason:      result.Reason,
		Category:    result.Category,
		Tags:        result.Tags,
		CreatedAt:   p.deps.Clock.Now(),
	}, nil
}

// archivePages snapshots raw HTML to the blob store. Best effort only.
func (p *Pipeline) archivePages(ctx context.Context, fp scan.Fingerprint, pages []scan.CrawledPage, logger *zap.Logger) {
	if p.deps.Archive == nil {
		return
	}
	prefix := p.cfg.ArchivePrefix
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	for _, page := range pages {
		path := fmt.Sprintf("%s/%s/%s.html", prefix, fp, scan.FingerprintURL(page.URL))
		if _, err := p.deps.Archive.PutObject(ctx, path, archiveContentType, []byte(page.RawContent)); err != nil {
			logger.Warn("archive page failed",
				zap.String("page", page.URL.String()),
				zap.Error(err),
			)
		}
	}
}

type scanEvent struct {
	ScanID      string    `json:"scan_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	URL         string    `json:"url"`
	Fingerprint string    `json:"fingerprint"`
	RiskScore   int       `json:"risk_score"`
	Timestamp   time.Time `json:"timestamp"`
}

// publishEvent emits a scan-completed event. Best effort only.
func (p *Pipeline) publishEvent(ctx context.Context, record scan.ScanRecord, logger *zap.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	topic := p.cfg.EventTopic
	if topic == "" {
		topic = defaultEventTopic
	}
	event := scanEvent{
		ScanID:      record.ID,
		OwnerID:     record.OwnerID,
		URL:         record.URL,
		Fingerprint: string(record.Fingerprint),
		RiskScore:   record.RiskScore,
		Timestamp:   record.CreatedAt,
	}
	msgID, err := p.deps.Publisher.Publish(ctx, topic, event)
	if err != nil {
		logger.Warn("publish scan event failed", zap.Error(err))
		return
	}
	logger.Debug("scan event published", zap.String("message_id", msgID))
}

// Recent lists the owner's stored scans, newest first. Anonymous callers
// have nothing stored, so they get an empty list.
func (p *Pipeline) Recent(ctx context.Context, ownerID string, limit int) ([]Response, error) {
	if ownerID == "" {
		return nil, nil
	}
	records, err := p.deps.Store.ListRecent(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scan.ErrStoreFailed, err)
	}
	responses := make([]Response, 0, len(records))
	for _, record := range records {
		responses = append(responses, *p.respond(record, record.URL, true))
	}
	return responses, nil
}

func (p *Pipeline) respond(record scan.ScanRecord, rawURL string, fromCache bool) *Response {
	return &Response{
		ID:            record.ID,
		UserID:        record.OwnerID,
		URL:           record.URL,
		Summary:       record.Summary,
		RiskScore:     record.RiskScore,
		Reason:        record.Reason,
		Category:      record.Category,
		Tags:          record.Tags,
		ScreenshotURL: p.screenshotURL(rawURL),
		CreatedAt:     record.CreatedAt,
		FromCache:     fromCache,
	}
}

// screenshotURL derives the preview-image URL from the normalized URL by
// string templating alone; no network call is involved.
func (p *Pipeline) screenshotURL(rawURL string) string {
	base := p.cfg.ScreenshotBaseURL
	if base == "" {
		base = defaultScreenshotAPI
	}
	return fmt.Sprintf("%s?url=%s&screenshot=true&meta=false&embed=screenshot.url",
		base, url.QueryEscape(rawURL))
}
