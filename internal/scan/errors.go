package scan

import "errors"

// Sentinel errors for the analysis pipeline. Callers match them with errors.Is
// to decide HTTP status codes and degradation behavior.
var (
	// ErrInvalidURL marks unparsable input or a non-http(s) scheme.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrFetchFailed marks a total fetch failure: the single-page fetch
	// errored or timed out, or a crawl produced zero usable pages.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNoContent marks pages that were retrieved but hold nothing analyzable.
	ErrNoContent = errors.New("no analyzable content")

	// ErrAnalysisFailed marks exhaustion of every classifier backend.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrStoreFailed marks a persistence or lookup infrastructure problem.
	// The pipeline swallows it (cache miss / uncached success) but logs it.
	ErrStoreFailed = errors.New("store failed")
)
