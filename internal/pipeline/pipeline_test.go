package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivememory "github.com/sitesleuth/sitesleuth/internal/archive/memory"
	"github.com/sitesleuth/sitesleuth/internal/classifier"
	publishermemory "github.com/sitesleuth/sitesleuth/internal/publisher/memory"
	"github.com/sitesleuth/sitesleuth/internal/scan"
	storememory "github.com/sitesleuth/sitesleuth/internal/store/memory"
)

const pageHTML = `<html><head><title>Acme Widgets</title></head><body><main>` +
	`Acme Widgets sells industrial-grade widgets, fasteners, and sprockets ` +
	`to manufacturers across the globe, with same-day shipping since 1987.` +
	`</main></body></html>`

var testResult = scan.AnalysisResult{
	Summary:   "Industrial widget retailer.",
	RiskScore: 92,
	Reason:    "Established commercial site.",
	Category:  "Shopping",
	Tags:      []string{"widgets", "industrial"},
}

type fakeFetcher struct {
	body    string
	err     error
	calls   int
	lastReq scan.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req scan.FetchRequest) (scan.FetchResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return scan.FetchResponse{}, f.err
	}
	return scan.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body)}, nil
}

type fakeCrawler struct {
	pages   []scan.CrawledPage
	err     error
	calls   int
	lastMax int
}

func (c *fakeCrawler) Crawl(_ context.Context, _ scan.NormalizedURL, maxPages int) ([]scan.CrawledPage, error) {
	c.calls++
	c.lastMax = maxPages
	return c.pages, c.err
}

type fakeClassifier struct {
	result   scan.AnalysisResult
	failures []classifier.BackendFailure
	err      error
	calls    int
}

func (c *fakeClassifier) Classify(_ context.Context, _ scan.ExtractedContent) (scan.AnalysisResult, []classifier.BackendFailure, error) {
	c.calls++
	return c.result, c.failures, c.err
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{ next int }

func (g *fakeIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type errStore struct {
	lookupErr error
	saveErr   error
	saved     []scan.ScanRecord
}

func (s *errStore) Lookup(context.Context, scan.Fingerprint, string) (*scan.ScanRecord, error) {
	return nil, s.lookupErr
}

func (s *errStore) Save(_ context.Context, record scan.ScanRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, record)
	return nil
}

func (s *errStore) ListRecent(context.Context, string, int) ([]scan.ScanRecord, error) {
	return nil, nil
}

type testEnv struct {
	fetcher    *fakeFetcher
	crawler    *fakeCrawler
	classifier *fakeClassifier
	archive    *archivememory.BlobStore
	publisher  *publishermemory.Publisher
	clock      fakeClock
}

func newTestPipeline(t *testing.T, store scan.ResultStore, cfg Config) (*Pipeline, *testEnv) {
	t.Helper()
	env := &testEnv{
		fetcher:    &fakeFetcher{body: pageHTML},
		crawler:    &fakeCrawler{},
		classifier: &fakeClassifier{result: testResult},
		archive:    archivememory.NewBlobStore(),
		publisher:  publishermemory.New(),
		clock:      fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	if store == nil {
		store = storememory.New(env.clock)
	}
	p, err := New(Deps{
		Fetcher:    env.fetcher,
		Crawler:    env.crawler,
		Classifier: env.classifier,
		Store:      store,
		Archive:    env.archive,
		Publisher:  env.publisher,
		Clock:      env.clock,
		IDs:        &fakeIDs{},
	}, cfg, zap.NewNop())
	require.NoError(t, err)
	return p, env
}

func TestRunQuickScanSuccess(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	resp, err := p.Run(context.Background(), Request{URL: "acme.test", OwnerID: "user-a"})
	require.NoError(t, err)

	require.Equal(t, "id-1", resp.ID)
	require.Equal(t, "user-a", resp.UserID)
	require.Equal(t, "https://acme.test", resp.URL)
	require.Equal(t, 92, resp.RiskScore)
	require.Equal(t, "Shopping", resp.Category)
	require.False(t, resp.FromCache)
	require.Equal(t, env.clock.now, resp.CreatedAt)

	expected := "https://api.microlink.io?url=" + url.QueryEscape("https://acme.test") +
		"&screenshot=true&meta=false&embed=screenshot.url"
	require.Equal(t, expected, resp.ScreenshotURL)

	require.Equal(t, 1, env.fetcher.calls)
	require.Equal(t, SingleFetchTimeout, env.fetcher.lastReq.Timeout)
	require.NotEmpty(t, env.fetcher.lastReq.Headers.Get("User-Agent"))
	require.Zero(t, env.crawler.calls)
}

func TestRunCachedRepeatSkipsWork(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	req := Request{URL: "https://acme.test", OwnerID: "user-a"}

	first, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.RiskScore, second.RiskScore)

	require.Equal(t, 1, env.fetcher.calls)
	require.Equal(t, 1, env.classifier.calls)
}

func TestRunInvalidURLShortCircuits(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	_, err := p.Run(context.Background(), Request{URL: "ftp://acme.test"})
	require.ErrorIs(t, err, scan.ErrInvalidURL)
	require.Zero(t, env.fetcher.calls)
	require.Zero(t, env.classifier.calls)
}

func TestRunDeepModeUsesCrawler(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{DeepModePages: 7})
	seed, err := scan.NormalizeURL("https://acme.test")
	require.NoError(t, err)
	env.crawler.pages = []scan.CrawledPage{{URL: seed, RawContent: pageHTML}}

	resp, err := p.Run(context.Background(), Request{URL: "https://acme.test", OwnerID: "user-a", Deep: true})
	require.NoError(t, err)
	require.Equal(t, 92, resp.RiskScore)
	require.Equal(t, 1, env.crawler.calls)
	require.Equal(t, 7, env.crawler.lastMax)
	require.Zero(t, env.fetcher.calls)
}

func TestRunDeepModeDefaultsPageCap(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	seed, err := scan.NormalizeURL("https://acme.test")
	require.NoError(t, err)
	env.crawler.pages = []scan.CrawledPage{{URL: seed, RawContent: pageHTML}}

	_, err = p.Run(context.Background(), Request{URL: "https://acme.test", Deep: true})
	require.NoError(t, err)
	require.Equal(t, DefaultDeepPages, env.crawler.lastMax)
}

func TestRunDeepModeEmptyCrawlFails(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, nil, Config{})
	_, err := p.Run(context.Background(), Request{URL: "https://acme.test", Deep: true})
	require.ErrorIs(t, err, scan.ErrFetchFailed)
}

func TestRunFetchFailure(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	env.fetcher.err = errors.New("connection refused")

	_, err := p.Run(context.Background(), Request{URL: "https://acme.test"})
	require.ErrorIs(t, err, scan.ErrFetchFailed)
	require.Zero(t, env.classifier.calls)
}

func TestRunFetchTimeoutReportedDistinctly(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	env.fetcher.err = fmt.Errorf("visit: %w", context.DeadlineExceeded)

	_, err := p.Run(context.Background(), Request{URL: "https://acme.test"})
	require.ErrorIs(t, err, scan.ErrFetchFailed)
	require.ErrorContains(t, err, "request timeout")
}

func TestRunTooShortContent(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	env.fetcher.body = "<html><body><p>tiny</p></body></html>"

	_, err := p.Run(context.Background(), Request{URL: "https://acme.test"})
	require.ErrorIs(t, err, scan.ErrNoContent)
	require.Zero(t, env.classifier.calls)
}

func TestRunClassifierFailurePropagates(t *testing.T) {
	t.Parallel()

	store := &errStore{}
	p, env := newTestPipeline(t, store, Config{})
	env.classifier.err = fmt.Errorf("%w: all backends exhausted", scan.ErrAnalysisFailed)

	_, err := p.Run(context.Background(), Request{URL: "https://acme.test", OwnerID: "user-a"})
	require.ErrorIs(t, err, scan.ErrAnalysisFailed)
	require.Empty(t, store.saved)
}

func TestRunSaveFailureDegrades(t *testing.T) {
	t.Parallel()

	store := &errStore{saveErr: errors.New("connection reset")}
	p, _ := newTestPipeline(t, store, Config{})

	resp, err := p.Run(context.Background(), Request{URL: "https://acme.test", OwnerID: "user-a"})
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.Equal(t, 92, resp.RiskScore)
}

func TestRunLookupFailureTreatedAsMiss(t *testing.T) {
	t.Parallel()

	store := &errStore{lookupErr: errors.New("connection reset")}
	p, env := newTestPipeline(t, store, Config{})

	resp, err := p.Run(context.Background(), Request{URL: "https://acme.test", OwnerID: "user-a"})
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.Equal(t, 1, env.fetcher.calls)
	require.Len(t, store.saved, 1)
}

func TestRunAnonymousNeverPersists(t *testing.T) {
	t.Parallel()

	store := &errStore{}
	p, _ := newTestPipeline(t, store, Config{})

	resp, err := p.Run(context.Background(), Request{URL: "https://acme.test"})
	require.NoError(t, err)
	require.Equal(t, "id-1", resp.ID)
	require.Empty(t, resp.UserID)
	require.Empty(t, store.saved)

	// A repeat anonymous request is recomputed, never served from cache.
	again, err := p.Run(context.Background(), Request{URL: "https://acme.test"})
	require.NoError(t, err)
	require.False(t, again.FromCache)
	require.NotEqual(t, resp.ID, again.ID)
}

func TestRunArchivesAndPublishes(t *testing.T) {
	t.Parallel()

	p, env := newTestPipeline(t, nil, Config{})
	resp, err := p.Run(context.Background(), Request{URL: "https://acme.test", OwnerID: "user-a"})
	require.NoError(t, err)

	seed, err := scan.NormalizeURL("https://acme.test")
	require.NoError(t, err)
	fp := scan.FingerprintURL(seed)
	path := fmt.Sprintf("scans/%s/%s.html", fp, fp)
	stored, ok := env.archive.Get(path)
	require.True(t, ok)
	require.Equal(t, pageHTML, string(stored))

	msgs := env.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "scan.completed", msgs[0].Topic)
	event, ok := msgs[0].Payload.(scanEvent)
	require.True(t, ok)
	require.Equal(t, resp.ID, event.ScanID)
	require.Equal(t, 92, event.RiskScore)
}

func TestRecentListsOwnerScans(t *testing.T) {
	t.Parallel()

	clock := fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := storememory.New(clock)
	p, _ := newTestPipeline(t, store, Config{})

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), scan.ScanRecord{
			ID:        fmt.Sprintf("seed-%d", i),
			OwnerID:   "user-a",
			URL:       fmt.Sprintf("https://site%d.test", i),
			RiskScore: 80 + i,
			CreatedAt: clock.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := p.Recent(context.Background(), "user-a", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "seed-2", recent[0].ID)
	require.Equal(t, "seed-1", recent[1].ID)
	require.True(t, recent[0].FromCache)

	anon, err := p.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Empty(t, anon)
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{}, zap.NewNop())
	require.Error(t, err)
}
