// Package crawler implements a bounded, same-host, depth-first site crawler.
// Traversal runs over an explicit worklist with a visited set so the page cap
// and cancellation checks are enforced deterministically; page fetching is
// delegated to a scan.Fetcher.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sitesleuth/sitesleuth/internal/scan"
	"github.com/sitesleuth/sitesleuth/internal/telemetry"
)

// QuickModePages is the page cap used for interactive latency budgets.
const QuickModePages = 10

// Config controls crawl behavior.
type Config struct {
	// PageTimeout bounds each individual page fetch.
	PageTimeout time.Duration
	// Headers are sent with every page fetch.
	Headers map[string]string
}

// Crawler walks a site depth-first from a seed URL.
type Crawler struct {
	fetcher scan.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Crawler.
func New(fetcher scan.Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Crawl visits at most maxPages distinct URLs reachable from seed by
// same-host anchor links and returns the pages that fetched successfully.
// A URL enters the visited set when it is scheduled and is never retried.
// Individual page failures are logged and skipped; only context
// cancellation aborts the traversal as a whole.
func (c *Crawler) Crawl(ctx context.Context, seed scan.NormalizedURL, maxPages int) ([]scan.CrawledPage, error) {
	if maxPages <= 0 {
		return nil, fmt.Errorf("maxPages must be > 0, got %d", maxPages)
	}

	visited := map[string]struct{}{seed.String(): {}}
	stack := []scan.NormalizedURL{seed}
	var pages []scan.CrawledPage

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return pages, fmt.Errorf("crawl canceled: %w", err)
		}

		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		body, err := c.fetchPage(ctx, next)
		if err != nil {
			telemetry.ObserveCrawledPage("error")
			c.logger.Warn("page fetch failed",
				zap.String("url", next.String()),
				zap.Error(err),
			)
			continue
		}
		telemetry.ObserveCrawledPage("ok")
		pages = append(pages, scan.CrawledPage{URL: next, RawContent: body})

		links := c.sameHostLinks(seed, next, body)
		// Reverse push so the first discovered link is explored first.
		for i := len(links) - 1; i >= 0; i-- {
			link := links[i]
			if _, seen := visited[link.String()]; seen {
				continue
			}
			if len(visited) >= maxPages {
				break
			}
			visited[link.String()] = struct{}{}
			stack = append(stack, link)
		}
	}

	c.logger.Debug("crawl finished",
		zap.String("seed", seed.String()),
		zap.Int("pages", len(pages)),
		zap.Int("visited", len(visited)),
	)
	return pages, nil
}

func (c *Crawler) fetchPage(ctx context.Context, u scan.NormalizedURL) (string, error) {
	req := scan.FetchRequest{
		URL:     u.String(),
		Timeout: c.cfg.PageTimeout,
	}
	if len(c.cfg.Headers) > 0 {
		req.Headers = make(http.Header, len(c.cfg.Headers))
		for k, v := range c.cfg.Headers {
			req.Headers.Set(k, v)
		}
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// sameHostLinks extracts anchor hrefs from the page, resolves them against
// the referring page's URL, and keeps only those whose host exactly equals
// the seed's host. Malformed hrefs are logged and dropped.
func (c *Crawler) sameHostLinks(seed, page scan.NormalizedURL, body string) []scan.NormalizedURL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		c.logger.Warn("parse page for links failed",
			zap.String("url", page.String()),
			zap.Error(err),
		)
		return nil
	}

	var links []scan.NormalizedURL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		resolved, err := page.Resolve(href)
		if err != nil {
			c.logger.Debug("skip malformed link",
				zap.String("page", page.String()),
				zap.String("href", href),
			)
			return
		}
		if resolved.Host() != seed.Host() {
			return
		}
		links = append(links, resolved)
	})
	return links
}
