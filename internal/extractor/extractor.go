// Package extractor reduces raw HTML to a cleaned text/title pair.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitesleuth/sitesleuth/internal/scan"
)

// DefaultTitle substitutes for a missing or empty document title.
const DefaultTitle = "Unknown Website"

// nonContentSelector matches elements that never contribute analyzable text.
const nonContentSelector = "script, style, nav, footer, header, iframe, svg, noscript"

// contentSelectors are tried as main-content candidates. Priority order is
// only the iteration order; the candidate with the longest extracted text
// wins regardless of position in this list.
var contentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	"#content",
	".content",
	"#main",
	".main",
	"body",
}

// Extract strips non-content markup, picks the densest content region, and
// returns whitespace-collapsed text truncated to scan.MaxContentLength.
func Extract(html string) (scan.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scan.ExtractedContent{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = DefaultTitle
	}

	doc.Find(nonContentSelector).Remove()

	var best string
	for _, selector := range contentSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		candidate := collapseWhitespace(sel.First().Text())
		if len(candidate) > len(best) {
			best = candidate
		}
	}

	if len(best) > scan.MaxContentLength {
		best = best[:scan.MaxContentLength]
	}
	return scan.ExtractedContent{Text: best, Title: title}, nil
}

// Aggregate combines per-page extractions into one content unit for
// multi-page scans. Each page contributes its text under a section header
// carrying the page URL; page titles are joined with " | ". Pages whose
// text is below the analyzable minimum are excluded entirely.
func Aggregate(pages []scan.CrawledPage) (scan.ExtractedContent, error) {
	var (
		sections []string
		titles   []string
	)
	for _, p := range pages {
		content, err := Extract(p.RawContent)
		if err != nil {
			return scan.ExtractedContent{}, fmt.Errorf("extract %s: %w", p.URL.String(), err)
		}
		if !content.Analyzable() {
			continue
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", p.URL.String(), content.Text))
		if content.Title != DefaultTitle {
			titles = append(titles, content.Title)
		}
	}

	text := strings.Join(sections, "\n\n")
	if len(text) > scan.MaxContentLength {
		text = text[:scan.MaxContentLength]
	}
	title := strings.Join(titles, " | ")
	if title == "" {
		title = DefaultTitle
	}
	return scan.ExtractedContent{Text: text, Title: title}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
