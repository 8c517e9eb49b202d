package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/orthanc-kz/orthanc-harvester/internal/logger"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

const maxSearchPageBytes = 2 << 20 // 2 MiB

var listingIDPattern = regexp.MustCompile(`/a/show/(\d+)`)

// PageError reports a single page's fetch or parse failure. Discovery skips
// the page and continues; the run is never aborted for one bad page.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("discover page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

const defaultResultsPerPage = 25

// Discoverer enumerates listing ids from paginated search-result pages.
type Discoverer struct {
	client         httpclient.Client
	headers        map[string]string
	resultsPerPage int
	log            logger.Logger
}

// NewDiscoverer builds a discoverer over the given HTTP client. Headers are
// sent on every page fetch (user agent etc.); resultsPerPage sizes the
// count-derived page estimate; a nil logger is replaced with a noop.
func NewDiscoverer(client httpclient.Client, headers map[string]string, resultsPerPage int, log logger.Logger) *Discoverer {
	if resultsPerPage <= 0 {
		resultsPerPage = defaultResultsPerPage
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Discoverer{client: client, headers: headers, resultsPerPage: resultsPerPage, log: log}
}

// Detect fetches one page and reads its pagination signals.
func (d *Discoverer) Detect(ctx context.Context, pageURL string) (PageInfo, error) {
	doc, err := d.fetchDocument(ctx, pageURL)
	if err != nil {
		return PageInfo{}, err
	}

	info := PageInfo{TotalResultsHint: parseTotalResults(doc.Text())}

	var hrefs []string
	doc.Find(`a[href*="page="]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	info.MaxPageObserved = maxPageFromLinks(hrefs)
	info.HasPagination = info.MaxPageObserved > 1 || info.TotalResultsHint > d.resultsPerPage
	return info, nil
}

// ExtractListingIDs pulls listing ids from one search page. Extraction is
// structural, so identical content always yields the identical id set.
func (d *Discoverer) ExtractListingIDs(ctx context.Context, pageURL string) ([]string, error) {
	doc, err := d.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return extractIDs(doc), nil
}

// extractIDs scopes to the main result list to avoid picking up the promoted
// sidebar adverts, falling back to card-title anchors page-wide.
func extractIDs(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(href string) {
		m := listingIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if _, dup := seen[m[1]]; dup {
			return
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}

	container := doc.Find(".a-list.a-search-list").First()
	if container.Length() > 0 {
		container.Find(`a[href*="/a/show/"]`).Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		})
		return ids
	}

	doc.Find(`a.a-card__title[href*="/a/show/"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			add(href)
		}
	})
	return ids
}

// DiscoverAll detects the search's page count from the base URL, then walks
// the pages in order accumulating the union of per-page ids. The walk covers
// min(detected page count, maxPages) pages; when detection fails or the page
// carries no pagination signal, maxPages alone bounds it. It stops early the
// first time a page contributes no new ids (the result set is exhausted;
// pages past the last real one repeat content) or once maxListings ids are
// collected (0 = unlimited). Page failures are logged and skipped. Pages are
// fetched sequentially to keep pagination detection deterministic.
func (d *Discoverer) DiscoverAll(ctx context.Context, baseURL string, maxPages, maxListings int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages := maxPages
	info, err := d.Detect(ctx, baseURL)
	switch {
	case err != nil:
		d.log.WarnObj("pagination detection failed, walking up to the page cap", "pagination_error", map[string]any{
			"url":   baseURL,
			"pages": pages,
			"error": err.Error(),
		})
	case info.MaxPageObserved > 0 || info.TotalResultsHint > 0:
		if detected := info.PageCount(d.resultsPerPage); detected < pages {
			pages = detected
		}
	}

	pageURLs, err := GeneratePageURLs(baseURL, pages)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string

	for i, pageURL := range pageURLs {
		if ctx.Err() != nil {
			return ids, ctx.Err()
		}

		pageIDs, err := d.ExtractListingIDs(ctx, pageURL)
		if err != nil {
			pageErr := &PageError{Page: i + 1, URL: pageURL, Err: err}
			d.log.WarnObj("search page discovery failed", "discovery_error", map[string]any{
				"page":  pageErr.Page,
				"url":   pageErr.URL,
				"error": err.Error(),
			})
			continue
		}

		added := 0
		for _, id := range pageIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			added++
			if maxListings > 0 && len(ids) >= maxListings {
				return ids, nil
			}
		}

		if added == 0 {
			d.log.DebugObj("no new ids on page, stopping pagination", "discovery_stop", map[string]any{
				"page":      i + 1,
				"total_ids": len(ids),
			})
			return ids, nil
		}
	}

	return ids, nil
}

// fetchDocument GETs the page and parses it, treating non-2xx statuses and
// oversized bodies as page failures.
func (d *Discoverer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := d.client.Get(ctx, pageURL, d.headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxSearchPageBytes {
		body = body[:maxSearchPageBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if strings.TrimSpace(doc.Text()) == "" {
		return nil, fmt.Errorf("empty page body")
	}
	return doc, nil
}
