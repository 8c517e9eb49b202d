package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// PageInfo summarizes the pagination signals observed on one search page.
type PageInfo struct {
	// TotalResultsHint is the displayed result count, 0 when absent. The
	// origin caches this figure, so it can lag the live result set.
	TotalResultsHint int
	// MaxPageObserved is the highest page number seen in actual pagination
	// links; links reflect the live result set and win over the estimate.
	MaxPageObserved int
	HasPagination   bool
}

// PageCount resolves how many pages the scope spans, preferring observed
// links over the count-derived estimate.
func (p PageInfo) PageCount(resultsPerPage int) int {
	estimated := 0
	if p.TotalResultsHint > 0 && resultsPerPage > 0 {
		estimated = (p.TotalResultsHint + resultsPerPage - 1) / resultsPerPage
	}
	if p.MaxPageObserved >= estimated && p.MaxPageObserved > 0 {
		return p.MaxPageObserved
	}
	if estimated > 0 {
		return estimated
	}
	return 1
}

const pageParam = "page"

// GeneratePageURLs returns the URLs for pages 1..n of a search, touching only
// the page-number query parameter and preserving every other filter value.
// Pure and deterministic: no network access.
func GeneratePageURLs(baseURL string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("page count must be >= 1, got %d", n)
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}

	urls := make([]string, 0, n)
	for page := 1; page <= n; page++ {
		q := parsed.Query()
		q.Set(pageParam, strconv.Itoa(page))
		pageURL := *parsed
		pageURL.RawQuery = q.Encode()
		urls = append(urls, pageURL.String())
	}
	return urls, nil
}

var (
	// Result-count phrasings seen on search pages, most specific first.
	totalResultsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)найдено\s*(\d+)\s*объявлени`),
		regexp.MustCompile(`(?i)(\d+)\s*объявлени`),
		regexp.MustCompile(`(?i)(\d+)\s*предложени`),
		regexp.MustCompile(`(?i)(\d+)\s*results?`),
	}
	pageLinkPattern = regexp.MustCompile(`[?&]page=(\d+)`)
)

// parseTotalResults extracts the displayed result count from page text.
func parseTotalResults(text string) int {
	for _, p := range totalResultsPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

// maxPageFromLinks returns the highest page number among pagination hrefs.
func maxPageFromLinks(hrefs []string) int {
	maxPage := 0
	for _, href := range hrefs {
		if m := pageLinkPattern.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
				maxPage = n
			}
		}
	}
	return maxPage
}
