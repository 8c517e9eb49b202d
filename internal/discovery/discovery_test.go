package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

type mockResponse struct {
	body       []byte
	statusCode int
}

func (r mockResponse) Body() []byte    { return r.body }
func (r mockResponse) StatusCode() int { return r.statusCode }

// pageClient serves canned HTML per page number and counts fetches.
type pageClient struct {
	pages   map[int]string // page number -> html
	fetches int
	err     error
}

func (c *pageClient) Get(_ context.Context, rawURL string, _ map[string]string) (httpclient.Response, error) {
	c.fetches++
	if c.err != nil {
		return nil, c.err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	page := 1
	if p := parsed.Query().Get("page"); p != "" {
		fmt.Sscanf(p, "%d", &page)
	}
	html, ok := c.pages[page]
	if !ok {
		html = `<html><body><div class="a-list a-search-list"></div>pagination footer</body></html>`
	}
	return mockResponse{body: []byte(html), statusCode: 200}, nil
}

func searchPage(ids ...string) string {
	out := `<html><body><div class="a-list a-search-list">`
	for _, id := range ids {
		out += fmt.Sprintf(`<a class="a-card__title" href="/a/show/%s">flat</a>`, id)
	}
	out += `</div>footer text</body></html>`
	return out
}

func TestExtractListingIDsIsIdempotent(t *testing.T) {
	client := &pageClient{pages: map[int]string{1: searchPage("100", "200", "100", "300")}}
	d := NewDiscoverer(client, nil, 0, nil)

	first, err := d.ExtractListingIDs(context.Background(), "https://krisha.kz/prodazha/kvartiry/almaty/")
	if err != nil {
		t.Fatalf("ExtractListingIDs: %v", err)
	}
	second, err := d.ExtractListingIDs(context.Background(), "https://krisha.kz/prodazha/kvartiry/almaty/")
	if err != nil {
		t.Fatalf("ExtractListingIDs (second): %v", err)
	}

	if len(first) != 3 {
		t.Fatalf("expected 3 unique ids, got %v", first)
	}
	if len(first) != len(second) {
		t.Fatalf("non-idempotent extraction: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("non-idempotent extraction: %v vs %v", first, second)
		}
	}
}

func TestExtractListingIDsSkipsSidebarAds(t *testing.T) {
	html := `<html><body>
		<div class="a-list a-search-list">
			<a href="/a/show/111">real</a>
		</div>
		<div class="sidebar"><a href="/a/show/999">promoted</a></div>
	</body></html>`
	client := &pageClient{pages: map[int]string{1: html}}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.ExtractListingIDs(context.Background(), "https://krisha.kz/x")
	if err != nil {
		t.Fatalf("ExtractListingIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "111" {
		t.Fatalf("expected only the in-list id, got %v", ids)
	}
}

func TestDiscoverAllStopsOnFirstPageWithNoNewIDs(t *testing.T) {
	client := &pageClient{pages: map[int]string{
		1: searchPage("1", "2"),
		2: searchPage("2", "3"),
		3: searchPage("2", "3"), // all already seen: stop here
		4: searchPage("4"),      // must never be fetched
	}}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/prodazha/kvartiry/almaty/", 10, 0)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected ids {1,2,3}, got %v", ids)
	}
	if client.fetches != 4 {
		t.Fatalf("expected detection plus 3 page fetches, got %d", client.fetches)
	}
}

func TestDiscoverAllHonorsMaxPages(t *testing.T) {
	pages := make(map[int]string)
	for p := 1; p <= 10; p++ {
		pages[p] = searchPage(fmt.Sprintf("%d", p*10), fmt.Sprintf("%d", p*10+1))
	}
	client := &pageClient{pages: pages}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/x", 4, 0)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	if client.fetches != 5 {
		t.Fatalf("expected detection plus 4 page fetches, got %d", client.fetches)
	}
	if len(ids) != 8 {
		t.Fatalf("expected 8 ids over 4 pages, got %d", len(ids))
	}
}

func TestDiscoverAllHonorsMaxListings(t *testing.T) {
	client := &pageClient{pages: map[int]string{
		1: searchPage("1", "2", "3", "4", "5"),
		2: searchPage("6", "7"),
	}}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/x", 5, 3)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
	if client.fetches != 2 {
		t.Fatalf("expected detection plus a single page fetch, got %d", client.fetches)
	}
}

func TestDiscoverAllCollapsesCrossPageDuplicates(t *testing.T) {
	// The origin reorders live results between page fetches, so the same id
	// can show up on two pages.
	client := &pageClient{pages: map[int]string{
		1: searchPage("1", "2"),
		2: searchPage("2", "3"),
	}}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/x", 2, 0)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s in %v", id, ids)
		}
		seen[id] = true
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 unique ids, got %v", ids)
	}
}

func TestDiscoverAllReturnsOnCancelledContext(t *testing.T) {
	client := &pageClient{pages: map[int]string{1: searchPage("1")}}
	d := NewDiscoverer(client, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.DiscoverAll(ctx, "https://krisha.kz/x", 3, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.fetches != 0 {
		t.Fatalf("no pages should be fetched after cancellation, got %d", client.fetches)
	}
}

func TestDetectReadsPaginationSignals(t *testing.T) {
	html := `<html><body>
		<div class="search-title">Найдено 47 объявлений</div>
		<nav class="paginator">
			<a href="?page=2">2</a>
			<a href="?page=3">3</a>
		</nav>
	</body></html>`
	client := &pageClient{pages: map[int]string{1: html}}
	d := NewDiscoverer(client, nil, 0, nil)

	info, err := d.Detect(context.Background(), "https://krisha.kz/x")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.TotalResultsHint != 47 {
		t.Errorf("expected total hint 47, got %d", info.TotalResultsHint)
	}
	if info.MaxPageObserved != 3 {
		t.Errorf("expected max observed page 3, got %d", info.MaxPageObserved)
	}
	if !info.HasPagination {
		t.Error("expected pagination detected")
	}
	if got := info.PageCount(20); got != 3 {
		t.Errorf("expected PageCount 3, got %d", got)
	}
}

func TestDiscoverAllBoundsWalkToDetectedPageCount(t *testing.T) {
	// 30 results at 20 per page span 2 pages; the walk must stop there even
	// though the configured cap allows 10 and later pages keep serving ids.
	withCount := `<html><body><div class="search-title">Найдено 30 объявлений</div>` +
		`<div class="a-list a-search-list">` +
		`<a href="/a/show/1">a</a><a href="/a/show/2">b</a>` +
		`</div></body></html>`
	client := &pageClient{pages: map[int]string{
		1: withCount,
		2: searchPage("3", "4"),
		3: searchPage("5", "6"), // must never be fetched
	}}
	d := NewDiscoverer(client, nil, 20, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/x", 10, 0)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("expected ids from the 2 detected pages, got %v", ids)
	}
	if client.fetches != 3 {
		t.Fatalf("expected detection plus 2 page fetches, got %d", client.fetches)
	}
}

func TestDiscoverAllSkipsFailedPages(t *testing.T) {
	calls := 0
	client := &flakyClient{
		failOn: 1,
		pages: map[int]string{
			2: searchPage("5", "6"),
		},
		calls: &calls,
	}
	d := NewDiscoverer(client, nil, 0, nil)

	ids, err := d.DiscoverAll(context.Background(), "https://krisha.kz/x", 2, 0)
	if err != nil {
		t.Fatalf("DiscoverAll: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected ids from the healthy page, got %v", ids)
	}
}

// flakyClient fails the given page number and serves the rest.
type flakyClient struct {
	failOn int
	pages  map[int]string
	calls  *int
}

func (c *flakyClient) Get(_ context.Context, rawURL string, _ map[string]string) (httpclient.Response, error) {
	*c.calls++
	parsed, _ := url.Parse(rawURL)
	page := 1
	if p := parsed.Query().Get("page"); p != "" {
		fmt.Sscanf(p, "%d", &page)
	}
	if page == c.failOn {
		return nil, errors.New("boom")
	}
	return mockResponse{body: []byte(c.pages[page]), statusCode: 200}, nil
}
