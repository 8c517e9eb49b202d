package discovery

import (
	"net/url"
	"strconv"
	"testing"
)

func TestGeneratePageURLsPreservesFilters(t *testing.T) {
	base := "https://krisha.kz/prodazha/kvartiry/almaty/?das[live.rooms]=2&das[map.complex]=2758&das[live.square][to]=80"

	urls, err := GeneratePageURLs(base, 3)
	if err != nil {
		t.Fatalf("GeneratePageURLs: %v", err)
	}
	if len(urls) != 3 {
		t.Fatalf("expected 3 urls, got %d", len(urls))
	}

	baseParsed, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	baseQuery := baseParsed.Query()

	for i, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil {
			t.Fatalf("parse url %d: %v", i, err)
		}
		q := parsed.Query()
		if got := q.Get("page"); got != strconv.Itoa(i+1) {
			t.Errorf("url %d: expected page=%d, got %q", i, i+1, got)
		}
		q.Del("page")
		if len(q) != len(baseQuery) {
			t.Errorf("url %d: filter parameter count changed: %d vs %d", i, len(q), len(baseQuery))
		}
		for key, want := range baseQuery {
			got := q[key]
			if len(got) != len(want) {
				t.Errorf("url %d: parameter %q values changed", i, key)
				continue
			}
			for j := range want {
				if got[j] != want[j] {
					t.Errorf("url %d: parameter %q = %q, want %q", i, key, got[j], want[j])
				}
			}
		}
	}
}

func TestGeneratePageURLsReplacesExistingPageParam(t *testing.T) {
	urls, err := GeneratePageURLs("https://krisha.kz/arenda/kvartiry/astana/?page=7&das[live.rooms]=1", 2)
	if err != nil {
		t.Fatalf("GeneratePageURLs: %v", err)
	}
	for i, u := range urls {
		parsed, _ := url.Parse(u)
		if got := parsed.Query().Get("page"); got != strconv.Itoa(i+1) {
			t.Errorf("url %d: expected page=%d, got %q", i, i+1, got)
		}
		if got := parsed.Query()["page"]; len(got) != 1 {
			t.Errorf("url %d: expected a single page value, got %v", i, got)
		}
	}
}

func TestGeneratePageURLsRejectsZeroPages(t *testing.T) {
	if _, err := GeneratePageURLs("https://krisha.kz/", 0); err == nil {
		t.Fatal("expected error for n=0")
	}
}

func TestPageCountPrefersObservedLinks(t *testing.T) {
	info := PageInfo{TotalResultsHint: 47, MaxPageObserved: 3}
	if got := info.PageCount(20); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
}

func TestPageCountEstimatesFromTotal(t *testing.T) {
	info := PageInfo{TotalResultsHint: 47}
	if got := info.PageCount(20); got != 3 {
		t.Fatalf("expected ceil(47/20)=3, got %d", got)
	}

	info = PageInfo{}
	if got := info.PageCount(20); got != 1 {
		t.Fatalf("expected 1 page with no signals, got %d", got)
	}
}

func TestParseTotalResults(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"Найдено 47 объявлений", 47},
		{"132 объявления в Алматы", 132},
		{"showing 12 results", 12},
		{"никаких чисел здесь", 0},
	}
	for _, tc := range cases {
		if got := parseTotalResults(tc.text); got != tc.want {
			t.Errorf("parseTotalResults(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
