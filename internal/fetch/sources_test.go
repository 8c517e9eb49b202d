package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

type fakeResponse struct {
	body   []byte
	status int
}

func (r fakeResponse) Body() []byte    { return r.body }
func (r fakeResponse) StatusCode() int { return r.status }

// fakeClient serves canned responses keyed by URL and records every request.
type fakeClient struct {
	responses map[string]fakeResponse
	err       error
	calls     []string
}

func (c *fakeClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	c.calls = append(c.calls, url)
	if c.err != nil {
		return nil, c.err
	}
	resp, ok := c.responses[url]
	if !ok {
		return fakeResponse{status: 404}, nil
	}
	return resp, nil
}

func analyticsBody(storage, price, title, description, city string) []byte {
	return []byte(fmt.Sprintf(
		`{"advert":{"storage":%q,"price":%q,"title":%q,"description":%q,"city":%q}}`,
		storage, price, title, description, city,
	))
}

func TestAnalyticsSourceFetch(t *testing.T) {
	url := fmt.Sprintf(analyticsURLFormat, "671234567")
	client := &fakeClient{responses: map[string]fakeResponse{
		url: {
			status: 200,
			body: analyticsBody("live", `<span class="price">45 500 000 〒</span>`,
				"2-комнатная квартира, 61.5 м², 4/12 этаж", "ЖК «Времена года», год постройки 2018, паркинг", "Алматы"),
		},
	}}

	src := NewAnalyticsSource(client, nil)
	rec, outcome, err := src.Fetch(context.Background(), "671234567", domain.KindSale)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if outcome != throttle.Success {
		t.Fatalf("outcome = %s, want success", outcome)
	}
	if rec.Price != 45500000 {
		t.Errorf("price = %d, want 45500000", rec.Price)
	}
	if rec.Area != 61.5 {
		t.Errorf("area = %v, want 61.5", rec.Area)
	}
	if rec.Floor != 4 || rec.TotalFloors != 12 {
		t.Errorf("floor = %d/%d, want 4/12", rec.Floor, rec.TotalFloors)
	}
	if rec.TypeBucket != domain.BucketTwoRoom {
		t.Errorf("type bucket = %s, want 2BR", rec.TypeBucket)
	}
	if rec.ResidentialComplex != "Времена года" {
		t.Errorf("residential complex = %q", rec.ResidentialComplex)
	}
	if rec.ConstructionYear != 2018 {
		t.Errorf("construction year = %d, want 2018", rec.ConstructionYear)
	}
	if rec.City != "Алматы" {
		t.Errorf("city = %q, want Алматы", rec.City)
	}
	if rec.SourceUsed != domain.SourcePrimary {
		t.Errorf("source = %s, want primary", rec.SourceUsed)
	}
	if rec.Archived {
		t.Error("live advert marked archived")
	}
}

func TestAnalyticsSourceArchivedSkipsValidation(t *testing.T) {
	url := fmt.Sprintf(analyticsURLFormat, "5000")
	client := &fakeClient{responses: map[string]fakeResponse{
		url: {status: 200, body: analyticsBody("archive", "", "квартира", "", "")},
	}}

	src := NewAnalyticsSource(client, nil)
	rec, _, err := src.Fetch(context.Background(), "5000", domain.KindSale)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !rec.Archived {
		t.Fatal("archive storage not reflected in record")
	}
	if rec.Price != 0 {
		t.Errorf("archived record price = %d, want 0", rec.Price)
	}
}

func TestAnalyticsSourceUnresolvedAreaFails(t *testing.T) {
	url := fmt.Sprintf(analyticsURLFormat, "42")
	client := &fakeClient{responses: map[string]fakeResponse{
		url: {status: 200, body: analyticsBody("live", "45 500 000", "квартира без метража", "", "")},
	}}

	src := NewAnalyticsSource(client, nil)
	_, outcome, err := src.Fetch(context.Background(), "42", domain.KindSale)
	if err == nil {
		t.Fatal("expected validation error for unresolved area")
	}
	// A parse failure on a 200 answer is still a responsive origin.
	if outcome != throttle.Success {
		t.Fatalf("outcome = %s, want success", outcome)
	}
}

func TestAnalyticsSourceTransportOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeClient
		want   throttle.Outcome
	}{
		{
			name:   "rate limited",
			client: &fakeClient{responses: map[string]fakeResponse{fmt.Sprintf(analyticsURLFormat, "1"): {status: 429}}},
			want:   throttle.RateLimited,
		},
		{
			name:   "blocked",
			client: &fakeClient{responses: map[string]fakeResponse{fmt.Sprintf(analyticsURLFormat, "1"): {status: 403}}},
			want:   throttle.RateLimited,
		},
		{
			name:   "timeout",
			client: &fakeClient{err: fmt.Errorf("get: %w", context.DeadlineExceeded)},
			want:   throttle.Timeout,
		},
		{
			name:   "connection refused",
			client: &fakeClient{err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}},
			want:   throttle.ConnectionError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := NewAnalyticsSource(tc.client, nil)
			_, outcome, err := src.Fetch(context.Background(), "1", domain.KindSale)
			if err == nil {
				t.Fatal("expected error")
			}
			if outcome != tc.want {
				t.Fatalf("outcome = %s, want %s", outcome, tc.want)
			}
		})
	}
}

const detailPageHTML = `<html><body>
<h1>1-комнатная квартира, 42 м², 7/9 этаж</h1>
<div class="offer__price">18 900 000 〒</div>
<div class="offer__location">Астана, район Есиль</div>
<div class="offer__info-item">Год постройки 2015</div>
<div class="offer__info-item">подземная парковка</div>
<div class="offer__description">Продается квартира в ЖК «Гринвич». Отличное состояние.</div>
</body></html>`

func TestPageSourceFetch(t *testing.T) {
	url := fmt.Sprintf(detailURLFormat, "98765")
	client := &fakeClient{responses: map[string]fakeResponse{
		url: {status: 200, body: []byte(detailPageHTML)},
	}}

	src := NewPageSource(client, nil)
	rec, outcome, err := src.Fetch(context.Background(), "98765", domain.KindSale)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if outcome != throttle.Success {
		t.Fatalf("outcome = %s, want success", outcome)
	}
	if rec.Price != 18900000 {
		t.Errorf("price = %d, want 18900000", rec.Price)
	}
	if rec.Area != 42 {
		t.Errorf("area = %v, want 42", rec.Area)
	}
	if rec.Floor != 7 || rec.TotalFloors != 9 {
		t.Errorf("floor = %d/%d, want 7/9", rec.Floor, rec.TotalFloors)
	}
	if rec.TypeBucket != domain.BucketOneRoom {
		t.Errorf("type bucket = %s, want 1BR", rec.TypeBucket)
	}
	if rec.City != "Астана" {
		t.Errorf("city = %q, want Астана", rec.City)
	}
	if rec.ConstructionYear != 2015 {
		t.Errorf("construction year = %d, want 2015", rec.ConstructionYear)
	}
	if rec.Parking != "подземная парковка" {
		t.Errorf("parking = %q", rec.Parking)
	}
	if rec.ResidentialComplex != "Гринвич" {
		t.Errorf("residential complex = %q, want Гринвич", rec.ResidentialComplex)
	}
	if rec.SourceUsed != domain.SourceFallback {
		t.Errorf("source = %s, want fallback", rec.SourceUsed)
	}
}

func TestPageSourceGoneMeansArchived(t *testing.T) {
	for _, status := range []int{404, 410} {
		client := &fakeClient{responses: map[string]fakeResponse{
			fmt.Sprintf(detailURLFormat, "7"): {status: status},
		}}
		src := NewPageSource(client, nil)
		rec, outcome, err := src.Fetch(context.Background(), "7", domain.KindRental)
		if err != nil {
			t.Fatalf("status %d: %v", status, err)
		}
		if !rec.Archived {
			t.Fatalf("status %d not treated as archived", status)
		}
		if outcome != throttle.Success {
			t.Fatalf("status %d outcome = %s, want success", status, outcome)
		}
	}
}

func TestPageSourceArchiveBanner(t *testing.T) {
	page := `<html><body><div class="a-is-archive">Объявление в архиве</div>
<h1>2-комнатная квартира, 55 м²</h1></body></html>`
	client := &fakeClient{responses: map[string]fakeResponse{
		fmt.Sprintf(detailURLFormat, "8"): {status: 200, body: []byte(page)},
	}}

	src := NewPageSource(client, nil)
	rec, _, err := src.Fetch(context.Background(), "8", domain.KindSale)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !rec.Archived {
		t.Fatal("archive banner not detected")
	}
}
