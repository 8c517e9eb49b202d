package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

const (
	detailURLFormat    = "https://krisha.kz/a/show/%s"
	maxDetailPageBytes = 2 << 20 // 2 MiB
)

// PageSource is the fallback listing source: the public HTML detail page.
// Slower and heavier than the analytics endpoint, but it stays up when the
// mobile API misbehaves.
type PageSource struct {
	client  httpclient.Client
	headers map[string]string
}

func NewPageSource(client httpclient.Client, headers map[string]string) *PageSource {
	return &PageSource{client: client, headers: headers}
}

func (s *PageSource) Name() domain.SourceName {
	return domain.SourceFallback
}

func (s *PageSource) Fetch(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, throttle.Outcome, error) {
	url := fmt.Sprintf(detailURLFormat, id)
	resp, err := s.client.Get(ctx, url, s.headers)
	outcome := classifyTransport(err, statusOf(resp))
	if err != nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("detail page request for %s: %w", id, err)
	}
	if resp.StatusCode() == 404 || resp.StatusCode() == 410 {
		rec := domain.ListingRecord{
			ID:         id,
			Kind:       kind,
			Archived:   true,
			SourceUsed: domain.SourceFallback,
			FetchedAt:  time.Now().UTC(),
		}
		return rec, outcome, nil
	}
	if resp.StatusCode() != 200 {
		return domain.ListingRecord{}, outcome, fmt.Errorf("detail page request for %s: status %d", id, resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxDetailPageBytes {
		body = body[:maxDetailPageBytes]
	}

	rec, err := s.parseDetailPage(id, kind, url, body)
	if err != nil {
		return domain.ListingRecord{}, outcome, err
	}
	if rec.Archived {
		return rec, outcome, nil
	}
	if err := rec.Validate(); err != nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("detail page record for %s: %w", id, err)
	}
	return rec, outcome, nil
}

func (s *PageSource) parseDetailPage(id string, kind domain.TransactionKind, url string, body []byte) (domain.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ListingRecord{}, fmt.Errorf("parse detail page for %s: %w", id, err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	priceText := strings.TrimSpace(doc.Find(".offer__price").First().Text())
	description := strings.TrimSpace(doc.Find(".offer__description").First().Text())
	city := strings.TrimSpace(doc.Find(`div[data-name="map.complex"] .offer__location, .offer__location`).First().Text())
	if idx := strings.IndexAny(city, ",\n"); idx >= 0 {
		city = strings.TrimSpace(city[:idx])
	}

	var infoText strings.Builder
	doc.Find(".offer__info-item, .offer__parameters dl, .a-options__item").Each(func(_ int, sel *goquery.Selection) {
		infoText.WriteString(strings.TrimSpace(sel.Text()))
		infoText.WriteString("\n")
	})

	combined := title + "\n" + infoText.String() + "\n" + description

	archived := doc.Find(".a-is-archive, .offer__status--archive").Length() > 0 ||
		strings.Contains(combined, "Объявление в архиве") ||
		strings.Contains(combined, "В архиве")

	price := parsePriceText(priceText)
	area := parseAreaText(combined)
	floor, totalFloors := parseFloorText(combined)

	resolvedKind := kind
	if resolvedKind == "" {
		resolvedKind = resolveKind("", price, title, description, url)
	}

	return domain.ListingRecord{
		ID:                 id,
		Price:              price,
		Area:               area,
		Kind:               resolvedKind,
		TypeBucket:         resolveTypeBucket(0, title, combined, area),
		ResidentialComplex: parseResidentialComplex(combined),
		City:               city,
		Floor:              floor,
		TotalFloors:        totalFloors,
		ConstructionYear:   parseConstructionYear(combined),
		Parking:            parseParking(combined),
		Description:        description,
		Archived:           archived,
		SourceUsed:         domain.SourceFallback,
		FetchedAt:          time.Now().UTC(),
	}, nil
}
