package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

const analyticsURLFormat = "https://m.krisha.kz/analytics/aPriceAnalysis/?id=%s"

// analyticsPayload mirrors the mobile price-analysis endpoint. Price arrives
// as rendered HTML, not a number, and rooms is absent on older adverts.
type analyticsPayload struct {
	Advert struct {
		Storage     string `json:"storage"`
		Price       string `json:"price"`
		Title       string `json:"title"`
		Description string `json:"description"`
		City        string `json:"city"`
		Rooms       int    `json:"rooms"`
		AdType      string `json:"adType"`
	} `json:"advert"`
	CurrentPrice *int64 `json:"currentPrice"`
}

// AnalyticsSource is the primary listing source: a JSON endpoint on the
// mobile origin that answers with advert details plus archival status.
type AnalyticsSource struct {
	client  httpclient.Client
	headers map[string]string
}

func NewAnalyticsSource(client httpclient.Client, headers map[string]string) *AnalyticsSource {
	return &AnalyticsSource{client: client, headers: headers}
}

func (s *AnalyticsSource) Name() domain.SourceName {
	return domain.SourcePrimary
}

func (s *AnalyticsSource) Fetch(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, throttle.Outcome, error) {
	url := fmt.Sprintf(analyticsURLFormat, id)
	resp, err := s.client.Get(ctx, url, s.headers)
	outcome := classifyTransport(err, statusOf(resp))
	if err != nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("analytics request for %s: %w", id, err)
	}
	if resp.StatusCode() != 200 {
		return domain.ListingRecord{}, outcome, fmt.Errorf("analytics request for %s: status %d", id, resp.StatusCode())
	}

	var payload analyticsPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("decode analytics payload for %s: %w", id, err)
	}
	if payload.Advert.Title == "" && payload.Advert.Price == "" && payload.CurrentPrice == nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("analytics payload for %s carries no advert", id)
	}

	rec := s.buildRecord(id, kind, payload)
	if rec.Archived {
		return rec, outcome, nil
	}
	if err := rec.Validate(); err != nil {
		return domain.ListingRecord{}, outcome, fmt.Errorf("analytics record for %s: %w", id, err)
	}
	return rec, outcome, nil
}

func (s *AnalyticsSource) buildRecord(id string, kind domain.TransactionKind, payload analyticsPayload) domain.ListingRecord {
	adv := payload.Advert
	price := parsePriceText(adv.Price)
	if price == 0 && payload.CurrentPrice != nil {
		price = *payload.CurrentPrice
	}

	combined := adv.Title + "\n" + adv.Description
	area := parseAreaText(combined)
	floor, totalFloors := parseFloorText(combined)

	resolvedKind := kind
	if resolvedKind == "" {
		resolvedKind = resolveKind(adv.AdType, price, adv.Title, adv.Description, "")
	}

	return domain.ListingRecord{
		ID:                 id,
		Price:              price,
		Area:               area,
		Kind:               resolvedKind,
		TypeBucket:         resolveTypeBucket(adv.Rooms, adv.Title, adv.Description, area),
		ResidentialComplex: parseResidentialComplex(combined),
		City:               adv.City,
		Floor:              floor,
		TotalFloors:        totalFloors,
		ConstructionYear:   parseConstructionYear(combined),
		Parking:            parseParking(combined),
		Description:        adv.Description,
		Archived:           adv.Storage == "archive",
		SourceUsed:         domain.SourcePrimary,
		FetchedAt:          time.Now().UTC(),
	}
}

func statusOf(resp httpclient.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}
