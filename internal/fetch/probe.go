package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

// ProbeResult is the outcome of a delisting confirmation probe.
type ProbeResult int

const (
	// ProbeInconclusive means the probe could not tell either way; the caller
	// must leave stored state untouched.
	ProbeInconclusive ProbeResult = iota
	// ProbeActive means the origin still serves the listing.
	ProbeActive
	// ProbeDelisted means the origin explicitly reports the listing as taken
	// down.
	ProbeDelisted
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeActive:
		return "active"
	case ProbeDelisted:
		return "delisted"
	default:
		return "inconclusive"
	}
}

// Prober confirms suspected delistings with a lightweight request against the
// analytics endpoint. Archival is destructive from the pipeline's point of
// view, so anything short of an explicit delisted signal is inconclusive.
type Prober struct {
	client   httpclient.Client
	headers  map[string]string
	throttle *throttle.Throttle
}

func NewProber(client httpclient.Client, headers map[string]string, th *throttle.Throttle) *Prober {
	return &Prober{client: client, headers: headers, throttle: th}
}

// ConfirmDelisted probes one listing id. Transport outcomes feed the shared
// throttle; transport failures and unexpected statuses are inconclusive, never
// delisted.
func (p *Prober) ConfirmDelisted(ctx context.Context, id string) (ProbeResult, error) {
	if !p.throttle.Acquire(ctx) {
		return ProbeInconclusive, ctx.Err()
	}
	defer p.throttle.Release()

	url := fmt.Sprintf(analyticsURLFormat, id)
	resp, err := p.client.Get(ctx, url, p.headers)
	p.throttle.Observe(classifyTransport(err, statusOf(resp)))
	if err != nil {
		return ProbeInconclusive, fmt.Errorf("probe listing %s: %w", id, err)
	}

	switch resp.StatusCode() {
	case 404, 410:
		return ProbeDelisted, nil
	case 200:
	default:
		return ProbeInconclusive, fmt.Errorf("probe listing %s: status %d", id, resp.StatusCode())
	}

	var payload analyticsPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return ProbeInconclusive, fmt.Errorf("probe listing %s: decode payload: %w", id, err)
	}
	if payload.Advert.Storage == "archive" {
		return ProbeDelisted, nil
	}
	if payload.Advert.Storage != "" || payload.Advert.Title != "" || payload.CurrentPrice != nil {
		return ProbeActive, nil
	}
	return ProbeInconclusive, fmt.Errorf("probe listing %s: payload carries no advert", id)
}
