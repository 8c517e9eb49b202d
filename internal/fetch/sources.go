package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
)

// Source retrieves one listing from a specific origin surface. Fetch reports
// the transport outcome of its attempt alongside the result so the caller can
// feed the adaptive throttle: a parse failure on a 200 response is still a
// transport Success.
type Source interface {
	Name() domain.SourceName
	Fetch(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, throttle.Outcome, error)
}

// Attempt records one failed source attempt inside a FetchError.
type Attempt struct {
	Source domain.SourceName
	Err    error
}

// FetchError is returned when every source failed for a listing. It keeps the
// per-source reasons so callers can tell a blocked origin from a mangled page.
type FetchError struct {
	ID       string
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch listing %s: all sources failed", e.ID)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Source, a.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// classifyTransport maps a request error or HTTP status onto a throttle
// outcome. 429 and 403 both mean the origin is pushing back; any other
// answered request counts as a responsive origin.
func classifyTransport(err error, statusCode int) throttle.Outcome {
	if err != nil {
		switch httpclient.Kind(err) {
		case httpclient.ErrKindTimeout:
			return throttle.Timeout
		default:
			return throttle.ConnectionError
		}
	}
	if statusCode == 429 || statusCode == 403 {
		return throttle.RateLimited
	}
	return throttle.Success
}
