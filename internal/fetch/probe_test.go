package fetch

import (
	"context"
	"fmt"
	"testing"

	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
)

func newTestProber(client *fakeClient) (*Prober, *throttle.Throttle) {
	th := throttle.New(throttle.Config{MinBudget: 1, MaxBudget: 8, InitialBudget: 4})
	return NewProber(client, nil, th), th
}

func TestConfirmDelistedArchiveStorage(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		fmt.Sprintf(analyticsURLFormat, "9"): {status: 200, body: analyticsBody("archive", "", "квартира", "", "")},
	}}
	p, _ := newTestProber(client)

	res, err := p.ConfirmDelisted(context.Background(), "9")
	if err != nil {
		t.Fatalf("ConfirmDelisted: %v", err)
	}
	if res != ProbeDelisted {
		t.Fatalf("result = %s, want delisted", res)
	}
}

func TestConfirmDelistedGoneStatus(t *testing.T) {
	for _, status := range []int{404, 410} {
		client := &fakeClient{responses: map[string]fakeResponse{
			fmt.Sprintf(analyticsURLFormat, "9"): {status: status},
		}}
		p, _ := newTestProber(client)

		res, err := p.ConfirmDelisted(context.Background(), "9")
		if err != nil {
			t.Fatalf("status %d: %v", status, err)
		}
		if res != ProbeDelisted {
			t.Fatalf("status %d result = %s, want delisted", status, res)
		}
	}
}

func TestConfirmDelistedActive(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		fmt.Sprintf(analyticsURLFormat, "9"): {status: 200, body: analyticsBody("live", "250 000", "квартира", "", "")},
	}}
	p, _ := newTestProber(client)

	res, err := p.ConfirmDelisted(context.Background(), "9")
	if err != nil {
		t.Fatalf("ConfirmDelisted: %v", err)
	}
	if res != ProbeActive {
		t.Fatalf("result = %s, want active", res)
	}
}

func TestConfirmDelistedTransportFailureInconclusive(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("get: %w", context.DeadlineExceeded)}
	p, _ := newTestProber(client)

	res, err := p.ConfirmDelisted(context.Background(), "9")
	if err == nil {
		t.Fatal("expected error")
	}
	if res != ProbeInconclusive {
		t.Fatalf("result = %s, want inconclusive", res)
	}
}

func TestConfirmDelistedServerErrorInconclusive(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		fmt.Sprintf(analyticsURLFormat, "9"): {status: 503},
	}}
	p, _ := newTestProber(client)

	res, err := p.ConfirmDelisted(context.Background(), "9")
	if err == nil {
		t.Fatal("expected error")
	}
	if res != ProbeInconclusive {
		t.Fatalf("result = %s, want inconclusive", res)
	}
}

func TestConfirmDelistedObservesRateLimit(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		fmt.Sprintf(analyticsURLFormat, "9"): {status: 429},
	}}
	p, th := newTestProber(client)

	if res, err := p.ConfirmDelisted(context.Background(), "9"); err == nil || res != ProbeInconclusive {
		t.Fatalf("result = %s, err = %v; want inconclusive with error", res, err)
	}
	if got := th.Budget(); got != 2 {
		t.Fatalf("budget after rate-limited probe = %d, want 2", got)
	}
}
