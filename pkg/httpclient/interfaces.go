package httpclient

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// ErrKind classifies transport-level failures so callers can feed backoff
// decisions without string-matching error text.
type ErrKind int

const (
	ErrKindOther ErrKind = iota
	ErrKindTimeout
	ErrKindConnection
)

// Kind classifies a transport error returned by Client.Get.
func Kind(err error) ErrKind {
	if err == nil {
		return ErrKindOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindConnection
	}
	return ErrKindOther
}
