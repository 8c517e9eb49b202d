package publishers

import (
	"context"
)

// logPublisher writes every event to the application log. Useful as a local
// sink when no queue or webhook is configured yet.
type logPublisher struct {
	id  string
	log Logger
}

func newLogPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	return &logPublisher{id: cfg.ID, log: ensureLogger(log)}, nil
}

func (p *logPublisher) ID() string { return p.id }

func (p *logPublisher) Type() string { return TypeLog }

func (p *logPublisher) Publish(_ context.Context, evt Event) error {
	p.log.InfoObj("event", "event_payload", map[string]any{
		"publisher":  p.id,
		"event_type": evt.Type,
		"scope_id":   evt.ScopeID,
		"event":      evt,
	})
	return nil
}
