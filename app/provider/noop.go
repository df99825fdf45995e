package provider

import (
	"context"

	"github.com/rs/zerolog"
)

// NoopProvider drops every message after logging it. Useful for local runs.
type NoopProvider struct {
	log zerolog.Logger
}

// NewNoopProvider constructs a provider that never contacts a mail server.
func NewNoopProvider(log zerolog.Logger) *NoopProvider {
	return &NoopProvider{log: log}
}

// SendRaw logs the recipient and size and returns nil.
func (p *NoopProvider) SendRaw(_ context.Context, recipient string, raw []byte) error {
	p.log.Debug().
		Str("recipient", recipient).
		Int("bytes", len(raw)).
		Msg("noop provider dropped message")
	return nil
}
