package provider

import "context"

// EmailProvider delivers an already rendered message. Any returned error is
// treated by callers as a transient failure.
type EmailProvider interface {
	SendRaw(ctx context.Context, recipient string, raw []byte) error
}
