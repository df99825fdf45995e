package preparer

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type HeaderStep struct {
	source string
	now    func() time.Time
}

// NewHeaderStep creates a step that adds the addressing headers, using source as
// the fixed sender for every message.
func NewHeaderStep(source string, now func() time.Time) *HeaderStep {
	if now == nil {
		now = time.Now
	}
	return &HeaderStep{source: source, now: now}
}

// Prepare validates the envelope and appends From, To, Subject, Date and Message-ID.
func (s *HeaderStep) Prepare(_ context.Context, msg *Message) error {
	if strings.TrimSpace(s.source) == "" {
		return fmt.Errorf("source email is required")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("recipient contains invalid characters")
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}

	msg.Headers = append(msg.Headers,
		Header{Name: "From", Value: s.source},
		Header{Name: "To", Value: msg.To},
		Header{Name: "Subject", Value: mime.QEncoding.Encode("utf-8", msg.Subject)},
		Header{Name: "Date", Value: s.now().UTC().Format(time.RFC1123Z)},
	)
	if msg.ID != uuid.Nil {
		msg.Headers = append(msg.Headers, Header{Name: "Message-ID", Value: "<" + msg.ID.String() + "@" + senderDomain(s.source) + ">"})
	}
	return nil
}

func senderDomain(source string) string {
	addr := source
	if parsed, err := mail.ParseAddress(source); err == nil {
		addr = parsed.Address
	}
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "localhost"
}
