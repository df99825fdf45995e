package preparer

import (
	"bytes"
	"context"
	"fmt"
	"mime/quotedprintable"
)

type PlainTextStep struct{}

// NewPlainTextStep creates a step that encodes the text as a quoted-printable body.
func NewPlainTextStep() *PlainTextStep {
	return &PlainTextStep{}
}

// Prepare sets the MIME content headers and the encoded body.
func (s *PlainTextStep) Prepare(_ context.Context, msg *Message) error {
	var body bytes.Buffer
	w := quotedprintable.NewWriter(&body)
	if _, err := w.Write([]byte(msg.Text)); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	msg.Headers = append(msg.Headers,
		Header{Name: "MIME-Version", Value: "1.0"},
		Header{Name: "Content-Type", Value: "text/plain; charset=UTF-8"},
		Header{Name: "Content-Transfer-Encoding", Value: "quoted-printable"},
	)
	msg.Body = body.Bytes()
	return nil
}
