package preparer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type RenderStep struct{}

// NewRenderStep creates the final step that joins headers and body into raw bytes.
func NewRenderStep() *RenderStep {
	return &RenderStep{}
}

// Prepare writes the headers in insertion order followed by the body.
func (s *RenderStep) Prepare(_ context.Context, msg *Message) error {
	if len(msg.Headers) == 0 {
		return fmt.Errorf("no headers to render")
	}

	var b strings.Builder
	for _, h := range msg.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(msg.Body)

	msg.Raw = []byte(b.String())
	return nil
}

// NewTextChain returns the chain used by workers: addressing headers, plain text
// body, render.
func NewTextChain(source string) *Chain {
	return NewChain(NewHeaderStep(source, time.Now), NewPlainTextStep(), NewRenderStep())
}
