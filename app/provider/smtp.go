package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/vibast-solutions/ms-go-mailqueue/app/logger"
)

type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSStartTLS TLSMode = "starttls"
	TLSImplicit TLSMode = "implicit"
)

// ParseTLSMode accepts none, starttls and implicit (case-insensitive). Empty means none.
func ParseTLSMode(value string) (TLSMode, error) {
	switch TLSMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", TLSNone:
		return TLSNone, nil
	case TLSStartTLS:
		return TLSStartTLS, nil
	case TLSImplicit:
		return TLSImplicit, nil
	default:
		return "", fmt.Errorf("unsupported smtp tls mode %q", value)
	}
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      TLSMode
	Timeout  time.Duration
}

type SMTPProvider struct {
	cfg    SMTPConfig
	source string
	tls    *tls.Config
}

// NewSMTPProvider builds a provider that opens one SMTP session per message.
func NewSMTPProvider(cfg SMTPConfig, source string) *SMTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPProvider{
		cfg:    cfg,
		source: source,
		tls:    &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// SendRaw dials the relay, authenticates when credentials are set, and submits raw.
func (p *SMTPProvider) SendRaw(ctx context.Context, recipient string, raw []byte) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if len(raw) == 0 {
		return fmt.Errorf("raw content is required")
	}

	conn, err := p.dialContext(ctx)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", p.addr(), err)
	}

	// Closing the connection unblocks the handshake or any in-flight command
	// when ctx ends first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c, err := p.newClient(conn)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("smtp handshake %s: %w", p.addr(), ctx.Err())
		}
		return fmt.Errorf("smtp handshake %s: %w", p.addr(), err)
	}
	defer c.Close()

	c.CommandTimeout = p.cfg.Timeout
	c.SubmissionTimeout = p.cfg.Timeout

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.SendMail(p.source, []string{recipient}, bytes.NewReader(raw)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("smtp send: %w", ctx.Err())
		}
		return fmt.Errorf("smtp send: %w", err)
	}

	// The relay accepted the message at end of DATA; a failed QUIT is not a delivery failure.
	_ = c.Quit()
	logger.FromContext(ctx).Debug().Str("relay", p.addr()).Msg("smtp relay accepted message")
	return nil
}

// dialContext connects to the relay, bounded by ctx and the configured timeout.
func (p *SMTPProvider) dialContext(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	if p.cfg.TLS == TLSImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tls}
		return tlsDialer.DialContext(ctx, "tcp", p.addr())
	}
	return dialer.DialContext(ctx, "tcp", p.addr())
}

func (p *SMTPProvider) newClient(conn net.Conn) (*smtp.Client, error) {
	if p.cfg.TLS == TLSStartTLS {
		return smtp.NewClientStartTLS(conn, p.tls)
	}
	return smtp.NewClient(conn), nil
}

func (p *SMTPProvider) addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}
