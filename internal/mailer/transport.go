package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Transport delivers a single email. Ping verifies the connection path is
// still usable so the worker's health check can recreate a broken
// transport.
type Transport interface {
	Send(ctx context.Context, task *Task) error
	Ping(ctx context.Context) error
	Close() error
}

// NoopTransport accepts every message without sending it. It stands in
// when no SMTP host is configured, typically in local development.
type NoopTransport struct{}

func (NoopTransport) Send(ctx context.Context, task *Task) error {
	_, _ = ctx, task
	return nil
}

func (NoopTransport) Ping(ctx context.Context) error {
	_ = ctx
	return nil
}

func (NoopTransport) Close() error { return nil }

// TransportConfig configures the SMTP transport.
type TransportConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	MaxConnections     int
	MaxMessagesPerConn int
}

// SMTPTransport sends mail over SMTP, reusing connections up to a message
// budget before recycling them.
type SMTPTransport struct {
	cfg  TransportConfig
	addr string
	auth smtp.Auth

	mu    sync.Mutex
	conns chan *pooledConn
}

type pooledConn struct {
	client   *smtp.Client
	messages int
}

func NewSMTPTransport(cfg TransportConfig) *SMTPTransport {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 5
	}
	if cfg.MaxMessagesPerConn <= 0 {
		cfg.MaxMessagesPerConn = 100
	}
	t := &SMTPTransport{
		cfg:   cfg,
		addr:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		conns: make(chan *pooledConn, cfg.MaxConnections),
	}
	if cfg.Username != "" {
		t.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return t
}

func (t *SMTPTransport) Send(ctx context.Context, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := t.acquire()
	if err != nil {
		return err
	}

	if err := t.send(conn.client, task); err != nil {
		_ = conn.client.Close()
		return err
	}

	conn.messages++
	t.release(conn)
	return nil
}

func (t *SMTPTransport) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := smtp.Dial(t.addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", t.addr, err)
	}
	defer client.Close()
	return client.Noop()
}

func (t *SMTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		select {
		case conn := <-t.conns:
			_ = conn.client.Quit()
		default:
			return nil
		}
	}
}

func (t *SMTPTransport) acquire() (*pooledConn, error) {
	select {
	case conn := <-t.conns:
		if conn.messages < t.cfg.MaxMessagesPerConn && conn.client.Noop() == nil {
			return conn, nil
		}
		_ = conn.client.Quit()
	default:
	}

	client, err := smtp.Dial(t.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", t.addr, err)
	}
	if t.auth != nil {
		if err := client.Auth(t.auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return &pooledConn{client: client}, nil
}

func (t *SMTPTransport) release(conn *pooledConn) {
	select {
	case t.conns <- conn:
	default:
		_ = conn.client.Quit()
	}
}

func (t *SMTPTransport) send(client *smtp.Client, task *Task) error {
	if err := client.Mail(t.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(task.To); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(buildMessage(t.cfg.From, task)); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

const mimeBoundary = "trafficd-mail-boundary"

func buildMessage(from string, task *Task) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", task.To)
	fmt.Fprintf(&sb, "Subject: %s\r\n", task.Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")

	body := htmlBody(task)
	if task.Options == nil || len(task.Options.Attachments) == 0 {
		sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		sb.WriteString(body)
		return []byte(sb.String())
	}

	fmt.Fprintf(&sb, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	for _, attachment := range task.Options.Attachments {
		data, err := os.ReadFile(attachment)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
		name := filepath.Base(attachment)
		fmt.Fprintf(&sb, "Content-Type: application/octet-stream; name=%q\r\n", name)
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)
		sb.WriteString(base64.StdEncoding.EncodeToString(data))
		sb.WriteString("\r\n")
	}
	fmt.Fprintf(&sb, "--%s--\r\n", mimeBoundary)
	return []byte(sb.String())
}

func htmlBody(task *Task) string {
	var sb strings.Builder
	if task.Options != nil && task.Options.RecipientName != "" {
		fmt.Fprintf(&sb, "<p>Hi %s,</p>", task.Options.RecipientName)
	}
	sb.WriteString(task.Body)
	if task.Link != "" {
		fmt.Fprintf(&sb, `<p><a href=%q>%s</a></p>`, task.Link, task.Link)
	}
	return sb.String()
}
