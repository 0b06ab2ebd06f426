package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPSender delivers through an SMTP relay. Without a username it sends
// unauthenticated, which is what Mailpit expects in development.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	fromName string
	auth     smtp.Auth
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	port := strings.TrimSpace(cfg.Port)
	if port == "" {
		port = "1025"
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "hello@bridalos.local"
	}
	s := &SMTPSender{
		addr:     net.JoinHostPort(host, port),
		host:     host,
		from:     from,
		fromName: strings.TrimSpace(cfg.FromName),
		send:     smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := buildMessage(s.fromHeader(), msg, time.Now())
	if err := s.send(s.addr, s.auth, s.from, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) fromHeader() string {
	if s.fromName == "" {
		return s.from
	}
	return mime.QEncoding.Encode("utf-8", s.fromName) + " <" + s.from + ">"
}

// buildMessage renders an RFC 5322 message: plain text only, or
// multipart/alternative when an HTML body is present.
func buildMessage(from string, msg EmailMessage, now time.Time) string {
	var b strings.Builder
	to := msg.To
	if msg.ToName != "" {
		to = mime.QEncoding.Encode("utf-8", msg.ToName) + " <" + msg.To + ">"
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(crlf(msg.Text))
		b.WriteString("\r\n")
		return b.String()
	}

	boundary := "bridalos-" + uuid.NewString()
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, crlf(msg.Text))
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, crlf(msg.HTML))
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
