package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/logging"
)

// Message is one outgoing HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender validates cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}, nil
}

// Send writes msg as a single text/html part.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, buildMIME(s.cfg.From, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message envelope.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger.Info("email not delivered, smtp disabled", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}

// Notifier renders and sends change notifications.
type Notifier struct {
	renderer *Renderer
	sender   Sender
	now      func() time.Time
}

// NewNotifier wires a notifier.
func NewNotifier(renderer *Renderer, sender Sender, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{renderer: renderer, sender: sender, now: now}
}

// Recipient identifies who receives a notification.
type Recipient struct {
	Email       string
	DisplayName string
}

// NotifyEventChanged emails the confirmed summary to the event owner.
func (n *Notifier) NotifyEventChanged(ctx context.Context, to Recipient, eventTitle string, summary changes.Summary) error {
	if n == nil {
		return fmt.Errorf("Notifier is nil")
	}
	subject := fmt.Sprintf("Changes confirmed for %q", eventTitle)
	body, err := n.renderer.RenderChanges(ChangeEmail{
		Subject:       subject,
		RecipientName: to.DisplayName,
		EventTitle:    eventTitle,
		ConfirmedAt:   n.now(),
		Summary:       summary,
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{To: to.Email, Subject: subject, HTML: body})
}
