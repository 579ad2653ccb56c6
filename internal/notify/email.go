package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// EmailConfig holds SMTP settings. Recipients is a comma-separated
// address list.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients string
}

// EmailProvider sends plain-text mail over SMTP with STARTTLS.
type EmailProvider struct {
	cfg EmailConfig
	log *slog.Logger
}

// NewEmail creates an email provider.
func NewEmail(cfg EmailConfig, log *slog.Logger) *EmailProvider {
	if log == nil {
		log = slog.Default()
	}
	return &EmailProvider{cfg: cfg, log: log}
}

func (e *EmailProvider) Name() string { return "email" }

func (e *EmailProvider) Available() bool {
	return e.cfg.Host != "" && e.cfg.From != "" && e.cfg.Recipients != ""
}

func (e *EmailProvider) recipients() []string {
	var out []string
	for _, r := range strings.Split(e.cfg.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (e *EmailProvider) Send(ctx context.Context, msg Message) bool {
	to := e.recipients()
	if len(to) == 0 {
		e.log.Warn("email provider has no valid recipients")
		return false
	}

	port := e.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprint(port))

	subject := msg.Title
	if msg.Priority == PriorityHigh {
		subject = "[URGENT] " + subject
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.cfg.From, strings.Join(to, ", "), subject, msg.Content)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	// smtp.SendMail upgrades via STARTTLS when the server advertises
	// it. It has no context support, so the wait is bounded by
	// selecting on ctx instead.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, e.cfg.From, to, []byte(body))
	}()

	select {
	case err := <-done:
		if err != nil {
			e.log.Warn("email delivery failed", "host", e.cfg.Host, "error", err)
			return false
		}
		return true
	case <-ctx.Done():
		e.log.Warn("email delivery timed out", "host", e.cfg.Host)
		return false
	}
}
