package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/sanitize"
)

const smtpTimeout = 15 * time.Second

// SMTPSender delivers notices through an SMTP relay. One go-mail client is
// shared by every send.
type SMTPSender struct {
	client    *gomail.Client
	fromName  string
	fromEmail string
}

// NewSMTPSender builds the relay client from cfg. Authentication is only
// negotiated when a username is configured.
func NewSMTPSender(cfg config.EmailConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.GetSMTPPort()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(smtpTimeout),
	}
	if cfg.GetSMTPUsername() != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.GetSMTPUsername()),
			gomail.WithPassword(cfg.GetSMTPPassword()),
		)
	}

	client, err := gomail.NewClient(cfg.GetSMTPHost(), opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{
		client:    client,
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}, nil
}

// SendProtectionNotice renders and sends one owner notice as HTML with a
// plain-text alternative.
func (s *SMTPSender) SendProtectionNotice(ctx context.Context, toEmail string, notice ProtectionNotice) error {
	subject, body, err := renderProtectionNotice(notice)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, body)
	msg.AddAlternativeString(gomail.TypeTextPlain, plainText(body))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// plainText derives the text part from the rendered HTML, keeping at most one
// blank line between paragraphs.
func plainText(html string) string {
	var b strings.Builder
	blank := false
	for _, line := range strings.Split(sanitize.Multiline(html), "\n") {
		if line == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
			if blank {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}
