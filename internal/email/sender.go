// Package email delivers owner notices for lead protection deadlines.
package email

import (
	"context"
	"errors"
	"time"

	"lead_protection_backend/platform/config"
)

// ProtectionNotice is the data rendered into an owner notice.
type ProtectionNotice struct {
	Kind        string
	OwnerName   string
	CompanyName string
	LeadURL     string
	StampedAt   time.Time
	// DueAt is zero for expiry notices.
	DueAt time.Time
}

// Sender delivers owner notices.
type Sender interface {
	SendProtectionNotice(ctx context.Context, toEmail string, notice ProtectionNotice) error
}

// NoopSender drops every message. It is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendProtectionNotice(context.Context, string, ProtectionNotice) error {
	return nil
}

// NewSender returns an SMTP sender, or a NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}
	if cfg.GetSMTPHost() == "" || cfg.GetEmailFromAddress() == "" {
		return nil, errors.New("smtp host and from address are required when email is enabled")
	}
	sender, err := NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return sender, nil
}
