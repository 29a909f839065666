package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
)

// ErrEmailFailed is the simulated email delivery failure.
var ErrEmailFailed = errors.New("simulated email failure")

// EmailPayload is the payload of an email_notification job.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate checks the required fields.
func (p EmailPayload) Validate() error {
	if p.To == "" {
		return errors.New("email_notification: to is required")
	}
	if _, err := mail.ParseAddress(p.To); err != nil {
		return fmt.Errorf("email_notification: invalid recipient %q: %w", p.To, err)
	}
	if p.Subject == "" {
		return errors.New("email_notification: subject is required")
	}
	return nil
}

func (s *simulator) sendEmail(ctx context.Context, p EmailPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.logger.Info("sending email",
		slog.String("to", p.To),
		slog.String("subject", p.Subject),
	)
	if err := s.work(ctx, s.cfg.EmailNotification, ErrEmailFailed); err != nil {
		return err
	}
	s.logger.Info("email sent", slog.String("to", p.To))
	return nil
}
