package handlers

import (
	"context"
	"errors"
	"log/slog"
)

// ErrPDFFailed is the simulated PDF generation failure.
var ErrPDFFailed = errors.New("PDF generation error")

// GeneratePDFPayload is the payload of a generate_pdf job.
type GeneratePDFPayload struct {
	InvoiceID string  `json:"invoice_id"`
	Customer  string  `json:"customer"`
	Total     float64 `json:"total"`
}

// Validate checks the invoice fields.
func (p GeneratePDFPayload) Validate() error {
	if p.InvoiceID == "" {
		return errors.New("generate_pdf: invoice_id is required")
	}
	if p.Customer == "" {
		return errors.New("generate_pdf: customer is required")
	}
	if p.Total < 0 {
		return errors.New("generate_pdf: total must not be negative")
	}
	return nil
}

func (s *simulator) generatePDF(ctx context.Context, p GeneratePDFPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.logger.Info("generating pdf", slog.String("invoice_id", p.InvoiceID))
	if err := s.work(ctx, s.cfg.GeneratePDF, ErrPDFFailed); err != nil {
		return err
	}
	s.logger.Info("pdf generated",
		slog.String("invoice_id", p.InvoiceID),
		slog.String("customer", p.Customer),
		slog.Float64("total", p.Total),
	)
	return nil
}
