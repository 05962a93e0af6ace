package worker

// closure_report_worker.go
// Renders the PDF closure report of a CLOSED session, stores it on disk and
// mails it to the configured recipients.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/report"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ClosureReportPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// ReportSource renders a stored closure report.
type ReportSource interface {
	Document(ctx context.Context, sessionID uuid.UUID, format string) (*report.Document, error)
}

// ReportMailer delivers a rendered report.
type ReportMailer interface {
	SendClosureReport(to []string, subject, body, attachmentPath string) error
}

type ClosureReportWorker struct {
	reports    ReportSource
	mailer     ReportMailer
	breaker    *infra.CircuitBreaker
	recipients []string
	storageDir string
}

// NewClosureReportWorker builds the worker. A nil mailer or an empty recipient
// list stores the PDF without mailing it.
func NewClosureReportWorker(reports ReportSource, mailer ReportMailer, breaker *infra.CircuitBreaker, recipients []string, storageDir string) *ClosureReportWorker {
	return &ClosureReportWorker{reports: reports, mailer: mailer, breaker: breaker, recipients: recipients, storageDir: storageDir}
}

func (w *ClosureReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ClosureReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("closure_report_worker: invalid payload: %w", err)
	}
	if payload.SessionID == uuid.Nil {
		return errors.New("closure_report_worker: missing session_id")
	}
	logger := log.With().Str("session_id", payload.SessionID.String()).Logger()

	var doc *report.Document
	err := withRetry(ctx, MaxAttempts, func(int) error {
		var err error
		doc, err = w.reports.Document(ctx, payload.SessionID, report.FormatPDF)
		if err != nil && !apperr.IsKind(err, apperr.KindStorage) {
			// Not retryable: the session is gone or not closed.
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("closure_report_worker: render: %w", err)
	}
	if doc == nil {
		logger.Warn().Msg("closure_report_worker: session not reportable, skipping")
		return nil
	}

	path, err := doc.Save(w.storageDir)
	if err != nil {
		return fmt.Errorf("closure_report_worker: save: %w", err)
	}
	logger.Info().Str("path", path).Msg("closure_report_worker: report stored")

	if w.mailer == nil || len(w.recipients) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Cierre de caja %s", payload.SessionID)
	body := "Se adjunta el reporte de cierre de caja."
	err = withRetry(ctx, MaxAttempts, func(int) error {
		send := func(context.Context) error {
			return w.mailer.SendClosureReport(w.recipients, subject, body, path)
		}
		if w.breaker == nil {
			return send(ctx)
		}
		return w.breaker.Execute(ctx, send)
	})
	if err != nil {
		return fmt.Errorf("closure_report_worker: mail: %w", err)
	}
	logger.Info().Strs("to", w.recipients).Msg("closure_report_worker: report mailed")
	return nil
}
