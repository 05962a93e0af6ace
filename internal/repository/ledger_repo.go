package repository

import (
	"context"
	"time"

	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceLedger is the read-only view of the invoicing module's ledger.
type InvoiceLedger interface {
	// ListInvoicesForSession returns every invoice attributed to the session,
	// cancelled ones included, each with its payment lines.
	ListInvoicesForSession(ctx context.Context, sessionID uuid.UUID) ([]model.LedgerInvoice, error)
}

type invoiceLedger struct{ base }

func NewInvoiceLedger(db *gorm.DB, timeout time.Duration) InvoiceLedger {
	return &invoiceLedger{base{db: db, timeout: timeout}}
}

func (r *invoiceLedger) ListInvoicesForSession(ctx context.Context, sessionID uuid.UUID) ([]model.LedgerInvoice, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var invoices []model.Invoice
	err := db.Preload("Payments", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC, id ASC")
	}).
		Where("cash_register_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, translate(err, sessionNotFound)
	}

	out := make([]model.LedgerInvoice, 0, len(invoices))
	for _, inv := range invoices {
		li := model.LedgerInvoice{ID: inv.ID, Number: inv.InvoiceNumber, Status: inv.Status}
		for _, p := range inv.Payments {
			li.Payments = append(li.Payments, model.LedgerPayment{Method: p.PaymentMethod, Amount: p.Amount, Count: 1})
		}
		out = append(out, li)
	}
	return out, nil
}
