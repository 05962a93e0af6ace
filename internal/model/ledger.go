package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice rows are owned by the invoicing module; this service only reads them.
// Status: "ISSUED" | "CANCELLED" (anything else counts as issued).
type Invoice struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceNumber         string          `gorm:"type:varchar(60);not null"`
	CashRegisterSessionID *uuid.UUID      `gorm:"type:uuid;index"`
	Status                string          `gorm:"type:varchar(20);not null"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CreatedAt             time.Time
	Payments              []InvoicePayment `gorm:"foreignKey:InvoiceID"`
}

// InvoicePayment is one payment line of an invoice. Each row is one transaction.
type InvoicePayment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentMethod string          `gorm:"type:varchar(30);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CreatedAt     time.Time
}

const InvoiceStatusCancelled = "CANCELLED"

// LedgerInvoice is the collaborator view of an invoice used for reconciliation.
type LedgerInvoice struct {
	ID       uuid.UUID
	Number   string
	Status   string
	Payments []LedgerPayment
}

// LedgerPayment is one payment line; Count is the number of transactions it stands for.
type LedgerPayment struct {
	Method string
	Amount decimal.Decimal
	Count  int
}
