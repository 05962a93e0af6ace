package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus: OPEN → CLOSED | CANCELLED. Both targets are terminal.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "OPEN"
	SessionClosed    SessionStatus = "CLOSED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// CashRegisterSession is one open-to-close work shift of a register by one operator.
// The closing fields and TotalsSnapshot are written exactly once, by close.
type CashRegisterSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CashRegisterID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AdminUserID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Status         SessionStatus   `gorm:"type:varchar(12);not null;index"`
	OpeningAmount  decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	OpeningAt      time.Time       `gorm:"not null"`
	OpeningNotes   *string
	// InvoiceSequenceDefinitionID is the register's binding at open time.
	// Later changes to the register do not affect an in-flight session.
	InvoiceSequenceDefinitionID *uuid.UUID       `gorm:"type:uuid"`
	ClosingAdminUserID          *uuid.UUID       `gorm:"type:uuid"`
	ClosingAmount               *decimal.Decimal `gorm:"type:decimal(14,2)"`
	ClosingAt                   *time.Time
	ClosingNotes                *string
	// TotalsSnapshot is the JSON-encoded closure summary cached at close.
	TotalsSnapshot *string `gorm:"type:jsonb"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *CashRegisterSession) IsOpen() bool { return s.Status == SessionOpen }

// SessionClosing carries the fields written by the OPEN → CLOSED transition.
type SessionClosing struct {
	ClosingAdminUserID uuid.UUID
	ClosingAmount      decimal.Decimal
	ClosingAt          time.Time
	ClosingNotes       *string
	TotalsSnapshot     string
}

// SessionCancellation carries the fields written by the OPEN → CANCELLED transition.
type SessionCancellation struct {
	AdminUserID uuid.UUID
	At          time.Time
	Notes       *string
}
