package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClosureSummary is the reconciliation of one session. It is derived on demand
// for previews and cached verbatim in CashRegisterSession.TotalsSnapshot at close.
type ClosureSummary struct {
	SessionID             uuid.UUID          `json:"sessionId"`
	CashRegister          ClosureRegister    `json:"cashRegister"`
	OpenedByAdminID       uuid.UUID          `json:"openedByAdminId"`
	OpeningAmount         decimal.Decimal    `json:"openingAmount"`
	OpeningAt             time.Time          `json:"openingAt"`
	ClosingByAdminID      *uuid.UUID         `json:"closingByAdminId"`
	ClosingAmount         *decimal.Decimal   `json:"closingAmount"`
	ClosingAt             *time.Time         `json:"closingAt"`
	ClosingNotes          *string            `json:"closingNotes"`
	ExpectedTotalAmount   decimal.Decimal    `json:"expectedTotalAmount"`
	ReportedTotalAmount   decimal.Decimal    `json:"reportedTotalAmount"`
	DifferenceTotalAmount decimal.Decimal    `json:"differenceTotalAmount"`
	TotalInvoices         int                `json:"totalInvoices"`
	Payments              []PaymentBreakdown `json:"payments"`
}

type ClosureRegister struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// PaymentBreakdown is one payment method line of a closure.
type PaymentBreakdown struct {
	Method           string          `json:"method"`
	ExpectedAmount   decimal.Decimal `json:"expectedAmount"`
	ReportedAmount   decimal.Decimal `json:"reportedAmount"`
	DifferenceAmount decimal.Decimal `json:"differenceAmount"`
	TransactionCount int             `json:"transactionCount"`
}

// ReportedPayment is one operator-declared total for a payment method.
type ReportedPayment struct {
	Method string
	Amount decimal.Decimal
}
