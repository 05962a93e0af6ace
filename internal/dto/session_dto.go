package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	CashRegisterCode string          `json:"cash_register_code" validate:"required"`
	OpeningAmount    decimal.Decimal `json:"opening_amount"`
	OpeningNotes     *string         `json:"opening_notes"`
}

type ReportedPaymentRequest struct {
	Method string          `json:"method" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type CloseSessionRequest struct {
	// ClosingAmount defaults to the reported total when omitted.
	ClosingAmount *decimal.Decimal         `json:"closing_amount"`
	Payments      []ReportedPaymentRequest `json:"payments" validate:"dive"`
	ClosingNotes  *string                  `json:"closing_notes"`
}

type CancelSessionRequest struct {
	Notes *string `json:"notes"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionResponse struct {
	ID                 string           `json:"id"`
	CashRegisterID     string           `json:"cashRegisterId"`
	CashRegisterCode   string           `json:"cashRegisterCode"`
	CashRegisterName   string           `json:"cashRegisterName"`
	AdminUserID        string           `json:"adminUserId"`
	Status             string           `json:"status"`
	OpeningAmount      decimal.Decimal  `json:"openingAmount"`
	OpeningAt          string           `json:"openingAt"`
	OpeningNotes       *string          `json:"openingNotes"`
	ClosingAdminUserID *string          `json:"closingAdminUserId"`
	ClosingAmount      *decimal.Decimal `json:"closingAmount"`
	ClosingAt          *string          `json:"closingAt"`
	ClosingNotes       *string          `json:"closingNotes"`
}

type OperatorResponse struct {
	AdminUserID string `json:"adminUserId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// ActiveSessionResponse backs GET /cash-registers/sessions/active.
// Operators and Overview are only filled for administrators.
type ActiveSessionResponse struct {
	ActiveSession         *SessionResponse       `json:"activeSession"`
	CashRegisters         []CashRegisterResponse `json:"cashRegisters"`
	DefaultCashRegisterID *string                `json:"defaultCashRegisterId"`
	RecentSessions        []SessionResponse      `json:"recentSessions"`
	Operators             []OperatorResponse     `json:"operators,omitempty"`
	Overview              []SessionResponse      `json:"overview,omitempty"`
}

type ReportTokenResponse struct {
	Token     string `json:"token"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expiresAt"`
}
