package dto

import "systeminvoice/internal/optional"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateCashRegisterRequest struct {
	Code                         string  `json:"code"                            validate:"required,max=40,recordcode"`
	Name                         string  `json:"name"                            validate:"required,max=120"`
	WarehouseCode                string  `json:"warehouse_code"                  validate:"required"`
	AllowManualWarehouseOverride bool    `json:"allow_manual_warehouse_override"`
	InvoiceSequenceCode          *string `json:"invoice_sequence_code"`
	DefaultCustomerCode          *string `json:"default_customer_code"`
	Notes                        *string `json:"notes"`
}

// UpdateCashRegisterRequest: a key missing from the body leaves the column
// unchanged; an explicit null clears the nullable ones.
type UpdateCashRegisterRequest struct {
	Name                         optional.Field[string] `json:"name"`
	WarehouseCode                optional.Field[string] `json:"warehouse_code"`
	AllowManualWarehouseOverride optional.Field[bool]   `json:"allow_manual_warehouse_override"`
	IsActive                     optional.Field[bool]   `json:"is_active"`
	Notes                        optional.Field[string] `json:"notes"`
	DefaultCustomerCode          optional.Field[string] `json:"default_customer_code"`
	InvoiceSequenceCode          optional.Field[string] `json:"invoice_sequence_code"`
}

type AssignmentActionRequest struct {
	AdminUserID      string `json:"admin_user_id"      validate:"required,uuid"`
	CashRegisterCode string `json:"cash_register_code" validate:"required"`
	Action           string `json:"action"             validate:"required,oneof=assign unassign set_default"`
	MakeDefault      bool   `json:"make_default"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CashRegisterResponse struct {
	ID                           string  `json:"id"`
	Code                         string  `json:"code"`
	Name                         string  `json:"name"`
	WarehouseID                  string  `json:"warehouseId"`
	WarehouseCode                string  `json:"warehouseCode"`
	AllowManualWarehouseOverride bool    `json:"allowManualWarehouseOverride"`
	IsActive                     bool    `json:"isActive"`
	InvoiceSequenceDefinitionID  *string `json:"invoiceSequenceDefinitionId"`
	DefaultCustomerID            *string `json:"defaultCustomerId"`
	Notes                        *string `json:"notes"`
	CreatedAt                    string  `json:"createdAt"`
	UpdatedAt                    string  `json:"updatedAt"`
}

type AssignmentItem struct {
	CashRegisterID   string `json:"cashRegisterId"`
	CashRegisterCode string `json:"cashRegisterCode"`
	IsDefault        bool   `json:"isDefault"`
}

type AdminAssignments struct {
	AdminUserID string           `json:"adminUserId"`
	Assignments []AssignmentItem `json:"assignments"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
