package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateSequenceRequest struct {
	Code       string `json:"code"  validate:"required,max=40"`
	Scope      string `json:"scope" validate:"required,oneof=INVOICE INVENTORY"`
	Prefix     string `json:"prefix"  validate:"max=20"`
	Suffix     string `json:"suffix"  validate:"max=20"`
	Padding    int    `json:"padding" validate:"min=0,max=32"`
	StartValue *int64 `json:"start_value"`
	Step       *int64 `json:"step"`
}

type UpdateSequenceRequest struct {
	Prefix     *string `json:"prefix"`
	Suffix     *string `json:"suffix"`
	Padding    *int    `json:"padding" validate:"omitempty,min=0,max=32"`
	StartValue *int64  `json:"start_value"`
	Step       *int64  `json:"step"`
}

type AllocateRequest struct {
	ScopeType string `json:"scope_type" validate:"required,oneof=GLOBAL CASH_REGISTER INVENTORY_TYPE"`
	ScopeKey  string `json:"scope_key"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SequenceResponse struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Scope      string `json:"scope"`
	Prefix     string `json:"prefix"`
	Suffix     string `json:"suffix"`
	Padding    int    `json:"padding"`
	StartValue int64  `json:"startValue"`
	Step       int64  `json:"step"`
}

// SequenceNumberResponse is an allocated (or previewed) document number.
type SequenceNumberResponse struct {
	DefinitionCode string `json:"definitionCode"`
	Value          int64  `json:"value"`
	Formatted      string `json:"formatted"`
}
