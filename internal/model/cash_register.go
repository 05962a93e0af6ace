package model

import (
	"time"

	"github.com/google/uuid"
)

// CashRegister is a named till bound to one warehouse, through which invoices
// are issued. Registers are soft-deactivated, never deleted while sessions
// reference them.
type CashRegister struct {
	ID                           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code                         string    `gorm:"type:varchar(40);uniqueIndex;not null"`
	Name                         string    `gorm:"type:varchar(120);not null"`
	WarehouseID                  uuid.UUID `gorm:"type:uuid;not null;index"`
	AllowManualWarehouseOverride bool      `gorm:"not null"`
	IsActive                     bool      `gorm:"not null"`
	// InvoiceSequenceDefinitionID is copied onto each session at open time.
	InvoiceSequenceDefinitionID *uuid.UUID `gorm:"type:uuid"`
	DefaultCustomerID           *uuid.UUID `gorm:"type:uuid"`
	Notes                       *string
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// CashRegisterAssignment links an admin user to a register.
// At most one row per admin carries IsDefault=true.
type CashRegisterAssignment struct {
	AdminUserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CashRegisterID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	IsDefault      bool      `gorm:"not null"`
	CreatedAt      time.Time
}
