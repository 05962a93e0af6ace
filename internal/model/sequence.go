package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SequenceScope is the document family a definition numbers.
type SequenceScope string

const (
	SequenceScopeInvoice   SequenceScope = "INVOICE"
	SequenceScopeInventory SequenceScope = "INVENTORY"
)

func (s SequenceScope) Valid() bool {
	return s == SequenceScopeInvoice || s == SequenceScopeInventory
}

// CounterScopeType is the dimension a counter is partitioned by.
type CounterScopeType string

const (
	CounterScopeGlobal        CounterScopeType = "GLOBAL"
	CounterScopeCashRegister  CounterScopeType = "CASH_REGISTER"
	CounterScopeInventoryType CounterScopeType = "INVENTORY_TYPE"
)

func (t CounterScopeType) Valid() bool {
	switch t {
	case CounterScopeGlobal, CounterScopeCashRegister, CounterScopeInventoryType:
		return true
	}
	return false
}

// SequenceDefinition configures a numbering scheme.
// StartValue and Step are frozen once any counter references the definition.
type SequenceDefinition struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Code       string        `gorm:"type:varchar(40);uniqueIndex;not null"`
	Scope      SequenceScope `gorm:"type:varchar(20);not null"`
	Prefix     string        `gorm:"type:varchar(20);not null"`
	Suffix     string        `gorm:"type:varchar(20);not null"`
	Padding    int           `gorm:"not null"`
	StartValue int64         `gorm:"not null"`
	Step       int64         `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MaxSequencePadding bounds the zero-padded width of a formatted number.
const MaxSequencePadding = 32

// Format renders prefix + zero-padded value + suffix. A padding narrower than
// the value's digit count never truncates.
func (d SequenceDefinition) Format(value int64) string {
	return fmt.Sprintf("%s%0*d%s", d.Prefix, d.Padding, value, d.Suffix)
}

// SequenceCounter is the current value of one definition for one scope key.
// Rows are created lazily on first allocation and only ever incremented.
type SequenceCounter struct {
	DefinitionID uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ScopeType    CounterScopeType `gorm:"type:varchar(20);primaryKey"`
	ScopeKey     string           `gorm:"type:varchar(80);primaryKey"`
	CurrentValue int64            `gorm:"not null"`
	UpdatedAt    time.Time
}

// CounterKey identifies a SequenceCounter row.
type CounterKey struct {
	DefinitionID uuid.UUID
	ScopeType    CounterScopeType
	ScopeKey     string
}
