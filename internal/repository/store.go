package repository

import (
	"context"
	"errors"
	"time"

	"systeminvoice/internal/apperr"

	"gorm.io/gorm"
)

// base carries the connection and the per-call storage deadline shared by
// every gorm repository.
type base struct {
	db      *gorm.DB
	timeout time.Duration
}

// conn returns a session bound to ctx plus STORAGE_TIMEOUT. The caller must
// invoke the returned cancel func.
func (b base) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if b.timeout <= 0 {
		return b.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	return b.db.WithContext(ctx), cancel
}

// translate maps driver errors onto apperr kinds. Errors that already carry a
// kind pass through untouched.
func translate(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var tagged *apperr.Error
	switch {
	case errors.As(err, &tagged):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s", notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("El registro ya existe").WithCode(apperr.CodeDuplicate)
	default:
		return apperr.Storage(err, "Error de almacenamiento")
	}
}

// Store bundles every repository behind one storage strategy, chosen once at
// construction.
type Store struct {
	Sequences   SequenceRepository
	Registers   CashRegisterRepository
	Assignments AssignmentRepository
	Sessions    SessionRepository
	Ledger      InvoiceLedger
	Admins      AdminDirectory
	Warehouses  WarehouseCatalog
	Customers   CustomerDirectory
	// Ping reports whether the backing store is reachable.
	Ping func(ctx context.Context) error
}

// NewGormStore wires the gorm repositories over db. Each call is bounded by timeout.
func NewGormStore(db *gorm.DB, timeout time.Duration) *Store {
	dir := NewDirectory(db, timeout)
	return &Store{
		Sequences:   NewSequenceRepository(db, timeout),
		Registers:   NewCashRegisterRepository(db, timeout),
		Assignments: NewAssignmentRepository(db, timeout),
		Sessions:    NewSessionRepository(db, timeout),
		Ledger:      NewInvoiceLedger(db, timeout),
		Admins:      dir,
		Warehouses:  dir,
		Customers:   dir,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}
