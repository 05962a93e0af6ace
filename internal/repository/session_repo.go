package repository

import (
	"context"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionRepository interface {
	// CreateOpen checks that the register (and, with perAdmin, the admin) holds
	// no OPEN session and inserts s as OPEN, in one transaction.
	CreateOpen(ctx context.Context, s *model.CashRegisterSession, perAdmin bool) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error)
	// FindOpenByAdmin returns the admin's most recent OPEN session.
	FindOpenByAdmin(ctx context.Context, adminID uuid.UUID) (*model.CashRegisterSession, error)
	FindOpenByRegister(ctx context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error)
	// Close and Cancel transition OPEN sessions only. Exactly one concurrent
	// caller wins; the others get CONFLICT.
	Close(ctx context.Context, id uuid.UUID, c model.SessionClosing) (*model.CashRegisterSession, error)
	Cancel(ctx context.Context, id uuid.UUID, c model.SessionCancellation) (*model.CashRegisterSession, error)
	ListRecentByAdmin(ctx context.Context, adminID uuid.UUID, limit int) ([]model.CashRegisterSession, error)
	ListOpen(ctx context.Context) ([]model.CashRegisterSession, error)
}

const sessionNotFound = "Sesion de caja no encontrada"

type sessionRepo struct{ base }

func NewSessionRepository(db *gorm.DB, timeout time.Duration) SessionRepository {
	return &sessionRepo{base{db: db, timeout: timeout}}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (r *sessionRepo) CreateOpen(ctx context.Context, s *model.CashRegisterSession, perAdmin bool) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = model.SessionOpen
	err := db.Transaction(func(tx *gorm.DB) error {
		keys := []string{openLockKey("register", s.CashRegisterID)}
		if perAdmin {
			keys = append(keys, openLockKey("admin", s.AdminUserID))
		}
		if err := lockForOpen(tx, keys); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.CashRegisterSession{}).
			Where("cash_register_id = ? AND status = ?", s.CashRegisterID, model.SessionOpen).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrRegisterSessionOpen()
		}
		if perAdmin {
			if err := tx.Model(&model.CashRegisterSession{}).
				Where("admin_user_id = ? AND status = ?", s.AdminUserID, model.SessionOpen).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrAdminSessionOpen()
			}
		}
		return tx.Create(s).Error
	})
	if err != nil {
		// The partial unique index on open sessions per register catches the
		// race the count above cannot see.
		if apperr.CodeOf(translate(err, sessionNotFound)) == apperr.CodeDuplicate {
			return ErrRegisterSessionOpen()
		}
		return translate(err, sessionNotFound)
	}
	return nil
}

func openLockKey(kind string, id uuid.UUID) string {
	return "cash-register-session:" + kind + ":" + id.String()
}

// lockForOpen takes transaction-scoped advisory locks on Postgres so the OPEN
// counts and the insert run alone per register and per admin across every
// instance. Keys are taken in the given order: register first, admin second.
// Other dialects rely on the caller's serialization.
func lockForOpen(tx *gorm.DB, keys []string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	for _, k := range keys {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", k).Error; err != nil {
			return err
		}
	}
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var s model.CashRegisterSession
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, translate(err, sessionNotFound)
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenByAdmin(ctx context.Context, adminID uuid.UUID) (*model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var s model.CashRegisterSession
	err := db.Where("admin_user_id = ? AND status = ?", adminID, model.SessionOpen).
		Order("opening_at DESC").First(&s).Error
	if err != nil {
		return nil, translate(err, "Sin sesion activa")
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenByRegister(ctx context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var s model.CashRegisterSession
	err := db.Where("cash_register_id = ? AND status = ?", registerID, model.SessionOpen).First(&s).Error
	if err != nil {
		return nil, translate(err, "La caja no tiene sesion abierta")
	}
	return &s, nil
}

func (r *sessionRepo) ListRecentByAdmin(ctx context.Context, adminID uuid.UUID, limit int) ([]model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var rows []model.CashRegisterSession
	err := db.Where("admin_user_id = ?", adminID).
		Order("opening_at DESC").Limit(limit).Find(&rows).Error
	return rows, translate(err, sessionNotFound)
}

func (r *sessionRepo) ListOpen(ctx context.Context) ([]model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var rows []model.CashRegisterSession
	err := db.Where("status = ?", model.SessionOpen).Order("opening_at ASC").Find(&rows).Error
	return rows, translate(err, sessionNotFound)
}

// ── Close / Cancel ────────────────────────────────────────────────────────────
// Both are a single guarded UPDATE ... WHERE status = 'OPEN'. A zero row count
// means the session is missing or another transition already won.

func (r *sessionRepo) Close(ctx context.Context, id uuid.UUID, c model.SessionClosing) (*model.CashRegisterSession, error) {
	closingAdmin := c.ClosingAdminUserID
	amount := c.ClosingAmount
	snapshot := c.TotalsSnapshot
	return r.transition(ctx, id, map[string]any{
		"status":                model.SessionClosed,
		"closing_admin_user_id": &closingAdmin,
		"closing_amount":        &amount,
		"closing_at":            c.ClosingAt,
		"closing_notes":         c.ClosingNotes,
		"totals_snapshot":       &snapshot,
		"updated_at":            time.Now(),
	})
}

func (r *sessionRepo) Cancel(ctx context.Context, id uuid.UUID, c model.SessionCancellation) (*model.CashRegisterSession, error) {
	admin := c.AdminUserID
	return r.transition(ctx, id, map[string]any{
		"status":                model.SessionCancelled,
		"closing_admin_user_id": &admin,
		"closing_at":            c.At,
		"closing_notes":         c.Notes,
		"updated_at":            time.Now(),
	})
}

func (r *sessionRepo) transition(ctx context.Context, id uuid.UUID, cols map[string]any) (*model.CashRegisterSession, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	res := db.Model(&model.CashRegisterSession{}).
		Where("id = ? AND status = ?", id, model.SessionOpen).
		Updates(cols)
	if res.Error != nil {
		return nil, translate(res.Error, sessionNotFound)
	}
	var s model.CashRegisterSession
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, translate(err, sessionNotFound)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionNotOpen(s.Status)
	}
	return &s, nil
}

// ── Shared errors ─────────────────────────────────────────────────────────────
// The memory store returns the same values so both strategies read alike.

func ErrRegisterSessionOpen() error {
	return apperr.Conflict("La caja ya tiene una sesion abierta").WithCode(apperr.CodeSessionOpen)
}

func ErrAdminSessionOpen() error {
	return apperr.Conflict("El usuario ya tiene una sesion de caja abierta").WithCode(apperr.CodeSessionOpen)
}

func ErrSessionNotOpen(status model.SessionStatus) error {
	switch status {
	case model.SessionCancelled:
		return apperr.Conflict("session already cancelled").WithCode(apperr.CodeSessionNotOpen)
	default:
		return apperr.Conflict("session already closed").WithCode(apperr.CodeSessionNotOpen)
	}
}
