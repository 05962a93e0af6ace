package repository

import (
	"context"
	"time"

	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentRepository interface {
	// ListAssignments filters by admin ids; an empty slice lists every assignment.
	ListAssignments(ctx context.Context, adminIDs []uuid.UUID) ([]model.CashRegisterAssignment, error)
	FindAssignment(ctx context.Context, adminID, registerID uuid.UUID) (*model.CashRegisterAssignment, error)
	// Assign is idempotent. With makeDefault it clears the admin's previous
	// default in the same transaction.
	Assign(ctx context.Context, adminID, registerID uuid.UUID, makeDefault bool) error
	Unassign(ctx context.Context, adminID, registerID uuid.UUID) error
	SetDefault(ctx context.Context, adminID, registerID uuid.UUID) error
}

const assignmentNotFound = "La caja no esta asignada al usuario"

type assignmentRepo struct{ base }

func NewAssignmentRepository(db *gorm.DB, timeout time.Duration) AssignmentRepository {
	return &assignmentRepo{base{db: db, timeout: timeout}}
}

func (r *assignmentRepo) ListAssignments(ctx context.Context, adminIDs []uuid.UUID) ([]model.CashRegisterAssignment, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	q := db.Model(&model.CashRegisterAssignment{})
	if len(adminIDs) > 0 {
		q = q.Where("admin_user_id IN ?", adminIDs)
	}
	var rows []model.CashRegisterAssignment
	err := q.Order("admin_user_id ASC, created_at ASC").Find(&rows).Error
	return rows, translate(err, assignmentNotFound)
}

func (r *assignmentRepo) FindAssignment(ctx context.Context, adminID, registerID uuid.UUID) (*model.CashRegisterAssignment, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var a model.CashRegisterAssignment
	err := db.Where("admin_user_id = ? AND cash_register_id = ?", adminID, registerID).First(&a).Error
	if err != nil {
		return nil, translate(err, assignmentNotFound)
	}
	return &a, nil
}

func (r *assignmentRepo) Assign(ctx context.Context, adminID, registerID uuid.UUID, makeDefault bool) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	err := db.Transaction(func(tx *gorm.DB) error {
		row := model.CashRegisterAssignment{
			AdminUserID:    adminID,
			CashRegisterID: registerID,
			CreatedAt:      time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if !makeDefault {
			return nil
		}
		return setDefaultTx(tx, adminID, registerID)
	})
	return translate(err, assignmentNotFound)
}

func (r *assignmentRepo) Unassign(ctx context.Context, adminID, registerID uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	res := db.Where("admin_user_id = ? AND cash_register_id = ?", adminID, registerID).
		Delete(&model.CashRegisterAssignment{})
	if res.Error != nil {
		return translate(res.Error, assignmentNotFound)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, assignmentNotFound)
	}
	return nil
}

func (r *assignmentRepo) SetDefault(ctx context.Context, adminID, registerID uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	err := db.Transaction(func(tx *gorm.DB) error {
		return setDefaultTx(tx, adminID, registerID)
	})
	return translate(err, assignmentNotFound)
}

// setDefaultTx clears the admin's current default before flagging the new
// one, so the partial unique index on (admin_user_id) WHERE is_default never
// sees two rows.
func setDefaultTx(tx *gorm.DB, adminID, registerID uuid.UUID) error {
	var target model.CashRegisterAssignment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("admin_user_id = ? AND cash_register_id = ?", adminID, registerID).
		First(&target).Error
	if err != nil {
		return err
	}
	if err := tx.Model(&model.CashRegisterAssignment{}).
		Where("admin_user_id = ? AND is_default = ?", adminID, true).
		Update("is_default", false).Error; err != nil {
		return err
	}
	return tx.Model(&model.CashRegisterAssignment{}).
		Where("admin_user_id = ? AND cash_register_id = ?", adminID, registerID).
		Update("is_default", true).Error
}
