package repository

import (
	"context"
	"time"

	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CashRegisterRepository interface {
	Create(ctx context.Context, r *model.CashRegister) error
	Update(ctx context.Context, r *model.CashRegister) error
	FindByCode(ctx context.Context, code string) (*model.CashRegister, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegister, error)
	List(ctx context.Context, includeInactive bool) ([]model.CashRegister, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.CashRegister, error)
	CountActive(ctx context.Context) (int64, error)
}

const registerNotFound = "Caja no encontrada"

type cashRegisterRepo struct{ base }

func NewCashRegisterRepository(db *gorm.DB, timeout time.Duration) CashRegisterRepository {
	return &cashRegisterRepo{base{db: db, timeout: timeout}}
}

func (r *cashRegisterRepo) Create(ctx context.Context, reg *model.CashRegister) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	return translate(db.Create(reg).Error, registerNotFound)
}

// Update writes every column, including false booleans and cleared pointers.
func (r *cashRegisterRepo) Update(ctx context.Context, reg *model.CashRegister) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	res := db.Model(&model.CashRegister{}).Where("id = ?", reg.ID).Updates(map[string]any{
		"code":                            reg.Code,
		"name":                            reg.Name,
		"warehouse_id":                    reg.WarehouseID,
		"allow_manual_warehouse_override": reg.AllowManualWarehouseOverride,
		"is_active":                       reg.IsActive,
		"invoice_sequence_definition_id":  reg.InvoiceSequenceDefinitionID,
		"default_customer_id":             reg.DefaultCustomerID,
		"notes":                           reg.Notes,
		"updated_at":                      time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error, registerNotFound)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, registerNotFound)
	}
	return nil
}

func (r *cashRegisterRepo) FindByCode(ctx context.Context, code string) (*model.CashRegister, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var reg model.CashRegister
	if err := db.Where("code = ?", code).First(&reg).Error; err != nil {
		return nil, translate(err, registerNotFound)
	}
	return &reg, nil
}

func (r *cashRegisterRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegister, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var reg model.CashRegister
	if err := db.Where("id = ?", id).First(&reg).Error; err != nil {
		return nil, translate(err, registerNotFound)
	}
	return &reg, nil
}

func (r *cashRegisterRepo) List(ctx context.Context, includeInactive bool) ([]model.CashRegister, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	q := db.Model(&model.CashRegister{})
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var regs []model.CashRegister
	err := q.Order("code ASC").Find(&regs).Error
	return regs, translate(err, registerNotFound)
}

func (r *cashRegisterRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.CashRegister, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()
	var regs []model.CashRegister
	err := db.Where("id IN ?", ids).Order("code ASC").Find(&regs).Error
	return regs, translate(err, registerNotFound)
}

func (r *cashRegisterRepo) CountActive(ctx context.Context) (int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var n int64
	err := db.Model(&model.CashRegister{}).Where("is_active = ?", true).Count(&n).Error
	return n, translate(err, registerNotFound)
}
