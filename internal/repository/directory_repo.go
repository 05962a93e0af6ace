package repository

import (
	"context"
	"time"

	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminDirectory resolves admin users for display purposes only.
type AdminDirectory interface {
	GetAdminDirectoryEntry(ctx context.Context, id uuid.UUID) (*model.AdminUser, error)
	ListAdminDirectoryEntries(ctx context.Context, ids []uuid.UUID) ([]model.AdminUser, error)
}

// WarehouseCatalog is the read-only warehouse lookup.
type WarehouseCatalog interface {
	GetWarehouseByCode(ctx context.Context, code string) (*model.Warehouse, error)
	GetWarehouseByID(ctx context.Context, id uuid.UUID) (*model.Warehouse, error)
}

// CustomerDirectory backs the retail-mode default customer binding.
type CustomerDirectory interface {
	GetCustomerByCode(ctx context.Context, code string) (*model.Customer, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
}

// Directory is one gorm reader serving the three directories.
type Directory struct{ base }

func NewDirectory(db *gorm.DB, timeout time.Duration) *Directory {
	return &Directory{base{db: db, timeout: timeout}}
}

var (
	_ AdminDirectory    = (*Directory)(nil)
	_ WarehouseCatalog  = (*Directory)(nil)
	_ CustomerDirectory = (*Directory)(nil)
)

func (r *Directory) GetAdminDirectoryEntry(ctx context.Context, id uuid.UUID) (*model.AdminUser, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var u model.AdminUser
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err, "Usuario no encontrado")
	}
	return &u, nil
}

func (r *Directory) ListAdminDirectoryEntries(ctx context.Context, ids []uuid.UUID) ([]model.AdminUser, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()
	var users []model.AdminUser
	err := db.Where("id IN ?", ids).Order("display_name ASC").Find(&users).Error
	return users, translate(err, "Usuario no encontrado")
}

func (r *Directory) GetWarehouseByCode(ctx context.Context, code string) (*model.Warehouse, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var w model.Warehouse
	if err := db.Where("code = ?", code).First(&w).Error; err != nil {
		return nil, translate(err, "Almacen no encontrado")
	}
	return &w, nil
}

func (r *Directory) GetWarehouseByID(ctx context.Context, id uuid.UUID) (*model.Warehouse, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var w model.Warehouse
	if err := db.Where("id = ?", id).First(&w).Error; err != nil {
		return nil, translate(err, "Almacen no encontrado")
	}
	return &w, nil
}

func (r *Directory) GetCustomerByCode(ctx context.Context, code string) (*model.Customer, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var c model.Customer
	if err := db.Where("code = ?", code).First(&c).Error; err != nil {
		return nil, translate(err, "Cliente no encontrado")
	}
	return &c, nil
}

func (r *Directory) GetCustomerByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var c model.Customer
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err, "Cliente no encontrado")
	}
	return &c, nil
}
