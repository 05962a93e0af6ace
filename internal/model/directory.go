package model

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse is read from the warehouse catalog; never written here.
type Warehouse struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code     string    `gorm:"type:varchar(40);uniqueIndex;not null"`
	Name     string    `gorm:"type:varchar(120);not null"`
	IsActive bool      `gorm:"not null"`
}

// AdminUser is an admin directory entry, used for display names only.
// Role: "cajero" | "supervisor" | "administrador"
type AdminUser struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"type:varchar(80);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(120);not null"`
	Email       *string
	Role        string `gorm:"type:varchar(20);not null"`
	IsActive    bool   `gorm:"not null"`
	CreatedAt   time.Time
}

// Customer is read from the customer directory for the retail-mode default binding.
type Customer struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code     string    `gorm:"type:varchar(40);uniqueIndex;not null"`
	Name     string    `gorm:"type:varchar(160);not null"`
	IsActive bool      `gorm:"not null"`
}
