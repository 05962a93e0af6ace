// cmd/seed/main.go: crea datos de demo (deposito, administrador, secuencia de
// facturas, caja y asignacion) e imprime un token de acceso para desarrollo.
// Uso: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"systeminvoice/internal/config"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/middleware"
	"systeminvoice/internal/model"
	"systeminvoice/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	warehouseID = uuid.MustParse("8a4b1c52-4a0e-4d55-9a43-2f5c1b0e0001")
	adminID     = uuid.MustParse("8a4b1c52-4a0e-4d55-9a43-2f5c1b0e0002")
	sequenceID  = uuid.MustParse("8a4b1c52-4a0e-4d55-9a43-2f5c1b0e0003")
	registerID  = uuid.MustParse("8a4b1c52-4a0e-4d55-9a43-2f5c1b0e0004")
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}
	if err := infra.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := seed(db.WithContext(ctx)); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}

	token, err := devToken(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("token signing failed")
	}
	fmt.Printf("Datos de demo listos. Caja CAJA-01, administrador admin.\nBearer %s\n", token)
}

func seed(db *gorm.DB) error {
	upsert := clause.OnConflict{UpdateAll: true}
	return db.Transaction(func(tx *gorm.DB) error {
		rows := []interface{}{
			&model.Warehouse{ID: warehouseID, Code: "DEP-01", Name: "Deposito central", IsActive: true},
			&model.AdminUser{ID: adminID, Username: "admin", DisplayName: "Admin Demo", Role: service.RoleAdministrador, IsActive: true},
			&model.SequenceDefinition{ID: sequenceID, Code: "FAC-A", Scope: model.SequenceScopeInvoice, Prefix: "A-", Padding: 8, StartValue: 1, Step: 1},
			&model.CashRegister{ID: registerID, Code: "CAJA-01", Name: "Caja principal", WarehouseID: warehouseID, IsActive: true, InvoiceSequenceDefinitionID: &sequenceID},
		}
		for _, row := range rows {
			if err := tx.Clauses(upsert).Create(row).Error; err != nil {
				return err
			}
		}
		a := &model.CashRegisterAssignment{AdminUserID: adminID, CashRegisterID: registerID, IsDefault: true}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(a).Error
	})
}

func devToken(secret string) (string, error) {
	claims := &middleware.JWTClaims{
		UserID:   adminID.String(),
		Username: "admin",
		Rol:      service.RoleAdministrador,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
