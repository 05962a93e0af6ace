package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/config"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/model"
	"systeminvoice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CashRegisterService is the registry of registers and admin assignments.
type CashRegisterService interface {
	Create(ctx context.Context, req dto.CreateCashRegisterRequest) (*dto.CashRegisterResponse, error)
	Update(ctx context.Context, code string, req dto.UpdateCashRegisterRequest) (*dto.CashRegisterResponse, error)
	Get(ctx context.Context, code string) (*dto.CashRegisterResponse, error)
	List(ctx context.Context, includeInactive bool) ([]dto.CashRegisterResponse, error)

	ListAssignments(ctx context.Context, adminIDs []uuid.UUID) ([]dto.AdminAssignments, error)
	Assign(ctx context.Context, adminID uuid.UUID, code string, makeDefault bool) error
	Unassign(ctx context.Context, adminID uuid.UUID, code string) error
	SetDefault(ctx context.Context, adminID uuid.UUID, code string) error
	ApplyAssignmentAction(ctx context.Context, req dto.AssignmentActionRequest) error
}

// licenseLockKey serializes every change to the active register count.
const licenseLockKey = "cash-register-license"

// ValidRecordCode rejects codes carrying path separators or parent references.
func ValidRecordCode(code string) bool {
	return !strings.ContainsAny(code, `/\`) && !strings.Contains(code, "..")
}

func registerLockKey(code string) string { return "cash-register:" + code }

type cashRegisterService struct {
	store  *repository.Store
	locker infra.Locker
	cfg    *config.Config
}

func NewCashRegisterService(store *repository.Store, locker infra.Locker, cfg *config.Config) CashRegisterService {
	return &cashRegisterService{store: store, locker: locker, cfg: cfg}
}

// ── Create ────────────────────────────────────────────────────────────────────

func (s *cashRegisterService) Create(ctx context.Context, req dto.CreateCashRegisterRequest) (*dto.CashRegisterResponse, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, apperr.Validation("codigo y nombre son obligatorios")
	}
	if !ValidRecordCode(code) {
		return nil, apperr.Validation("el codigo no puede contener separadores de ruta")
	}
	wh, err := s.activeWarehouse(ctx, req.WarehouseCode)
	if err != nil {
		return nil, err
	}

	reg := &model.CashRegister{
		Code:                         code,
		Name:                         name,
		WarehouseID:                  wh.ID,
		AllowManualWarehouseOverride: req.AllowManualWarehouseOverride,
		IsActive:                     true,
		Notes:                        req.Notes,
	}
	if req.InvoiceSequenceCode != nil {
		def, err := s.invoiceSequence(ctx, *req.InvoiceSequenceCode)
		if err != nil {
			return nil, err
		}
		reg.InvoiceSequenceDefinitionID = &def.ID
	}
	if req.DefaultCustomerCode != nil {
		cust, err := s.defaultCustomer(ctx, *req.DefaultCustomerCode)
		if err != nil {
			return nil, err
		}
		reg.DefaultCustomerID = &cust.ID
	}

	release, err := s.lock(ctx, licenseLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkLicense(ctx); err != nil {
		return nil, err
	}
	if err := s.store.Registers.Create(ctx, reg); err != nil {
		if apperr.CodeOf(err) == apperr.CodeDuplicate {
			return nil, apperr.Conflict("Ya existe una caja con codigo %s", code).WithCode(apperr.CodeDuplicate)
		}
		return nil, err
	}
	log.Info().Str("code", reg.Code).Str("warehouse", wh.Code).Msg("cash register created")
	return toRegisterResponse(reg, wh), nil
}

// ── Update ────────────────────────────────────────────────────────────────────
// Runs under the register lock that open also takes, so a move cannot race a
// session being opened on the same register.

func (s *cashRegisterService) Update(ctx context.Context, code string, req dto.UpdateCashRegisterRequest) (*dto.CashRegisterResponse, error) {
	release, err := s.lock(ctx, registerLockKey(code))
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	before := *reg

	if req.Name.IsNull() {
		return nil, apperr.Validation("name no puede ser nulo")
	}
	if name, ok := req.Name.Get(); ok {
		if name = strings.TrimSpace(name); name == "" {
			return nil, apperr.Validation("name no puede estar vacio")
		}
		reg.Name = name
	}

	if req.AllowManualWarehouseOverride.IsNull() || req.IsActive.IsNull() || req.WarehouseCode.IsNull() {
		return nil, apperr.Validation("warehouse_code, allow_manual_warehouse_override e is_active no admiten null")
	}
	req.AllowManualWarehouseOverride.Apply(&reg.AllowManualWarehouseOverride)

	wh, err := s.warehouseByID(ctx, reg.WarehouseID)
	if err != nil {
		return nil, err
	}
	if whCode, ok := req.WarehouseCode.Get(); ok {
		target, err := s.activeWarehouse(ctx, whCode)
		if err != nil {
			return nil, err
		}
		if target.ID != before.WarehouseID {
			// The override flag in force before this patch decides.
			if !before.AllowManualWarehouseOverride {
				if err := s.ensureNoOpenSession(ctx, reg.ID, "No se puede cambiar el almacen de una caja con sesion abierta"); err != nil {
					return nil, err
				}
			}
			reg.WarehouseID = target.ID
			wh = target
			log.Info().Str("code", reg.Code).Str("warehouse", target.Code).Msg("cash register moved")
		}
	}

	if active, ok := req.IsActive.Get(); ok && active != before.IsActive {
		if !active {
			if err := s.ensureNoOpenSession(ctx, reg.ID, "No se puede desactivar una caja con sesion abierta"); err != nil {
				return nil, err
			}
		} else {
			relLicense, err := s.lock(ctx, licenseLockKey)
			if err != nil {
				return nil, err
			}
			defer relLicense()
			if err := s.checkLicense(ctx); err != nil {
				return nil, err
			}
		}
		reg.IsActive = active
	}

	req.Notes.ApplyPtr(&reg.Notes)

	switch {
	case req.DefaultCustomerCode.IsNull():
		reg.DefaultCustomerID = nil
	case req.DefaultCustomerCode.IsSet():
		custCode, _ := req.DefaultCustomerCode.Get()
		cust, err := s.defaultCustomer(ctx, custCode)
		if err != nil {
			return nil, err
		}
		reg.DefaultCustomerID = &cust.ID
	}

	switch {
	case req.InvoiceSequenceCode.IsNull():
		reg.InvoiceSequenceDefinitionID = nil
	case req.InvoiceSequenceCode.IsSet():
		seqCode, _ := req.InvoiceSequenceCode.Get()
		def, err := s.invoiceSequence(ctx, seqCode)
		if err != nil {
			return nil, err
		}
		reg.InvoiceSequenceDefinitionID = &def.ID
	}

	if err := s.store.Registers.Update(ctx, reg); err != nil {
		return nil, err
	}
	if reg, err = s.store.Registers.FindByID(ctx, reg.ID); err != nil {
		return nil, err
	}
	return toRegisterResponse(reg, wh), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *cashRegisterService) Get(ctx context.Context, code string) (*dto.CashRegisterResponse, error) {
	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	wh, err := s.warehouseByID(ctx, reg.WarehouseID)
	if err != nil {
		return nil, err
	}
	return toRegisterResponse(reg, wh), nil
}

func (s *cashRegisterService) List(ctx context.Context, includeInactive bool) ([]dto.CashRegisterResponse, error) {
	regs, err := s.store.Registers.List(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	return s.toResponses(ctx, regs)
}

// ── Assignments ───────────────────────────────────────────────────────────────

func (s *cashRegisterService) ListAssignments(ctx context.Context, adminIDs []uuid.UUID) ([]dto.AdminAssignments, error) {
	rows, err := s.store.Assignments.ListAssignments(ctx, adminIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.CashRegisterID)
	}
	regs, err := s.store.Registers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	codes := make(map[uuid.UUID]string, len(regs))
	for _, r := range regs {
		codes[r.ID] = r.Code
	}

	var out []dto.AdminAssignments
	index := map[uuid.UUID]int{}
	for _, a := range rows {
		i, ok := index[a.AdminUserID]
		if !ok {
			i = len(out)
			index[a.AdminUserID] = i
			out = append(out, dto.AdminAssignments{AdminUserID: a.AdminUserID.String(), Assignments: []dto.AssignmentItem{}})
		}
		out[i].Assignments = append(out[i].Assignments, dto.AssignmentItem{
			CashRegisterID:   a.CashRegisterID.String(),
			CashRegisterCode: codes[a.CashRegisterID],
			IsDefault:        a.IsDefault,
		})
	}
	return out, nil
}

func (s *cashRegisterService) Assign(ctx context.Context, adminID uuid.UUID, code string, makeDefault bool) error {
	if _, err := s.store.Admins.GetAdminDirectoryEntry(ctx, adminID); err != nil {
		return err
	}
	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if !reg.IsActive {
		return apperr.Conflict("La caja %s esta inactiva", reg.Code)
	}
	if err := s.store.Assignments.Assign(ctx, adminID, reg.ID, makeDefault); err != nil {
		return err
	}
	log.Info().Str("admin_user_id", adminID.String()).Str("code", reg.Code).Bool("default", makeDefault).Msg("cash register assigned")
	return nil
}

// Unassign never promotes another register to default.
func (s *cashRegisterService) Unassign(ctx context.Context, adminID uuid.UUID, code string) error {
	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.store.Assignments.Unassign(ctx, adminID, reg.ID); err != nil {
		return err
	}
	log.Info().Str("admin_user_id", adminID.String()).Str("code", reg.Code).Msg("cash register unassigned")
	return nil
}

func (s *cashRegisterService) SetDefault(ctx context.Context, adminID uuid.UUID, code string) error {
	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.store.Assignments.SetDefault(ctx, adminID, reg.ID); err != nil {
		return err
	}
	log.Info().Str("admin_user_id", adminID.String()).Str("code", reg.Code).Msg("default cash register changed")
	return nil
}

func (s *cashRegisterService) ApplyAssignmentAction(ctx context.Context, req dto.AssignmentActionRequest) error {
	adminID, err := uuid.Parse(req.AdminUserID)
	if err != nil {
		return apperr.Validation("admin_user_id invalido")
	}
	switch req.Action {
	case "assign":
		return s.Assign(ctx, adminID, req.CashRegisterCode, req.MakeDefault)
	case "unassign":
		return s.Unassign(ctx, adminID, req.CashRegisterCode)
	case "set_default":
		return s.SetDefault(ctx, adminID, req.CashRegisterCode)
	default:
		return apperr.Validation("accion invalida: %q", req.Action)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *cashRegisterService) lock(ctx context.Context, key string) (func(), error) {
	return obtainLock(ctx, s.locker, key, s.cfg.RegisterLockTTL)
}

// obtainLock returns the release func. A busy key is a CONFLICT.
func obtainLock(ctx context.Context, locker infra.Locker, key string, ttl time.Duration) (func(), error) {
	l, err := locker.Obtain(ctx, key, ttl)
	if errors.Is(err, infra.ErrLockNotObtained) {
		return nil, apperr.Conflict("Otra operacion sobre la caja esta en curso, reintente")
	}
	if err != nil {
		return nil, apperr.Storage(err, "No se pudo obtener el bloqueo de la caja")
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		}
	}, nil
}

func (s *cashRegisterService) checkLicense(ctx context.Context) error {
	if s.cfg.MaxActiveCashRegisters <= 0 {
		return nil
	}
	n, err := s.store.Registers.CountActive(ctx)
	if err != nil {
		return err
	}
	if n >= int64(s.cfg.MaxActiveCashRegisters) {
		return apperr.Conflict("Se alcanzo el limite de %d cajas activas de la licencia", s.cfg.MaxActiveCashRegisters).
			WithCode(apperr.CodeLimitExceeded)
	}
	return nil
}

func (s *cashRegisterService) ensureNoOpenSession(ctx context.Context, registerID uuid.UUID, msg string) error {
	_, err := s.store.Sessions.FindOpenByRegister(ctx, registerID)
	switch {
	case err == nil:
		return apperr.Conflict("%s", msg).WithCode(apperr.CodeRegisterLive)
	case apperr.IsKind(err, apperr.KindNotFound):
		return nil
	default:
		return err
	}
}

func (s *cashRegisterService) activeWarehouse(ctx context.Context, code string) (*model.Warehouse, error) {
	wh, err := s.store.Warehouses.GetWarehouseByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !wh.IsActive {
		return nil, apperr.Validation("El almacen %s esta inactivo", wh.Code)
	}
	return wh, nil
}

func (s *cashRegisterService) warehouseByID(ctx context.Context, id uuid.UUID) (*model.Warehouse, error) {
	wh, err := s.store.Warehouses.GetWarehouseByID(ctx, id)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return &model.Warehouse{ID: id}, nil
	}
	return wh, err
}

func (s *cashRegisterService) invoiceSequence(ctx context.Context, code string) (*model.SequenceDefinition, error) {
	def, err := s.store.Sequences.FindDefinitionByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if def.Scope != model.SequenceScopeInvoice {
		return nil, apperr.Validation("La secuencia %s no es de facturas", def.Code)
	}
	return def, nil
}

func (s *cashRegisterService) defaultCustomer(ctx context.Context, code string) (*model.Customer, error) {
	if !s.cfg.RetailMode {
		return nil, apperr.Validation("El cliente por defecto solo aplica en modo retail")
	}
	cust, err := s.store.Customers.GetCustomerByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !cust.IsActive {
		return nil, apperr.Validation("El cliente %s esta inactivo", cust.Code)
	}
	return cust, nil
}

func (s *cashRegisterService) toResponses(ctx context.Context, regs []model.CashRegister) ([]dto.CashRegisterResponse, error) {
	warehouses := map[uuid.UUID]*model.Warehouse{}
	out := make([]dto.CashRegisterResponse, 0, len(regs))
	for i := range regs {
		wh, ok := warehouses[regs[i].WarehouseID]
		if !ok {
			var err error
			if wh, err = s.warehouseByID(ctx, regs[i].WarehouseID); err != nil {
				return nil, err
			}
			warehouses[regs[i].WarehouseID] = wh
		}
		out = append(out, *toRegisterResponse(&regs[i], wh))
	}
	return out, nil
}

func toRegisterResponse(reg *model.CashRegister, wh *model.Warehouse) *dto.CashRegisterResponse {
	return &dto.CashRegisterResponse{
		ID:                           reg.ID.String(),
		Code:                         reg.Code,
		Name:                         reg.Name,
		WarehouseID:                  reg.WarehouseID.String(),
		WarehouseCode:                wh.Code,
		AllowManualWarehouseOverride: reg.AllowManualWarehouseOverride,
		IsActive:                     reg.IsActive,
		InvoiceSequenceDefinitionID:  uuidString(reg.InvoiceSequenceDefinitionID),
		DefaultCustomerID:            uuidString(reg.DefaultCustomerID),
		Notes:                        reg.Notes,
		CreatedAt:                    reg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                    reg.UpdatedAt.Format(time.RFC3339),
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
