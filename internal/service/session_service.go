package service

import (
	"context"
	"encoding/json"
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

// SessionService runs the OPEN → CLOSED | CANCELLED lifecycle of register shifts.
type SessionService interface {
	Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	Close(ctx context.Context, sessionID uuid.UUID, actor Actor, req dto.CloseSessionRequest) (*model.ClosureSummary, error)
	Cancel(ctx context.Context, sessionID uuid.UUID, actor Actor, req dto.CancelSessionRequest) (*dto.SessionResponse, error)
	// GetActiveSessionByAdmin returns nil without error when the admin has no OPEN session.
	GetActiveSessionByAdmin(ctx context.Context, adminID uuid.UUID) (*dto.SessionResponse, error)
	ListRecentSessions(ctx context.Context, adminID uuid.UUID, limit int) ([]dto.SessionResponse, error)
	ActiveOverview(ctx context.Context, actor Actor) (*dto.ActiveSessionResponse, error)
	// NextInvoiceNumber allocates from the sequence bound to the session at open.
	NextInvoiceNumber(ctx context.Context, sessionID uuid.UUID) (*dto.SequenceNumberResponse, error)
	PreviewInvoiceNumber(ctx context.Context, sessionID uuid.UUID) (*dto.SequenceNumberResponse, error)
}

// ClosureNotifier is told about every successful close. Failures are logged only.
type ClosureNotifier interface {
	NotifyClosure(ctx context.Context, sessionID uuid.UUID) error
}

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

func adminLockKey(id uuid.UUID) string { return "cash-register-admin:" + id.String() }

type sessionService struct {
	store     *repository.Store
	sequences SequenceService
	locker    infra.Locker
	cfg       *config.Config
	notifier  ClosureNotifier
}

// NewSessionService wires the lifecycle manager. notifier may be nil.
func NewSessionService(store *repository.Store, sequences SequenceService, locker infra.Locker, cfg *config.Config, notifier ClosureNotifier) SessionService {
	return &sessionService{store: store, sequences: sequences, locker: locker, cfg: cfg, notifier: notifier}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if req.OpeningAmount.IsNegative() {
		return nil, apperr.Validation("opening_amount no puede ser negativo")
	}
	code := strings.TrimSpace(req.CashRegisterCode)
	if code == "" {
		return nil, apperr.Validation("cash_register_code es obligatorio")
	}

	// Admin key first, register key second; Update only ever takes the latter.
	if s.cfg.SingleSessionPerAdmin {
		release, err := obtainLock(ctx, s.locker, adminLockKey(actor.AdminUserID), s.cfg.RegisterLockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	release, err := obtainLock(ctx, s.locker, registerLockKey(code), s.cfg.RegisterLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.store.Registers.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !reg.IsActive {
		return nil, apperr.Conflict("La caja %s esta inactiva", reg.Code)
	}
	if !actor.IsAdministrator() {
		if _, err := s.store.Assignments.FindAssignment(ctx, actor.AdminUserID, reg.ID); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Forbidden("La caja %s no esta asignada al usuario", reg.Code)
			}
			return nil, err
		}
	}

	session := &model.CashRegisterSession{
		CashRegisterID:              reg.ID,
		AdminUserID:                 actor.AdminUserID,
		OpeningAmount:               req.OpeningAmount.Round(2),
		OpeningAt:                   now(),
		OpeningNotes:                req.OpeningNotes,
		InvoiceSequenceDefinitionID: copyUUID(reg.InvoiceSequenceDefinitionID),
	}
	if err := s.store.Sessions.CreateOpen(ctx, session, s.cfg.SingleSessionPerAdmin); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("code", reg.Code).
		Str("admin_user_id", actor.AdminUserID.String()).
		Msg("cash register session opened")
	return toSessionResponse(session, reg), nil
}

// ── Close ─────────────────────────────────────────────────────────────────────

func (s *sessionService) Close(ctx context.Context, sessionID uuid.UUID, actor Actor, req dto.CloseSessionRequest) (*model.ClosureSummary, error) {
	reported := make([]model.ReportedPayment, 0, len(req.Payments))
	for _, p := range req.Payments {
		if strings.TrimSpace(p.Method) == "" {
			return nil, apperr.Validation("Cada pago declarado requiere un metodo")
		}
		if p.Amount.IsNegative() {
			return nil, apperr.Validation("El monto declarado para %s no puede ser negativo", NormalizeMethod(p.Method))
		}
		reported = append(reported, model.ReportedPayment{Method: p.Method, Amount: p.Amount})
	}
	if req.ClosingAmount != nil && req.ClosingAmount.IsNegative() {
		return nil, apperr.Validation("closing_amount no puede ser negativo")
	}

	sess, err := s.store.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, repository.ErrSessionNotOpen(sess.Status)
	}
	if sess.AdminUserID != actor.AdminUserID && !actor.CanOverride() {
		return nil, apperr.Forbidden("Solo quien abrio la sesion o un supervisor puede cerrarla")
	}
	reg, err := s.store.Registers.FindByID(ctx, sess.CashRegisterID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.Ledger.ListInvoicesForSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	summary := Reconcile(sess, reg, invoices, reported)
	closedAt := now()
	closingAmount := summary.ReportedTotalAmount
	if req.ClosingAmount != nil {
		closingAmount = req.ClosingAmount.Round(2)
	}
	closer := actor.AdminUserID
	summary.ClosingByAdminID = &closer
	summary.ClosingAmount = &closingAmount
	summary.ClosingAt = &closedAt
	summary.ClosingNotes = req.ClosingNotes

	snapshot, err := json.Marshal(summary)
	if err != nil {
		return nil, apperr.Storage(err, "No se pudo serializar el cierre")
	}
	// The guarded update decides races: a concurrent close or cancel that got
	// there first turns this into a CONFLICT and the snapshot is discarded.
	if _, err := s.store.Sessions.Close(ctx, sess.ID, model.SessionClosing{
		ClosingAdminUserID: closer,
		ClosingAmount:      closingAmount,
		ClosingAt:          closedAt,
		ClosingNotes:       req.ClosingNotes,
		TotalsSnapshot:     string(snapshot),
	}); err != nil {
		return nil, err
	}

	ev := log.Info()
	if !summary.DifferenceTotalAmount.IsZero() {
		ev = log.Warn()
	}
	ev.Str("session_id", sess.ID.String()).
		Str("code", reg.Code).
		Str("expected", summary.ExpectedTotalAmount.StringFixed(2)).
		Str("reported", summary.ReportedTotalAmount.StringFixed(2)).
		Str("difference", summary.DifferenceTotalAmount.StringFixed(2)).
		Msg("cash register session closed")

	if s.notifier != nil {
		if err := s.notifier.NotifyClosure(context.WithoutCancel(ctx), sess.ID); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("closure notification not queued")
		}
	}
	return &summary, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────
// No reconciliation is computed for a cancelled shift.

func (s *sessionService) Cancel(ctx context.Context, sessionID uuid.UUID, actor Actor, req dto.CancelSessionRequest) (*dto.SessionResponse, error) {
	sess, err := s.store.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, repository.ErrSessionNotOpen(sess.Status)
	}
	if sess.AdminUserID != actor.AdminUserID && !actor.CanOverride() {
		return nil, apperr.Forbidden("Solo quien abrio la sesion o un supervisor puede cancelarla")
	}
	cancelled, err := s.store.Sessions.Cancel(ctx, sess.ID, model.SessionCancellation{
		AdminUserID: actor.AdminUserID,
		At:          now(),
		Notes:       req.Notes,
	})
	if err != nil {
		return nil, err
	}
	reg, err := s.store.Registers.FindByID(ctx, cancelled.CashRegisterID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sess.ID.String()).Str("code", reg.Code).Msg("cash register session cancelled")
	return toSessionResponse(cancelled, reg), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *sessionService) GetActiveSessionByAdmin(ctx context.Context, adminID uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.store.Sessions.FindOpenByAdmin(ctx, adminID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	reg, err := s.store.Registers.FindByID(ctx, sess.CashRegisterID)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess, reg), nil
}

func (s *sessionService) ListRecentSessions(ctx context.Context, adminID uuid.UUID, limit int) ([]dto.SessionResponse, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := s.store.Sessions.ListRecentByAdmin(ctx, adminID, limit)
	if err != nil {
		return nil, err
	}
	return s.toSessionResponses(ctx, rows)
}

func (s *sessionService) ActiveOverview(ctx context.Context, actor Actor) (*dto.ActiveSessionResponse, error) {
	active, err := s.GetActiveSessionByAdmin(ctx, actor.AdminUserID)
	if err != nil {
		return nil, err
	}
	recent, err := s.ListRecentSessions(ctx, actor.AdminUserID, defaultRecentLimit)
	if err != nil {
		return nil, err
	}
	own, err := s.store.Assignments.ListAssignments(ctx, []uuid.UUID{actor.AdminUserID})
	if err != nil {
		return nil, err
	}

	resp := &dto.ActiveSessionResponse{
		ActiveSession:  active,
		CashRegisters:  []dto.CashRegisterResponse{},
		RecentSessions: recent,
	}
	var registers []model.CashRegister
	if actor.IsAdministrator() {
		registers, err = s.store.Registers.List(ctx, false)
	} else {
		ids := make([]uuid.UUID, 0, len(own))
		for _, a := range own {
			ids = append(ids, a.CashRegisterID)
		}
		registers, err = s.store.Registers.ListByIDs(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	for i := range registers {
		if !registers[i].IsActive {
			continue
		}
		wh, err := s.store.Warehouses.GetWarehouseByID(ctx, registers[i].WarehouseID)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
		if wh == nil {
			wh = &model.Warehouse{ID: registers[i].WarehouseID}
		}
		resp.CashRegisters = append(resp.CashRegisters, *toRegisterResponse(&registers[i], wh))
	}
	for _, a := range own {
		if a.IsDefault {
			resp.DefaultCashRegisterID = uuidString(&a.CashRegisterID)
		}
	}

	if !actor.IsAdministrator() {
		return resp, nil
	}

	all, err := s.store.Assignments.ListAssignments(ctx, nil)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	var adminIDs []uuid.UUID
	for _, a := range all {
		if !seen[a.AdminUserID] {
			seen[a.AdminUserID] = true
			adminIDs = append(adminIDs, a.AdminUserID)
		}
	}
	operators, err := s.store.Admins.ListAdminDirectoryEntries(ctx, adminIDs)
	if err != nil {
		return nil, err
	}
	resp.Operators = make([]dto.OperatorResponse, 0, len(operators))
	for _, u := range operators {
		resp.Operators = append(resp.Operators, dto.OperatorResponse{
			AdminUserID: u.ID.String(),
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Role:        u.Role,
		})
	}
	open, err := s.store.Sessions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Overview, err = s.toSessionResponses(ctx, open); err != nil {
		return nil, err
	}
	return resp, nil
}

// ── Invoice numbering ─────────────────────────────────────────────────────────
// No fallback numbering: without a binding the invoice cannot be issued.

func (s *sessionService) NextInvoiceNumber(ctx context.Context, sessionID uuid.UUID) (*dto.SequenceNumberResponse, error) {
	sess, err := s.invoicingSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.sequences.AllocateFormatted(ctx, *sess.InvoiceSequenceDefinitionID,
		model.CounterScopeCashRegister, sess.CashRegisterID.String())
}

func (s *sessionService) PreviewInvoiceNumber(ctx context.Context, sessionID uuid.UUID) (*dto.SequenceNumberResponse, error) {
	sess, err := s.invoicingSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.sequences.NextPreview(ctx, *sess.InvoiceSequenceDefinitionID,
		model.CounterScopeCashRegister, sess.CashRegisterID.String())
}

func (s *sessionService) invoicingSession(ctx context.Context, sessionID uuid.UUID) (*model.CashRegisterSession, error) {
	sess, err := s.store.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, repository.ErrSessionNotOpen(sess.Status)
	}
	if sess.InvoiceSequenceDefinitionID == nil {
		return nil, apperr.Conflict("La caja no tiene una secuencia de facturas asignada").
			WithCode(apperr.CodeNoSequenceBinding)
	}
	return sess, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// now is truncated to the precision postgres keeps, so a value read back
// equals the one written.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

func (s *sessionService) toSessionResponses(ctx context.Context, rows []model.CashRegisterSession) ([]dto.SessionResponse, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CashRegisterID)
	}
	regs, err := s.store.Registers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.CashRegister, len(regs))
	for i := range regs {
		byID[regs[i].ID] = &regs[i]
	}
	out := make([]dto.SessionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *toSessionResponse(&rows[i], byID[rows[i].CashRegisterID]))
	}
	return out, nil
}

func toSessionResponse(sess *model.CashRegisterSession, reg *model.CashRegister) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:                 sess.ID.String(),
		CashRegisterID:     sess.CashRegisterID.String(),
		AdminUserID:        sess.AdminUserID.String(),
		Status:             string(sess.Status),
		OpeningAmount:      sess.OpeningAmount,
		OpeningAt:          sess.OpeningAt.Format(time.RFC3339),
		OpeningNotes:       sess.OpeningNotes,
		ClosingAdminUserID: uuidString(sess.ClosingAdminUserID),
		ClosingAmount:      sess.ClosingAmount,
		ClosingNotes:       sess.ClosingNotes,
	}
	if reg != nil {
		resp.CashRegisterCode = reg.Code
		resp.CashRegisterName = reg.Name
	}
	if sess.ClosingAt != nil {
		t := sess.ClosingAt.Format(time.RFC3339)
		resp.ClosingAt = &t
	}
	return resp
}
