package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/config"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/model"
	"systeminvoice/internal/report"
	"systeminvoice/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Report token scopes.
const (
	ScopeAdmin = "admin"
	ScopeSelf  = "self"
)

// ReportTokenClaims grant read access to one closure report until expiry.
// ScopeSelf limits it to the session's opener or closer.
type ReportTokenClaims struct {
	SessionID   string `json:"session_id"`
	AdminUserID string `json:"admin_user_id"`
	Scope       string `json:"scope"`
	jwt.RegisteredClaims
}

// ReportAccess is how a report request authenticated: a bearer Actor or a
// scoped report token. At least one must be set.
type ReportAccess struct {
	Actor *Actor
	Token *ReportTokenClaims
}

// ClosureService serves reconciliation previews and the persisted closure reports.
type ClosureService interface {
	// Preview reconciles an OPEN session against an empty declaration without
	// finalizing it. For CLOSED sessions it returns the stored snapshot.
	Preview(ctx context.Context, sessionID uuid.UUID, actor Actor) (*model.ClosureSummary, error)
	// Report returns the snapshot cached at close. The ledger is never re-read.
	Report(ctx context.Context, sessionID uuid.UUID, access ReportAccess) (*model.ClosureSummary, error)
	Export(ctx context.Context, sessionID uuid.UUID, format string, access ReportAccess) (*report.Document, error)
	// Document renders a CLOSED session's report without access checks, for
	// internal consumers such as the mail worker.
	Document(ctx context.Context, sessionID uuid.UUID, format string) (*report.Document, error)
	IssueReportToken(ctx context.Context, sessionID uuid.UUID, actor Actor) (*dto.ReportTokenResponse, error)
	VerifyReportToken(raw string) (*ReportTokenClaims, error)
}

type closureService struct {
	store *repository.Store
	cfg   *config.Config
}

func NewClosureService(store *repository.Store, cfg *config.Config) ClosureService {
	return &closureService{store: store, cfg: cfg}
}

// ── Preview ───────────────────────────────────────────────────────────────────

func (s *closureService) Preview(ctx context.Context, sessionID uuid.UUID, actor Actor) (*model.ClosureSummary, error) {
	sess, err := s.store.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, ReportAccess{Actor: &actor}); err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SessionClosed:
		return decodeSnapshot(sess)
	case model.SessionCancelled:
		return nil, repository.ErrSessionNotOpen(sess.Status)
	}
	reg, err := s.store.Registers.FindByID(ctx, sess.CashRegisterID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.Ledger.ListInvoicesForSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	summary := Reconcile(sess, reg, invoices, nil)
	return &summary, nil
}

// ── Report ────────────────────────────────────────────────────────────────────

func (s *closureService) Report(ctx context.Context, sessionID uuid.UUID, access ReportAccess) (*model.ClosureSummary, error) {
	sess, err := s.closedSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, access); err != nil {
		return nil, err
	}
	return decodeSnapshot(sess)
}

func (s *closureService) Export(ctx context.Context, sessionID uuid.UUID, format string, access ReportAccess) (*report.Document, error) {
	if !report.SupportedFormat(format) {
		return nil, apperr.Validation("Formato de reporte no soportado: %q", format)
	}
	summary, err := s.Report(ctx, sessionID, access)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, summary, format)
}

func (s *closureService) Document(ctx context.Context, sessionID uuid.UUID, format string) (*report.Document, error) {
	if !report.SupportedFormat(format) {
		return nil, apperr.Validation("Formato de reporte no soportado: %q", format)
	}
	sess, err := s.closedSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := decodeSnapshot(sess)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, summary, format)
}

func (s *closureService) render(ctx context.Context, summary *model.ClosureSummary, format string) (*report.Document, error) {
	names := report.Names{OpenedBy: s.displayName(ctx, &summary.OpenedByAdminID)}
	names.ClosedBy = s.displayName(ctx, summary.ClosingByAdminID)
	doc, err := report.Render(format, summary, names)
	if err != nil {
		return nil, apperr.Storage(err, "No se pudo generar el reporte")
	}
	return doc, nil
}

// displayName is best-effort: directory misses fall back to the raw id.
func (s *closureService) displayName(ctx context.Context, id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	u, err := s.store.Admins.GetAdminDirectoryEntry(ctx, *id)
	if err != nil {
		return ""
	}
	if u.DisplayName == "" {
		return u.Username
	}
	return u.DisplayName
}

func (s *closureService) closedSession(ctx context.Context, sessionID uuid.UUID) (*model.CashRegisterSession, error) {
	sess, err := s.store.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SessionClosed:
		return sess, nil
	case model.SessionCancelled:
		return nil, apperr.Conflict("La sesion %s fue anulada", sess.ID).WithCode(apperr.CodeSessionNotOpen)
	default:
		return nil, apperr.Conflict("La sesion %s no esta cerrada", sess.ID).WithCode(apperr.CodeSessionOpen)
	}
}

func decodeSnapshot(sess *model.CashRegisterSession) (*model.ClosureSummary, error) {
	if sess.TotalsSnapshot == nil {
		return nil, apperr.Storage(errors.New("missing totals snapshot"), "La sesion cerrada no tiene resumen")
	}
	var summary model.ClosureSummary
	if err := json.Unmarshal([]byte(*sess.TotalsSnapshot), &summary); err != nil {
		return nil, apperr.Storage(err, "Resumen de cierre ilegible")
	}
	return &summary, nil
}

// ── Access ────────────────────────────────────────────────────────────────────

func authorize(sess *model.CashRegisterSession, access ReportAccess) error {
	involved := func(id uuid.UUID) bool {
		return id == sess.AdminUserID || (sess.ClosingAdminUserID != nil && id == *sess.ClosingAdminUserID)
	}
	switch {
	case access.Token != nil:
		if access.Token.SessionID != sess.ID.String() {
			return apperr.Forbidden("El token no corresponde a esta sesion")
		}
		if access.Token.Scope == ScopeAdmin {
			return nil
		}
		id, err := uuid.Parse(access.Token.AdminUserID)
		if err != nil || !involved(id) {
			return apperr.Forbidden("El token no permite ver este reporte")
		}
		return nil
	case access.Actor != nil:
		if access.Actor.CanOverride() || involved(access.Actor.AdminUserID) {
			return nil
		}
		return apperr.Forbidden("Permisos insuficientes para ver este reporte")
	default:
		return apperr.Unauthenticated("Autenticacion requerida")
	}
}

// ── Report tokens ─────────────────────────────────────────────────────────────

func (s *closureService) IssueReportToken(ctx context.Context, sessionID uuid.UUID, actor Actor) (*dto.ReportTokenResponse, error) {
	sess, err := s.closedSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, ReportAccess{Actor: &actor}); err != nil {
		return nil, err
	}
	scope := ScopeSelf
	if actor.IsAdministrator() {
		scope = ScopeAdmin
	}
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(s.cfg.ReportTokenTTL)
	claims := &ReportTokenClaims{
		SessionID:   sess.ID.String(),
		AdminUserID: actor.AdminUserID.String(),
		Scope:       scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.AdminUserID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.ReportTokenSecret))
	if err != nil {
		return nil, apperr.Storage(err, "No se pudo firmar el token")
	}
	return &dto.ReportTokenResponse{Token: signed, Scope: scope, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil
}

func (s *closureService) VerifyReportToken(raw string) (*ReportTokenClaims, error) {
	claims := &ReportTokenClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.ReportTokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthenticated("Token de reporte invalido o expirado")
	}
	if claims.Scope != ScopeAdmin && claims.Scope != ScopeSelf {
		return nil, apperr.Unauthenticated("Token de reporte invalido o expirado")
	}
	return claims, nil
}
