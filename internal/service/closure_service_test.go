package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/config"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/model"
	"systeminvoice/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedShift opens CAJA-01 as the cajero, books two invoices and closes it.
func closedShift(t *testing.T, f *fixture) (uuid.UUID, model.LedgerInvoice) {
	t.Helper()
	require.NoError(t, f.registers.Assign(context.Background(), f.cajero.ID, "CAJA-01", true))
	sess := f.open(t, f.cajero, "CAJA-01", "100")
	id := uuid.MustParse(sess.ID)

	cash := invoice("ISSUED", pay("CASH", "130"))
	f.mem.AddInvoice(id, cash)
	f.mem.AddInvoice(id, invoice("ISSUED", pay("CARD", "90")))
	f.close(t, f.cajero, sess.ID, declared("CASH", "100"), declared("CARD", "100"))
	return id, cash
}

// ── Preview ─────────────────────────────────────────────────────────────────

func TestPreview_OpenSessionIsLive(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)
	ctx := context.Background()

	f.mem.AddInvoice(id, invoice("ISSUED", pay("CASH", "40")))
	p1, err := f.closures.Preview(ctx, id, actorOf(f.admin))
	require.NoError(t, err)
	assertMoney(t, "40", p1.ExpectedTotalAmount)
	assertMoney(t, "0", p1.ReportedTotalAmount)
	assert.Nil(t, p1.ClosingAt)

	f.mem.AddInvoice(id, invoice("ISSUED", pay("CASH", "10")))
	p2, err := f.closures.Preview(ctx, id, actorOf(f.admin))
	require.NoError(t, err)
	assertMoney(t, "50", p2.ExpectedTotalAmount)

	got, err := f.sessions.GetActiveSessionByAdmin(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.SessionOpen), got.Status, "preview never finalizes")
}

func TestPreview_ClosedAndCancelled(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	closedID, _ := closedShift(t, f)

	p, err := f.closures.Preview(ctx, closedID, actorOf(f.cajero))
	require.NoError(t, err)
	assertMoney(t, "100", *p.ClosingAmount)
	assertMoney(t, "-20", p.DifferenceTotalAmount)

	sess := f.open(t, f.cajero, "CAJA-01", "0")
	cancelID := uuid.MustParse(sess.ID)
	_, err = f.sessions.Cancel(ctx, cancelID, actorOf(f.cajero), dto.CancelSessionRequest{})
	require.NoError(t, err)

	_, err = f.closures.Preview(ctx, cancelID, actorOf(f.cajero))
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))
	me := actorOf(f.cajero)
	_, err = f.closures.Report(ctx, cancelID, service.ReportAccess{Actor: &me})
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))

	_, err = f.closures.Preview(ctx, uuid.New(), actorOf(f.admin))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

// ── Report ──────────────────────────────────────────────────────────────────

func TestReport_FrozenAfterLedgerChanges(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	id, cash := closedShift(t, f)
	access := service.ReportAccess{Actor: &service.Actor{AdminUserID: f.cajero.ID, Role: service.RoleCajero}}

	before, err := f.closures.Report(ctx, id, access)
	require.NoError(t, err)

	f.mem.SetInvoiceStatus(id, cash.ID, model.InvoiceStatusCancelled)
	f.mem.AddInvoice(id, invoice("ISSUED", pay("CASH", "999")))

	after, err := f.closures.Report(ctx, id, access)
	require.NoError(t, err)
	assert.Equal(t, before.ExpectedTotalAmount.String(), after.ExpectedTotalAmount.String())
	assert.Equal(t, 2, after.TotalInvoices)
	assertMoney(t, "220", after.ExpectedTotalAmount)
	assert.Equal(t, "CAJA-01", after.CashRegister.Code)
}

func TestReport_OpenSessionConflict(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.closures.Report(context.Background(), uuid.MustParse(sess.ID), service.ReportAccess{Actor: &service.Actor{AdminUserID: f.admin.ID, Role: service.RoleAdministrador}})
	assert.Equal(t, apperr.CodeSessionOpen, apperr.CodeOf(err))
}

func TestReport_Authorization(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	id, _ := closedShift(t, f)
	stranger := f.mem.PutAdmin(model.AdminUser{Username: "otro", Role: service.RoleCajero, IsActive: true})

	sup := actorOf(f.supervisor)
	_, err := f.closures.Report(ctx, id, service.ReportAccess{Actor: &sup})
	assert.NoError(t, err)

	other := actorOf(stranger)
	_, err = f.closures.Report(ctx, id, service.ReportAccess{Actor: &other})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = f.closures.Report(ctx, id, service.ReportAccess{})
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
}

func TestExport_Formats(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	id, _ := closedShift(t, f)
	me := actorOf(f.cajero)
	access := service.ReportAccess{Actor: &me}

	csvDoc, err := f.closures.Export(ctx, id, "csv", access)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", csvDoc.ContentType)
	assert.True(t, strings.HasSuffix(csvDoc.Filename, ".csv"))
	assert.Contains(t, string(csvDoc.Body), "Abierta por,Carlos Cajero")
	assert.Contains(t, string(csvDoc.Body), "CASH,130.00,100.00,-30.00,1")

	pdfDoc, err := f.closures.Export(ctx, id, "pdf", access)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfDoc.Body), "%PDF"))

	_, err = f.closures.Export(ctx, id, "docx", access)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDocument_SkipsAccessChecks(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	id, _ := closedShift(t, f)

	doc, err := f.closures.Document(context.Background(), id, "html")
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "Cierre de caja CAJA-01")
}

// ── Report tokens ───────────────────────────────────────────────────────────

func TestReportToken_Scopes(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	id, _ := closedShift(t, f)

	adminTok, err := f.closures.IssueReportToken(ctx, id, actorOf(f.admin))
	require.NoError(t, err)
	assert.Equal(t, service.ScopeAdmin, adminTok.Scope)
	exp, err := time.Parse(time.RFC3339, adminTok.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)

	selfTok, err := f.closures.IssueReportToken(ctx, id, actorOf(f.cajero))
	require.NoError(t, err)
	assert.Equal(t, service.ScopeSelf, selfTok.Scope)

	for _, raw := range []string{adminTok.Token, selfTok.Token} {
		claims, err := f.closures.VerifyReportToken(raw)
		require.NoError(t, err)
		assert.Equal(t, id.String(), claims.SessionID)
		_, err = f.closures.Report(ctx, id, service.ReportAccess{Token: claims})
		assert.NoError(t, err)
	}
}

func TestReportToken_BoundToSession(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	f.createRegister(t, "CAJA-02", false)
	ctx := context.Background()
	id, _ := closedShift(t, f)

	other := f.open(t, f.admin, "CAJA-02", "0")
	f.close(t, f.admin, other.ID)

	tok, err := f.closures.IssueReportToken(ctx, id, actorOf(f.admin))
	require.NoError(t, err)
	claims, err := f.closures.VerifyReportToken(tok.Token)
	require.NoError(t, err)

	_, err = f.closures.Report(ctx, uuid.MustParse(other.ID), service.ReportAccess{Token: claims})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestReportToken_SelfScopeLimitedToOpenerOrCloser(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	id, _ := closedShift(t, f)

	claims := &service.ReportTokenClaims{SessionID: id.String(), AdminUserID: uuid.NewString(), Scope: service.ScopeSelf}
	_, err := f.closures.Report(context.Background(), id, service.ReportAccess{Token: claims})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestReportToken_Rejected(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.ReportTokenTTL = -time.Minute })
	f.createRegister(t, "CAJA-01", false)
	ctx := context.Background()
	id, _ := closedShift(t, f)

	expired, err := f.closures.IssueReportToken(ctx, id, actorOf(f.admin))
	require.NoError(t, err)
	_, err = f.closures.VerifyReportToken(expired.Token)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.ReportTokenClaims{
		SessionID: id.String(), Scope: service.ScopeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("someone-else"))
	require.NoError(t, err)
	_, err = f.closures.VerifyReportToken(forged)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	badScope, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.ReportTokenClaims{
		SessionID: id.String(), Scope: "root",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(f.cfg.ReportTokenSecret))
	require.NoError(t, err)
	_, err = f.closures.VerifyReportToken(badScope)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
}

func TestReportToken_RequiresClosedSession(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.closures.IssueReportToken(context.Background(), uuid.MustParse(sess.ID), actorOf(f.admin))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}
