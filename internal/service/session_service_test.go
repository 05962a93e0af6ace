package service_test

import (
	"context"
	"sync"
	"testing"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/config"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Open ────────────────────────────────────────────────────────────────────

func TestOpen_Success(t *testing.T) {
	f := newFixture(t)
	reg := f.createRegister(t, "CAJA-01", true)

	sess := f.open(t, f.admin, "CAJA-01", "1500.5")

	assert.Equal(t, string(model.SessionOpen), sess.Status)
	assert.Equal(t, reg.ID, sess.CashRegisterID)
	assert.Equal(t, "CAJA-01", sess.CashRegisterCode)
	assertMoney(t, "1500.50", sess.OpeningAmount)

	active, err := f.sessions.GetActiveSessionByAdmin(context.Background(), f.admin.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, sess.ID, active.ID)
}

func TestOpen_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Open(ctx, actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: "NOPE", OpeningAmount: dec("-1")})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "amount is checked before the register lookup")

	_, err = f.sessions.Open(ctx, actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: "  "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.sessions.Open(ctx, actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: "NOPE"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestOpen_InactiveRegister(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	_, err := f.registers.Update(context.Background(), "CAJA-01", dto.UpdateCashRegisterRequest{IsActive: ofBool(false)})
	require.NoError(t, err)

	_, err = f.sessions.Open(context.Background(), actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: "CAJA-01"})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestOpen_CajeroRequiresAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createRegister(t, "CAJA-01", false)

	_, err := f.sessions.Open(ctx, actorOf(f.cajero), dto.OpenSessionRequest{CashRegisterCode: "CAJA-01"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	require.NoError(t, f.registers.Assign(ctx, f.cajero.ID, "CAJA-01", true))
	sess := f.open(t, f.cajero, "CAJA-01", "0")
	assert.Equal(t, f.cajero.ID.String(), sess.AdminUserID)
}

func TestOpen_RegisterAlreadyOpen(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.sessions.Open(context.Background(), actorOf(f.supervisor), dto.OpenSessionRequest{CashRegisterCode: "CAJA-01"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSessionOpen, apperr.CodeOf(err))
}

func TestOpen_ConcurrentSameRegister(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)

	openers := []model.AdminUser{f.admin, f.supervisor}
	for i := 0; i < 6; i++ {
		openers = append(openers, f.mem.PutAdmin(model.AdminUser{Username: uuid.NewString(), Role: "administrador", IsActive: true}))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, u := range openers {
		wg.Add(1)
		go func(u model.AdminUser) {
			defer wg.Done()
			_, err := f.sessions.Open(context.Background(), actorOf(u), dto.OpenSessionRequest{CashRegisterCode: "CAJA-01"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsKind(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(openers)-1, conflicts)
}

func TestOpen_ConcurrentSameAdminTwoRegisters(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	f.createRegister(t, "CAJA-02", false)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, code := range []string{"CAJA-01", "CAJA-02", "CAJA-01", "CAJA-02"} {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := f.sessions.Open(context.Background(), actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: code})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsKind(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(code)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, conflicts)
	live, err := f.mem.Repositories().Sessions.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestOpen_SingleSessionPerAdmin(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	f.createRegister(t, "CAJA-02", false)
	f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.sessions.Open(context.Background(), actorOf(f.admin), dto.OpenSessionRequest{CashRegisterCode: "CAJA-02"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSessionOpen, apperr.CodeOf(err))
}

func TestOpen_MultipleSessionsPerAdminWhenAllowed(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.SingleSessionPerAdmin = false })
	f.createRegister(t, "CAJA-01", false)
	f.createRegister(t, "CAJA-02", false)

	f.open(t, f.admin, "CAJA-01", "0")
	f.open(t, f.admin, "CAJA-02", "0")
}

// ── Close ───────────────────────────────────────────────────────────────────

func TestClose_ReconcilesAndPersistsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "200")
	sessionID := uuid.MustParse(sess.ID)

	f.mem.AddInvoice(sessionID, invoice("ISSUED", pay("CASH", "130")))
	f.mem.AddInvoice(sessionID, invoice("ISSUED", pay("CARD", "90")))

	summary := f.close(t, f.admin, sess.ID, declared("cash", "100"), declared("CARD", "100"))

	assertMoney(t, "-30", lineFor(t, *summary, "CASH").DifferenceAmount)
	assertMoney(t, "10", lineFor(t, *summary, "CARD").DifferenceAmount)
	assertMoney(t, "-20", summary.DifferenceTotalAmount)
	require.NotNil(t, summary.ClosingAmount)
	assertMoney(t, "200", *summary.ClosingAmount, "defaults to the reported total")
	require.NotNil(t, summary.ClosingByAdminID)
	assert.Equal(t, f.admin.ID, *summary.ClosingByAdminID)

	active, err := f.sessions.GetActiveSessionByAdmin(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	assert.Equal(t, []uuid.UUID{sessionID}, f.notifier.notified())
}

func TestClose_ExplicitClosingAmount(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")

	amount := dec("123.456")
	summary, err := f.sessions.Close(context.Background(), uuid.MustParse(sess.ID), actorOf(f.admin), dto.CloseSessionRequest{
		ClosingAmount: &amount,
		ClosingNotes:  strPtr("faltan monedas"),
	})
	require.NoError(t, err)
	assertMoney(t, "123.46", *summary.ClosingAmount)
	assert.Equal(t, "faltan monedas", *summary.ClosingNotes)
}

func TestClose_Validation(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)
	ctx := context.Background()

	_, err := f.sessions.Close(ctx, id, actorOf(f.admin), dto.CloseSessionRequest{Payments: []dto.ReportedPaymentRequest{declared("CASH", "-1")}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.sessions.Close(ctx, id, actorOf(f.admin), dto.CloseSessionRequest{Payments: []dto.ReportedPaymentRequest{declared(" ", "1")}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	neg := dec("-5")
	_, err = f.sessions.Close(ctx, id, actorOf(f.admin), dto.CloseSessionRequest{ClosingAmount: &neg})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.sessions.Close(ctx, uuid.New(), actorOf(f.admin), dto.CloseSessionRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestClose_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createRegister(t, "CAJA-01", false)
	require.NoError(t, f.registers.Assign(ctx, f.cajero.ID, "CAJA-01", true))
	other := f.mem.PutAdmin(model.AdminUser{Username: "otro", Role: "cajero", IsActive: true})

	sess := f.open(t, f.cajero, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)

	_, err := f.sessions.Close(ctx, id, actorOf(other), dto.CloseSessionRequest{})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	summary := f.close(t, f.supervisor, sess.ID)
	assert.Equal(t, f.supervisor.ID, *summary.ClosingByAdminID)
	assert.Equal(t, f.cajero.ID, summary.OpenedByAdminID)
}

func TestClose_Twice(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	f.close(t, f.admin, sess.ID)

	_, err := f.sessions.Close(context.Background(), uuid.MustParse(sess.ID), actorOf(f.admin), dto.CloseSessionRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))
	assert.Len(t, f.notifier.notified(), 1)
}

func TestClose_ConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sessions.Close(context.Background(), id, actorOf(f.admin), dto.CloseSessionRequest{})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, apperr.IsKind(err, apperr.KindConflict))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestClose_RegisterReusableAfterClose(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	first := f.open(t, f.admin, "CAJA-01", "0")
	f.close(t, f.admin, first.ID)

	second := f.open(t, f.admin, "CAJA-01", "50")
	assert.NotEqual(t, first.ID, second.ID)
}

// ── Cancel ──────────────────────────────────────────────────────────────────

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)
	ctx := context.Background()

	out, err := f.sessions.Cancel(ctx, id, actorOf(f.admin), dto.CancelSessionRequest{Notes: strPtr("apertura por error")})
	require.NoError(t, err)
	assert.Equal(t, string(model.SessionCancelled), out.Status)
	assert.Nil(t, out.ClosingAmount)
	assert.Empty(t, f.notifier.notified(), "cancel does not notify")

	_, err = f.sessions.Cancel(ctx, id, actorOf(f.admin), dto.CancelSessionRequest{})
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))

	_, err = f.sessions.Close(ctx, id, actorOf(f.admin), dto.CloseSessionRequest{})
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))
}

func TestCancel_ForbiddenForOtherCajero(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.sessions.Cancel(context.Background(), uuid.MustParse(sess.ID), actorOf(f.cajero), dto.CancelSessionRequest{})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

// ── Reads ───────────────────────────────────────────────────────────────────

func TestListRecentSessions(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	for i := 0; i < 3; i++ {
		s := f.open(t, f.admin, "CAJA-01", "0")
		f.close(t, f.admin, s.ID)
	}

	all, err := f.sessions.ListRecentSessions(context.Background(), f.admin.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := f.sessions.ListRecentSessions(context.Background(), f.admin.ID, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
	assert.Equal(t, "CAJA-01", two[0].CashRegisterCode)
}

func TestActiveOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createRegister(t, "CAJA-01", false)
	f.createRegister(t, "CAJA-02", false)
	require.NoError(t, f.registers.Assign(ctx, f.cajero.ID, "CAJA-02", true))
	f.open(t, f.cajero, "CAJA-02", "0")

	mine, err := f.sessions.ActiveOverview(ctx, actorOf(f.cajero))
	require.NoError(t, err)
	require.NotNil(t, mine.ActiveSession)
	require.Len(t, mine.CashRegisters, 1)
	assert.Equal(t, "CAJA-02", mine.CashRegisters[0].Code)
	require.NotNil(t, mine.DefaultCashRegisterID)
	assert.Equal(t, mine.CashRegisters[0].ID, *mine.DefaultCashRegisterID)
	assert.Nil(t, mine.Operators)
	assert.Nil(t, mine.Overview)

	all, err := f.sessions.ActiveOverview(ctx, actorOf(f.admin))
	require.NoError(t, err)
	assert.Nil(t, all.ActiveSession)
	assert.Len(t, all.CashRegisters, 2)
	require.Len(t, all.Operators, 1)
	assert.Equal(t, "cajero", all.Operators[0].Username)
	require.Len(t, all.Overview, 1)
	assert.Equal(t, "CAJA-02", all.Overview[0].CashRegisterCode)
}

// ── Invoice numbering ───────────────────────────────────────────────────────

func TestNextInvoiceNumber_UsesBindingFromOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createRegister(t, "CAJA-01", true)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	id := uuid.MustParse(sess.ID)

	preview, err := f.sessions.PreviewInvoiceNumber(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A-00000001", preview.Formatted)

	// Rebinding the register mid-shift must not affect the open session.
	other, err := f.sequences.CreateDefinition(ctx, dto.CreateSequenceRequest{Code: "FAC-B", Scope: "INVOICE", Prefix: "B-"})
	require.NoError(t, err)
	_, err = f.registers.Update(ctx, "CAJA-01", dto.UpdateCashRegisterRequest{InvoiceSequenceCode: ofString(other.Code)})
	require.NoError(t, err)

	first, err := f.sessions.NextInvoiceNumber(ctx, id)
	require.NoError(t, err)
	second, err := f.sessions.NextInvoiceNumber(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "A-00000001", first.Formatted)
	assert.Equal(t, "A-00000002", second.Formatted)
	assert.Equal(t, "FAC-A", second.DefinitionCode)
}

func TestNextInvoiceNumber_NoBinding(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", false)
	sess := f.open(t, f.admin, "CAJA-01", "0")

	_, err := f.sessions.NextInvoiceNumber(context.Background(), uuid.MustParse(sess.ID))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNoSequenceBinding, apperr.CodeOf(err))
}

func TestNextInvoiceNumber_ClosedSession(t *testing.T) {
	f := newFixture(t)
	f.createRegister(t, "CAJA-01", true)
	sess := f.open(t, f.admin, "CAJA-01", "0")
	f.close(t, f.admin, sess.ID)

	_, err := f.sessions.NextInvoiceNumber(context.Background(), uuid.MustParse(sess.ID))
	assert.Equal(t, apperr.CodeSessionNotOpen, apperr.CodeOf(err))
}
