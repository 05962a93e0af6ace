package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"systeminvoice/internal/config"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/model"
	"systeminvoice/internal/optional"
	"systeminvoice/internal/repository/memory"
	"systeminvoice/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures closure notifications.
type recordingNotifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (n *recordingNotifier) NotifyClosure(_ context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return nil
}

func (n *recordingNotifier) notified() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.ids...)
}

type fixture struct {
	mem       *memory.Store
	cfg       *config.Config
	sequences service.SequenceService
	registers service.CashRegisterService
	sessions  service.SessionService
	closures  service.ClosureService
	notifier  *recordingNotifier

	warehouse  model.Warehouse
	admin      model.AdminUser
	supervisor model.AdminUser
	cajero     model.AdminUser
	invoiceSeq *model.SequenceDefinition
}

func newFixture(t *testing.T, tweaks ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{
		RegisterLockTTL:       2 * time.Second,
		SingleSessionPerAdmin: true,
		ReportTokenSecret:     "test-report-secret",
		ReportTokenTTL:        15 * time.Minute,
	}
	for _, tw := range tweaks {
		tw(cfg)
	}

	mem := memory.New()
	store := mem.Repositories()
	locker := infra.NewLocalLocker()
	notifier := &recordingNotifier{}
	seqs := service.NewSequenceService(store.Sequences)

	f := &fixture{
		mem:       mem,
		cfg:       cfg,
		sequences: seqs,
		registers: service.NewCashRegisterService(store, locker, cfg),
		sessions:  service.NewSessionService(store, seqs, locker, cfg, notifier),
		closures:  service.NewClosureService(store, cfg),
		notifier:  notifier,
	}
	f.warehouse = mem.PutWarehouse(model.Warehouse{Code: "DEP-01", Name: "Deposito central", IsActive: true})
	f.admin = mem.PutAdmin(model.AdminUser{Username: "admin", DisplayName: "Admin General", Role: service.RoleAdministrador, IsActive: true})
	f.supervisor = mem.PutAdmin(model.AdminUser{Username: "super", DisplayName: "Sofia Supervisora", Role: service.RoleSupervisor, IsActive: true})
	f.cajero = mem.PutAdmin(model.AdminUser{Username: "cajero", DisplayName: "Carlos Cajero", Role: service.RoleCajero, IsActive: true})

	def, err := seqs.CreateDefinition(context.Background(), dto.CreateSequenceRequest{
		Code: "FAC-A", Scope: "INVOICE", Prefix: "A-", Padding: 8,
	})
	require.NoError(t, err)
	f.invoiceSeq = def
	return f
}

func actorOf(u model.AdminUser) service.Actor {
	return service.Actor{AdminUserID: u.ID, Role: u.Role}
}

func strPtr(s string) *string { return &s }

func ofString(s string) optional.Field[string] { return optional.Of(s) }

func ofBool(b bool) optional.Field[bool] { return optional.Of(b) }

func (f *fixture) createRegister(t *testing.T, code string, withSequence bool) *dto.CashRegisterResponse {
	t.Helper()
	req := dto.CreateCashRegisterRequest{Code: code, Name: "Caja " + code, WarehouseCode: f.warehouse.Code}
	if withSequence {
		req.InvoiceSequenceCode = strPtr(f.invoiceSeq.Code)
	}
	reg, err := f.registers.Create(context.Background(), req)
	require.NoError(t, err)
	return reg
}

func (f *fixture) open(t *testing.T, who model.AdminUser, code, amount string) *dto.SessionResponse {
	t.Helper()
	sess, err := f.sessions.Open(context.Background(), actorOf(who), dto.OpenSessionRequest{
		CashRegisterCode: code,
		OpeningAmount:    dec(amount),
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) close(t *testing.T, who model.AdminUser, sessionID string, payments ...dto.ReportedPaymentRequest) *model.ClosureSummary {
	t.Helper()
	summary, err := f.sessions.Close(context.Background(), uuid.MustParse(sessionID), actorOf(who), dto.CloseSessionRequest{Payments: payments})
	require.NoError(t, err)
	return summary
}

func declared(method, amount string) dto.ReportedPaymentRequest {
	return dto.ReportedPaymentRequest{Method: method, Amount: dec(amount)}
}
