//go:build integration

package router_test

// Integration tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/config"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/model"
	"systeminvoice/internal/repository"
	"systeminvoice/internal/router"
	"systeminvoice/internal/service"
	"systeminvoice/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type integrationEnv struct {
	*api
	db         *gorm.DB
	rdb        *redis.Client
	reportsDir string
}

func setupIntegration(t *testing.T) *integrationEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("systeminvoice_test"),
		tcPostgres.WithUsername("systeminvoice"),
		tcPostgres.WithPassword("systeminvoice"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := infra.NewDatabase(pgURL)
	require.NoError(t, err)
	require.NoError(t, infra.RunMigrations(db))

	rdb, err := infra.NewRedis(rdURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	reportsDir := t.TempDir()
	cfg := &config.Config{
		Env:                     "test",
		JWTSecret:               jwtSecret,
		ReportTokenSecret:       "report-secret",
		ReportTokenTTL:          time.Minute,
		RegisterLockTTL:         3 * time.Second,
		SingleSessionPerAdmin:   true,
		StorageTimeout:          5 * time.Second,
		ClosureReportRecipients: "ops@example.com",
		ReportStoragePath:       reportsDir,
	}

	store := repository.NewGormStore(db, cfg.StorageTimeout)
	svcs := router.NewServices(cfg, store, infra.NewRedisLocker(rdb), worker.NewDispatcher(rdb))

	runCtx, cancel := context.WithCancel(ctx)
	pool := worker.NewPool(rdb, map[string]worker.Handler{
		worker.JobClosureReport: worker.NewClosureReportWorker(svcs.Closures, nil, nil, cfg.Recipients(), reportsDir),
	})
	pool.Start(runCtx, 1)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	gin.SetMode(gin.TestMode)
	a := &api{t: t, engine: router.New(runCtx, cfg, svcs, store, rdb)}
	a.admin = model.AdminUser{ID: uuid.New(), Username: "admin", DisplayName: "Admin", Role: service.RoleAdministrador, IsActive: true}
	a.cajero = model.AdminUser{ID: uuid.New(), Username: "cajero", DisplayName: "Carlos Cajero", Role: service.RoleCajero, IsActive: true}
	require.NoError(t, db.Create(&a.admin).Error)
	require.NoError(t, db.Create(&a.cajero).Error)
	require.NoError(t, db.Create(&model.Warehouse{ID: uuid.New(), Code: "DEP-01", Name: "Deposito", IsActive: true}).Error)

	return &integrationEnv{api: a, db: db, rdb: rdb, reportsDir: reportsDir}
}

func TestIntegration_ShiftWithWorker(t *testing.T) {
	env := setupIntegration(t)

	w := env.do("GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"redis":"connected"`)
	assert.Contains(t, w.Body.String(), `"dlq_closure_report":0`)

	w = env.do("POST", "/v1/sequences", map[string]interface{}{"code": "FAC-A", "scope": "INVOICE", "prefix": "A-", "padding": 8}, &env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.do("POST", "/v1/cash-registers", map[string]interface{}{
		"code": "CAJA-01", "name": "Caja", "warehouse_code": "DEP-01", "invoice_sequence_code": "FAC-A",
	}, &env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do("POST", "/v1/cash-registers/sessions", map[string]interface{}{"cash_register_code": "CAJA-01", "opening_amount": "100"}, &env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess struct {
		ID string `json:"id"`
	}
	decodeJSON(t, w, &sess)
	sessionID := uuid.MustParse(sess.ID)

	w = env.do("POST", "/v1/cash-registers/sessions/"+sess.ID+"/invoice-numbers", nil, &env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"formatted":"A-00000001"`)

	invoiceID := uuid.New()
	require.NoError(t, env.db.Create(&model.Invoice{
		ID: invoiceID, InvoiceNumber: "A-00000001", CashRegisterSessionID: &sessionID,
		Status: "ISSUED", TotalAmount: mustDec("250"), CreatedAt: time.Now().UTC(),
		Payments: []model.InvoicePayment{
			{ID: uuid.New(), PaymentMethod: "CASH", Amount: mustDec("200"), CreatedAt: time.Now().UTC()},
			{ID: uuid.New(), PaymentMethod: "CARD", Amount: mustDec("50"), CreatedAt: time.Now().UTC()},
		},
	}).Error)

	w = env.do("POST", "/v1/cash-registers/sessions/"+sess.ID+"/close", map[string]interface{}{
		"payments": []map[string]string{{"method": "CASH", "amount": "200"}, {"method": "CARD", "amount": "50"}},
	}, &env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The closure job renders the PDF into the storage dir.
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(env.reportsDir)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".pdf") {
				return true
			}
		}
		return false
	}, 15*time.Second, 200*time.Millisecond)

	n, err := worker.ParkedCount(context.Background(), env.rdb, worker.QueueClosureReport)
	require.NoError(t, err)
	assert.Zero(t, n)

	w = env.do("GET", "/v1/cash-registers/closures/"+sess.ID+"/report?format=xlsx", nil, &env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
}

func TestIntegration_ConcurrentOpenSameRegister(t *testing.T) {
	env := setupIntegration(t)

	w := env.do("POST", "/v1/cash-registers", map[string]interface{}{"code": "CAJA-01", "name": "Caja", "warehouse_code": "DEP-01"}, &env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	const n = 8
	users := make([]model.AdminUser, n)
	for i := range users {
		users[i] = model.AdminUser{ID: uuid.New(), Username: "admin" + uuid.NewString()[:8], DisplayName: "Admin", Role: service.RoleAdministrador, IsActive: true}
		require.NoError(t, env.db.Create(&users[i]).Error)
	}

	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := env.do("POST", "/v1/cash-registers/sessions", map[string]interface{}{"cash_register_code": "CAJA-01"}, &users[i])
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		default:
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, created)
}

func TestIntegration_ConcurrentAllocate(t *testing.T) {
	env := setupIntegration(t)

	w := env.do("POST", "/v1/sequences", map[string]interface{}{"code": "AJ", "scope": "INVENTORY", "start_value": 100, "step": 3}, &env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	const workers, perWorker = 8, 10
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				rec := env.do("POST", "/v1/sequences/AJ/allocate", map[string]string{"scope_type": "INVENTORY_TYPE", "scope_key": "ADJUSTMENT"}, &env.cajero)
				if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
					return
				}
				var num struct {
					Value int64 `json:"value"`
				}
				decodeJSON(t, rec, &num)
				mu.Lock()
				got = append(got, num.Value)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, got, workers*perWorker)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, v := range got {
		assert.Equal(t, int64(100+3*i), v)
	}
}

func TestIntegration_ConcurrentOpenSameAdmin(t *testing.T) {
	env := setupIntegration(t)

	var ids []uuid.UUID
	for _, code := range []string{"CAJA-01", "CAJA-02", "CAJA-03", "CAJA-04"} {
		w := env.do("POST", "/v1/cash-registers", map[string]interface{}{"code": code, "name": "Caja", "warehouse_code": "DEP-01"}, &env.admin)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var reg struct {
			ID string `json:"id"`
		}
		decodeJSON(t, w, &reg)
		ids = append(ids, uuid.MustParse(reg.ID))
	}

	// Straight to the store: no application lock in front, two instances
	// sharing one database.
	stores := []*repository.Store{
		repository.NewGormStore(env.db, 5*time.Second),
		repository.NewGormStore(env.db, 5*time.Second),
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := stores[i%2].Sessions.CreateOpen(context.Background(), &model.CashRegisterSession{
				CashRegisterID: ids[i%len(ids)],
				AdminUserID:    env.admin.ID,
				OpeningAmount:  mustDec("0"),
				OpeningAt:      time.Now().UTC(),
			}, true)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, apperr.IsKind(err, apperr.KindConflict), err.Error())
	}
	assert.Equal(t, 1, created)

	var open int64
	require.NoError(t, env.db.Model(&model.CashRegisterSession{}).
		Where("admin_user_id = ? AND status = ?", env.admin.ID, model.SessionOpen).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestIntegration_MalformedJobIsParked(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	require.NoError(t, env.rdb.LPush(ctx, worker.QueueClosureReport, "{not json").Err())

	assert.Eventually(t, func() bool {
		n, err := worker.ParkedCount(ctx, env.rdb, worker.QueueClosureReport)
		return err == nil && n == 1
	}, 15*time.Second, 100*time.Millisecond)

	parked, err := worker.RecentParked(ctx, env.rdb, worker.QueueClosureReport, 10)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "malformed job envelope", parked[0].Cause)
	assert.Nil(t, parked[0].SessionID)

	w := env.do("GET", "/health", nil, nil)
	assert.Contains(t, w.Body.String(), `"dlq_closure_report":1`)
}
