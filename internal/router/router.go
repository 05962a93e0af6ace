package router

import (
	"context"
	"time"

	"systeminvoice/internal/config"
	"systeminvoice/internal/handler"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/middleware"
	"systeminvoice/internal/repository"
	"systeminvoice/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Services is the service layer shared by the HTTP API and the workers.
type Services struct {
	Sequences     service.SequenceService
	CashRegisters service.CashRegisterService
	Sessions      service.SessionService
	Closures      service.ClosureService
}

// NewServices wires services over the chosen store. notifier may be nil.
// Dependency graph: Handler ← Service ← Repository ← DB | memory
func NewServices(cfg *config.Config, store *repository.Store, locker infra.Locker, notifier service.ClosureNotifier) Services {
	sequences := service.NewSequenceService(store.Sequences)
	return Services{
		Sequences:     sequences,
		CashRegisters: service.NewCashRegisterService(store, locker, cfg),
		Sessions:      service.NewSessionService(store, sequences, locker, cfg, notifier),
		Closures:      service.NewClosureService(store, cfg),
	}
}

const (
	roleCajero = service.RoleCajero
	roleSuper  = service.RoleSupervisor
	roleAdmin  = service.RoleAdministrador
)

// New returns a configured Gin engine. ctx bounds background helpers such as
// the rate limiter purge. rdb may be nil.
func New(ctx context.Context, cfg *config.Config, svcs Services, store *repository.Store, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	limiter := middleware.NewRateLimiter(1000, time.Minute) // 1000 req/min per IP
	go limiter.RunPurge(ctx, 5*time.Minute)

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(limiter.Handler())

	seqH := handler.NewSequenceHandler(svcs.Sequences)
	regH := handler.NewCashRegisterHandler(svcs.CashRegisters)
	sessH := handler.NewSessionHandler(svcs.Sessions)
	closH := handler.NewClosureHandler(svcs.Closures)

	// ── Routes ───────────────────────────────────────────────────────────────

	r.GET("/health", handler.Health(store.Ping, rdb))

	// Human-readable report: Bearer token or scoped ?token=
	r.GET("/v1/cash-registers/closures/:sessionId/reporte", middleware.OptionalJWTAuth(cfg.JWTSecret), closH.Reporte)

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		anyRole := middleware.RequireRole(roleCajero, roleSuper, roleAdmin)
		adminOnly := middleware.RequireRole(roleAdmin)

		seq := v1.Group("/sequences")
		{
			seq.GET("", middleware.RequireRole(roleSuper, roleAdmin), seqH.List)
			seq.GET("/:code", middleware.RequireRole(roleSuper, roleAdmin), seqH.Get)
			seq.GET("/:code/preview", anyRole, seqH.Preview)
			seq.POST("/:code/allocate", anyRole, seqH.Allocate)
			seq.POST("", adminOnly, seqH.Create)
			seq.PATCH("/:code", adminOnly, seqH.Update)
		}

		regs := v1.Group("/cash-registers")
		{
			regs.GET("", anyRole, regH.List)
			regs.POST("", adminOnly, regH.Create)
			regs.GET("/assignments", anyRole, regH.ListAssignments)
			regs.POST("/assignments", adminOnly, regH.ApplyAssignment)

			regs.POST("/sessions", anyRole, sessH.Open)
			regs.GET("/sessions/active", anyRole, sessH.Active)
			regs.GET("/sessions/recent", anyRole, sessH.Recent)
			regs.POST("/sessions/:id/close", anyRole, sessH.Close)
			regs.POST("/sessions/:id/cancel", anyRole, sessH.Cancel)
			regs.POST("/sessions/:id/invoice-numbers", anyRole, sessH.NextInvoiceNumber)
			regs.GET("/sessions/:id/invoice-numbers/next", anyRole, sessH.PreviewInvoiceNumber)

			regs.GET("/closures/:sessionId/preview", anyRole, closH.Preview)
			regs.GET("/closures/:sessionId/report", anyRole, closH.Report)
			regs.POST("/closures/:sessionId/report-token", anyRole, closH.ReportToken)

			regs.GET("/:code", anyRole, regH.Get)
			regs.PATCH("/:code", adminOnly, regH.Update)
		}
	}

	// Swagger UI: only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
