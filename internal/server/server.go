package server

import (
	"context"
	"net/http"
	"time"

	"github.com/adjustly/adjustly/internal/audit"
	auditdomain "github.com/adjustly/adjustly/internal/audit/domain"
	"github.com/adjustly/adjustly/internal/billingstatus"
	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	"github.com/adjustly/adjustly/internal/clock"
	"github.com/adjustly/adjustly/internal/config"
	"github.com/adjustly/adjustly/internal/cyclerun"
	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	"github.com/adjustly/adjustly/internal/gateway"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	"github.com/adjustly/adjustly/internal/invoice"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/adjustly/adjustly/internal/scheduler"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	audit.Module,
	sanitize.Module,
	billingstatus.Module,
	invoice.Module,
	cyclerun.Module,
	gateway.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	db               *gorm.DB
	genID            *snowflake.Node
	clock            clock.Clock
	billingStatusSvc billingstatusdomain.Service
	invoiceSvc       invoicedomain.Service
	cycleSvc         cycledomain.Service
	gatewaySvc       gatewaydomain.Service
	auditSvc         auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	Clock            clock.Clock
	BillingStatusSvc billingstatusdomain.Service
	InvoiceSvc       invoicedomain.Service
	CycleSvc         cycledomain.Service
	GatewaySvc       gatewaydomain.Service
	AuditSvc         auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		db:               p.DB,
		genID:            p.GenID,
		clock:            p.Clock,
		billingStatusSvc: p.BillingStatusSvc,
		invoiceSvc:       p.InvoiceSvc,
		cycleSvc:         p.CycleSvc,
		gatewaySvc:       p.GatewaySvc,
		auditSvc:         p.AuditSvc,
	}

	svc.registerBillingStatusRoutes()
	svc.registerInvoiceRoutes()
	svc.registerWebhookRoutes()
	svc.registerDevBillingRoutes()

	return svc
}
