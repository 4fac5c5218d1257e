package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarednorman/solidus-friendly-promotions/internal/adjuster"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/checkout"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/observability"
	obslogger "github.com/jarednorman/solidus-friendly-promotions/internal/observability/logger"
	obstracing "github.com/jarednorman/solidus-friendly-promotions/internal/observability/tracing"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine       *gin.Engine
	log          *zap.Logger
	promotionSvc promodomain.Service
	adjuster     adjuster.Adjuster
	checkout     *checkout.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	PromotionSvc promodomain.Service
	Adjuster     adjuster.Adjuster
	Checkout     *checkout.Service
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		promotionSvc: p.PromotionSvc,
		adjuster:     p.Adjuster,
		checkout:     p.Checkout,
		auditSvc:     p.AuditSvc,
	}

	svc.registerPromotionRoutes()
	svc.registerOrderRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPromotionRoutes() {
	api := s.engine.Group("/v1/promotions")

	api.GET("", s.ListPromotions)
	api.POST("", s.CreatePromotion)
	api.GET("/advertised", s.ListAdvertisedPromotions)
	api.GET("/:id", s.GetPromotion)
	api.DELETE("/:id", s.DestroyPromotion)

	api.POST("/:id/rules", s.AddPromotionRule)
	api.DELETE("/:id/rules/:rule_id", s.RemovePromotionRule)
	api.POST("/:id/actions", s.AddPromotionAction)
	api.DELETE("/:id/actions/:action_id", s.RemovePromotionAction)
	api.POST("/:id/codes", s.AddPromotionCodes)
	api.POST("/:id/code_batches", s.CreatePromotionCodeBatch)

	api.GET("/:id/usage", s.GetPromotionUsage)
	api.GET("/:id/eligibility", s.GetPromotionEligibility)
}

func (s *Server) registerOrderRoutes() {
	orders := s.engine.Group("/v1/orders")

	orders.POST("/:id/recalculate", s.RecalculateOrder)
	orders.POST("/:id/ensure_promotions_eligible", s.EnsurePromotionsEligible)
	orders.POST("/:id/coupon_codes", s.ApplyCouponCode)
	orders.DELETE("/:id/coupon_codes/:code", s.RemoveCouponCode)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin")

	admin.GET("/audit_logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
