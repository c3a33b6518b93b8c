package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/admin"
	appstateservice "github.com/Franc-dev/donate-artist/internal/appstate/service"
	"github.com/Franc-dev/donate-artist/internal/authorization"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	donationservice "github.com/Franc-dev/donate-artist/internal/donation/service"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	ledgerservice "github.com/Franc-dev/donate-artist/internal/ledger/service"
	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	"github.com/Franc-dev/donate-artist/internal/observability"
	obsmiddleware "github.com/Franc-dev/donate-artist/internal/observability/logger"
	obsmetrics "github.com/Franc-dev/donate-artist/internal/observability/metrics"
	obstracing "github.com/Franc-dev/donate-artist/internal/observability/tracing"
	"github.com/Franc-dev/donate-artist/internal/payment/callback"
	paymentdomain "github.com/Franc-dev/donate-artist/internal/payment/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/status"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
	userservice "github.com/Franc-dev/donate-artist/internal/user/service"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	redis     *redis.Client
	gateway   gatewaydomain.Client
	callbacks *callback.Service
	status    *status.Service
	statusBus paymentdomain.StatusSubscriber
	donations *donationservice.Coordinator
	users     *userservice.Service
	votes     *ledgerservice.Service
	sync      *ledgersync.Worker
	state     *appstateservice.Store
	admin     *admin.Service
	authz     *authorization.Service
	limiter   *ratelimit.DonationLimiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Redis     *redis.Client
	Gateway   gatewaydomain.Client
	Callbacks *callback.Service
	Status    *status.Service
	StatusBus paymentdomain.StatusSubscriber
	Donations *donationservice.Coordinator
	Users     *userservice.Service
	Votes     *ledgerservice.Service
	Sync      *ledgersync.Worker
	State     *appstateservice.Store
	Admin     *admin.Service
	Authz     *authorization.Service
	Limiter   *ratelimit.DonationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       log.Named("http"),
		clock:     clk,
		redis:     p.Redis,
		gateway:   p.Gateway,
		callbacks: p.Callbacks,
		status:    p.Status,
		statusBus: p.StatusBus,
		donations: p.Donations,
		users:     p.Users,
		votes:     p.Votes,
		sync:      p.Sync,
		state:     p.State,
		admin:     p.Admin,
		authz:     p.Authz,
		limiter:   p.Limiter,
	}

	svc.registerPaymentRoutes()
	svc.registerDonationRoutes()
	svc.registerBattleRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")

	payments.POST("/stk-push", s.InitiatePush)
	payments.POST("/pesapal-initiate", s.InitiateRedirect)
	payments.GET("/pesapal-verify", s.VerifyRedirect)
	payments.GET("/check-status", s.CheckStatus)
	payments.GET("/status-stream", s.StreamPaymentStatus)
	payments.POST("/callback", s.PaymentCallback)
}

func (s *Server) registerDonationRoutes() {
	donations := s.engine.Group("/api/donations")

	donations.POST("", s.DonationRateLimit(), s.SubmitDonation)
	donations.GET("/:id", s.GetDonation)
	donations.GET("/:id/events", s.StreamDonationEvents)
	donations.POST("/:id/cancel", s.CancelDonation)
	donations.POST("/:id/retry", s.RetryDonation)
	donations.GET("/:id/receipt", s.DonationReceipt)
}

func (s *Server) registerBattleRoutes() {
	api := s.engine.Group("/api")

	api.POST("/users", s.OnboardUser)
	api.POST("/votes", s.CastVote)
	api.GET("/sync", s.SyncLedger)
	api.GET("/state", s.GetState)
	api.POST("/state/intro/dismiss", s.DismissIntro)
	api.GET("/test-redis", s.TestRedis)
}

func (s *Server) registerAdminRoutes() {
	adminGroup := s.engine.Group("/api/admin")

	adminGroup.POST("/clear",
		s.AdminRequired(authorization.ObjectLedger, authorization.ActionLedgerClear),
		s.ClearLedger,
	)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
