package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "github.com/noah-isme/hris-leave-api/api/swagger"
	"github.com/noah-isme/hris-leave-api/internal/handler"
	internalmiddleware "github.com/noah-isme/hris-leave-api/internal/middleware"
	"github.com/noah-isme/hris-leave-api/internal/repository"
	"github.com/noah-isme/hris-leave-api/internal/service"
	"github.com/noah-isme/hris-leave-api/pkg/cache"
	"github.com/noah-isme/hris-leave-api/pkg/config"
	"github.com/noah-isme/hris-leave-api/pkg/database"
	"github.com/noah-isme/hris-leave-api/pkg/jobs"
	"github.com/noah-isme/hris-leave-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hris-leave-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hris-leave-api/pkg/middleware/requestid"
	"github.com/noah-isme/hris-leave-api/pkg/pubsub"
)

// @title HRIS Leave API
// @version 1.0.0
// @description Leave requests, approver routing, balances and notifications
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := connectRedis(ctx, cfg, logr)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	feed := newChangeFeed(cfg, redisClient, logr)
	defer feed.Close()

	location, err := cfg.Leave.Location()
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	leaveRepo := repository.NewLeaveRequestRepository(db)
	approverRepo := repository.NewLeaveApproverRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix+"cache:", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Leave.BalanceCacheTTL, logr, cfg.Leave.CacheEnabled && redisClient != nil)
	balances := service.NewLeaveBalanceService(leaveRepo, cacheSvc, cfg.Leave.BalanceCacheTTL, logr)
	notifications := service.NewNotificationService(notificationRepo, logr,
		service.WithNotificationFeed(feed),
		service.WithNotificationMetrics(metrics),
		service.WithNotificationQueue(jobs.QueueConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			BufferSize: cfg.Notifications.QueueSize,
			MaxRetries: cfg.Notifications.WorkerRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
		}),
	)
	approvers := service.NewLeaveApproverService(approverRepo, validate, logr,
		service.WithApproverChangeFeed(feed),
		service.WithApproverMetrics(metrics),
	)
	lifecycle := service.NewLeaveRequestService(leaveRepo, approvers, logr,
		service.WithLeaveNotifier(notifications),
		service.WithLeaveChangeFeed(feed),
		service.WithLeaveBalanceInvalidator(balances),
		service.WithLeaveMetrics(metrics),
	)
	eligibility := service.NewLeaveEligibilityValidator(service.WithEligibilityLocation(location))
	filing := service.NewLeaveFilingService(lifecycle, approvers, employeeRepo, eligibility, validate, logr)
	exports := service.NewLeaveExportService(leaveRepo, logr, nil, nil)
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	notifications.Start(ctx)
	defer notifications.Stop()

	leaveHandler := handler.NewLeaveHandler(lifecycle, filing, balances, exports).
		WithStreamHeartbeat(cfg.Leave.StreamHeartbeat).
		WithLocation(location)
	notificationHandler := handler.NewNotificationHandler(notifications).WithStreamHeartbeat(cfg.Leave.StreamHeartbeat)
	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(auth), internalmiddleware.WithResponseMeta())
	handler.RegisterRoutes(api, handler.Handlers{
		Leave:         leaveHandler,
		Approvers:     handler.NewLeaveApproverHandler(approvers).WithStreamHeartbeat(cfg.Leave.StreamHeartbeat),
		Notifications: notificationHandler,
		WriteLimit:    internalmiddleware.RateLimitByUser(rate.Limit(cfg.Leave.WriteRate), cfg.Leave.WriteBurst),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("change_feed", cfg.Leave.ChangeFeed))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// connectRedis returns nil when neither the cache nor the change feed needs Redis.
// A Redis outage only disables the cache, but is fatal for the redis change feed.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*redis.Client, error) {
	needFeed := cfg.Leave.ChangeFeed == config.ChangeFeedRedis
	if !cfg.Leave.CacheEnabled && !needFeed {
		return nil, nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		if needFeed {
			return nil, err
		}
		logr.Warn("redis unavailable, balance cache disabled", zap.Error(err))
		return nil, nil
	}
	return client, nil
}

func newChangeFeed(cfg *config.Config, client *redis.Client, logr *zap.Logger) pubsub.Feed {
	if cfg.Leave.ChangeFeed == config.ChangeFeedRedis && client != nil {
		return pubsub.NewRedisFeed(client, cfg.Redis.KeyPrefix+"feed:", logr)
	}
	return pubsub.NewMemoryFeed()
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
