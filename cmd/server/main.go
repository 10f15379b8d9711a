package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-ledger/config"
	"commerce-ledger/internal/api"
	"commerce-ledger/internal/broker"
	"commerce-ledger/internal/gateway"
	"commerce-ledger/internal/redisclient"
	"commerce-ledger/internal/service"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"
	"commerce-ledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce ledger")

	tp, err := util.InitTracer(cfg.Server.Env, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Database connected")

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicLedger))

	eventPublisher := broker.NewEventPublisher(producer)
	gatewayClient := gateway.NewClient(cfg.Gateway)
	clk := clock.New()
	hooks := service.NewDispatcher()

	fees := service.FeePolicy{
		Rate:     cfg.Business.PlatformFeeRate,
		MinCents: cfg.Business.PlatformFeeMinCents,
	}
	reconciler := service.NewReconciler(db, eventPublisher, clk, cfg.Business.ReconcileStaleAfter)

	orderService := service.NewOrderService(db, eventPublisher, hooks, fees, clk)
	refundProcessor := service.NewRefundProcessor(db, gatewayClient, redisClient, eventPublisher, reconciler, fees, clk)
	payoutProcessor := service.NewPayoutProcessor(db, gatewayClient, redisClient, eventPublisher, reconciler,
		cfg.Business.PayoutMinimumCents, clk)
	ledgerService := service.NewLedgerService(db)
	pointsService := service.NewPointsService(db, service.PointsPolicy{
		DefaultPointsPerScan: cfg.Business.DefaultPointsPerScan,
		TopTierPlan:          cfg.Business.TopTierPlan,
		TopTierMultiplier:    cfg.Business.TopTierScanMultiplier,
		Location:             cfg.Business.PointsTimezone,
	}, clk)
	rewardService := service.NewRewardService(db)
	offerService := service.NewOfferService(db, clk)
	timeAwayService := service.NewTimeAwayService(db, cfg.Business.TimeAwayMaxSalesDays, clk)
	badgeService := service.NewBadgeService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	badgeConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger, cfg.Kafka.BadgeGroup)
	badgeWorker := worker.NewBadgeWorker(badgeConsumer, badgeService)
	go func() {
		if err := badgeWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Badge worker error", zap.Error(err))
		}
	}()

	if cfg.Business.ReconcileEnabled {
		reconcileWorker := worker.NewReconciliationWorker(reconciler, clk, cfg.Business.ReconcileInterval)
		go func() {
			if err := reconcileWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Reconciliation worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Orders:   orderService,
		Refunds:  refundProcessor,
		Payouts:  payoutProcessor,
		Ledger:   ledgerService,
		TimeAway: timeAwayService,
		Points:   pointsService,
		Rewards:  rewardService,
		Offers:   offerService,
		Badges:   badgeService,
	}, api.NewAuthenticator(cfg.Auth.ServiceTokenSecret), redisClient, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}

	workerCancel()
	if err := badgeWorker.Stop(); err != nil {
		result = multierror.Append(result, fmt.Errorf("badge worker: %w", err))
	}

	// hooks still publish through the producer
	hooks.Wait()

	if err := producer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("kafka producer: %w", err))
	}
	if err := redisClient.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("redis: %w", err))
	}
	if err := db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("database: %w", err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracer: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
	}
	logger.Info("Server exited")
}
