package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/gateway"
	"mobileshop/internal/handler"
	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/infrastructure/database"
	"mobileshop/internal/infrastructure/mq"
	"mobileshop/internal/job"
	"mobileshop/internal/service"
	"mobileshop/pkg/idgen"
	"mobileshop/pkg/logging"

	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New("mobileshop")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	idgen.Init(1)

	db, err := database.Open(&cfg.MySQL)
	if err != nil {
		logger.Fatal("open mysql", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate schema", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	cacheSvc := cache.NewService(redisClient)

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		logger.Fatal("connect kafka", zap.Error(err))
	}
	defer producer.Close()

	gw := gateway.NewResilient(gateway.NewHTTPGateway(&cfg.Gateway), cfg.Gateway.MaxRetries)

	var users service.UserDirectory = gateway.StaticUserDirectory{}
	if cfg.Gateway.UserDirectory != "" {
		users = gateway.NewHTTPUserDirectory(cfg.Gateway.UserDirectory)
	}

	catalogService := service.NewCatalogService(db, cacheSvc, cfg, logger)
	numberService := service.NewNumberService(db, cacheSvc, cfg, logger)
	orderService := service.NewOrderService(db, cacheSvc, users, cfg, logger)
	paymentService := service.NewPaymentService(db, redisClient, gw, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, producer, cfg, logger)
	go outboxSender.Start(ctx)

	sweep := job.NewReservationSweep(numberService, cfg, logger)
	go sweep.Start(ctx)

	reconcile := job.NewPaymentReconcile(paymentService, cfg, logger)
	go reconcile.Start(ctx)

	h := handler.NewHandler(catalogService, numberService, orderService, paymentService)
	router := handler.SetupRouter(h, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
