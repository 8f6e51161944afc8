package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/catalog-service/internal/adapter/handler"
	"github.com/rl1809/catalog-service/internal/adapter/storage"
	"github.com/rl1809/catalog-service/internal/config"
	"github.com/rl1809/catalog-service/internal/core/idgen"
	"github.com/rl1809/catalog-service/internal/core/lock"
	"github.com/rl1809/catalog-service/internal/core/service"
	"github.com/rl1809/catalog-service/internal/logger"
	"github.com/rl1809/catalog-service/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Ping(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	if cfg.MySQL.AutoMigrate {
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	redisAdapter := storage.NewRedisAdapter(rdb)
	if err := redisAdapter.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize Elasticsearch
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ES.Addresses,
		Username:  cfg.ES.Username,
		Password:  cfg.ES.Password,
	})
	if err != nil {
		return fmt.Errorf("create elasticsearch client: %w", err)
	}
	esAdapter := storage.NewElasticsearchAdapter(es, cfg.ES.Index)
	created, err := esAdapter.EnsureIndex(ctx)
	if err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	log.Info("connected to elasticsearch", zap.Strings("addresses", cfg.ES.Addresses), zap.Bool("index_created", created))

	// Initialize services
	ids, err := idgen.New(idgen.Config{DatacenterID: cfg.IDGen.DatacenterID, WorkerID: cfg.IDGen.WorkerID})
	if err != nil {
		return fmt.Errorf("id generator: %w", err)
	}

	catalog := service.NewCatalogCache(mysqlAdapter, redisAdapter, cfg.Cache.VariantNamespace, cfg.Cache.TTL, log)
	syncService := service.NewSyncService(mysqlAdapter, esAdapter, service.NewRuleTagger(), cfg.Sync.BulkSize, log)

	dispatcher := service.NewSyncDispatcher(syncService, service.DispatcherConfig{
		Workers:      cfg.Sync.Workers,
		QueueSize:    cfg.Sync.QueueSize,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		RetryBackoff: cfg.Sync.RetryBackoff,
		JobTimeout:   cfg.Sync.JobTimeout,
	}, log)
	dispatcher.Start()

	orderService := service.NewOrderService(
		mysqlAdapter,
		lock.New(redisAdapter, log),
		ids,
		catalog,
		dispatcher,
		cfg.Lock.TTL,
		log,
	)
	searchService := service.NewSearchService(esAdapter, catalog, nil, service.SearchConfig{
		DefaultPageSize:    cfg.Search.DefaultPageSize,
		MaxPageSize:        cfg.Search.MaxPageSize,
		HydrateConcurrency: cfg.Search.HydrateConcurrency,
	}, log)
	userService := service.NewUserService(mysqlAdapter, mysqlAdapter, redisAdapter, cfg.Cache.UserNamespace, cfg.Cache.TTL, log)

	// Batch sync: warm the index once, then on schedule
	batch := scheduler.NewBatchRunner(syncService, cfg.Sync.BatchSchedule, cfg.Sync.BatchTimeout, log)
	if n, err := batch.RunOnce(ctx); err != nil {
		log.Warn("startup batch sync failed", zap.Error(err))
	} else {
		log.Info("startup batch sync complete", zap.Int("documents", n))
	}
	if err := batch.Start(); err != nil {
		return err
	}

	health := handler.NewHealthReporter(map[string]handler.Pinger{
		"mysql":         mysqlAdapter,
		"redis":         redisAdapter,
		"elasticsearch": esAdapter,
	}, 2*time.Second, log)
	go health.Run(ctx, cfg.App.HealthInterval)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.App.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log))
	handler.NewHTTPHandler(orderService, searchService, catalog, userService, batch, health).Register(router)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	health.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	batch.Stop(shutdownCtx)
	log.Info("batch scheduler stopped")

	// Drain pending index refreshes before the connections close
	dispatcher.Close()
	cancel()

	log.Info("connections closed")
	return nil
}
