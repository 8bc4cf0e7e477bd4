package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coderank/internal/admission"
	"coderank/internal/common/cache"
	"coderank/internal/common/db"
	commonmw "coderank/internal/common/http/middleware"
	"coderank/internal/common/mq"
	"coderank/internal/common/storage"
	"coderank/internal/execution/language"
	"coderank/internal/execution/observer"
	"coderank/internal/execution/runner"
	"coderank/internal/execution/validator"
	gatewaymw "coderank/internal/gateway/middleware"
	gatewayrepo "coderank/internal/gateway/repository"
	gatewaysvc "coderank/internal/gateway/service"
	"coderank/internal/submission/archive"
	"coderank/internal/submission/controller"
	"coderank/internal/submission/event"
	"coderank/internal/submission/repository"
	"coderank/internal/submission/service"
	"coderank/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/execution_service.yaml"
	healthPingTimeout = 2 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "execution service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(appCfg *AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := observer.NewPrometheus(registry)

	languages, err := language.NewRegistry(append(language.DefaultSpecs(), appCfg.Languages...)...)
	if err != nil {
		return fmt.Errorf("init language registry: %w", err)
	}

	rules := validator.DefaultRuleSet()
	if appCfg.Validator.RulesFile != "" {
		if rules, err = validator.LoadRuleSet(appCfg.Validator.RulesFile); err != nil {
			return fmt.Errorf("load validator rules: %w", err)
		}
	}
	sourceValidator := validator.New(rules, appCfg.Validator.MaxLength)
	logger.Info(ctx, "validator rules loaded",
		zap.String("version", sourceValidator.RuleSetVersion()),
		zap.Int("max_length", sourceValidator.MaxLength()),
	)

	processRunner := runner.NewProcessRunner(appCfg.Execution.Runner, recorder)

	var redisCache *cache.RedisCache
	if appCfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis.RedisConfig)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		closers = append(closers, func() { _ = redisCache.Close() })
	}

	store, backend, err := buildStore(ctx, appCfg.Database)
	if err != nil {
		return err
	}
	closers = append(closers, backend.close)
	if appCfg.Cache.Enabled {
		store = repository.NewCachedStore(store, redisCache, appCfg.Cache.TTL, appCfg.Cache.EmptyTTL)
	}

	gate := buildGate(ctx, appCfg.Admission, redisCache)

	var publisher event.StatusEventPublisher
	if appCfg.Kafka.Enabled {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.toKafkaConfig())
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		closers = append(closers, func() { _ = producer.Close() })
		publisher = event.NewMQStatusEventPublisher(producer, appCfg.Kafka.StatusTopic)
	}

	var archiver archive.Archiver
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.Archive.MinIOConfig)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Archive.Bucket); err != nil {
			return fmt.Errorf("ensure archive bucket: %w", err)
		}
		archiver = archive.NewObjectArchiver(objStorage, appCfg.Archive.Bucket, appCfg.Archive.Prefix)
	}

	var authService *gatewaysvc.AuthService
	if appCfg.Auth.Mode == "jwt" {
		var blacklist gatewaysvc.Blacklist
		if appCfg.Auth.Blacklist {
			blacklist = gatewayrepo.NewTokenBlacklistRepository(redisCache, appCfg.Auth.RedisTimeout)
		}
		authService = gatewaysvc.NewAuthService(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer, blacklist)
	}

	svcCfg := service.Config{
		Store:            store,
		Languages:        languages,
		Validator:        sourceValidator,
		Runner:           processRunner,
		Prober:           processRunner,
		Gate:             gate,
		Events:           publisher,
		Archiver:         archiver,
		Recorder:         recorder,
		WorkerPoolSize:   appCfg.Execution.WorkerPoolSize,
		QueueSize:        appCfg.Execution.QueueSize,
		ExecutionTimeout: appCfg.Execution.Timeout,
		StoreTimeout:     appCfg.Execution.StoreTimeout,
		EventTimeout:     appCfg.Execution.EventTimeout,
		MaxPageSize:      appCfg.Execution.MaxPageSize,
	}
	submissionService, err := service.NewSubmissionService(svcCfg)
	if err != nil {
		return fmt.Errorf("init submission service: %w", err)
	}

	if appCfg.Recovery.Enabled {
		recovered, err := submissionService.Recover(ctx, appCfg.Recovery.OlderThan)
		if err != nil {
			logger.Warn(ctx, "recover interrupted submissions failed", zap.Error(err))
		} else if recovered > 0 {
			logger.Info(ctx, "interrupted submissions marked failed", zap.Int("count", recovered))
		}
	}
	submissionService.Start(ctx)

	httpServer := buildHTTPServer(appCfg, submissionService, authService, registry, backend.ping)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "execution http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server stopped: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if err := submissionService.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "submission workers did not drain", zap.Error(err))
	}
	return serveErr
}

// storeBackend is the connection behind a submission store. ping is nil for the memory store.
type storeBackend struct {
	ping  func(ctx context.Context) error
	close func()
}

func buildStore(ctx context.Context, cfg DatabaseConfig) (repository.SubmissionStore, storeBackend, error) {
	switch cfg.Driver {
	case "mysql":
		mysqlDB, err := db.NewMySQLWithConfig(&cfg.MySQL)
		if err != nil {
			return nil, storeBackend{}, fmt.Errorf("init mysql: %w", err)
		}
		backend := storeBackend{ping: mysqlDB.Ping, close: func() { _ = mysqlDB.Close() }}
		return repository.NewMySQLSubmissionStore(mysqlDB), backend, nil
	case "postgres":
		pool, err := repository.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, storeBackend{}, fmt.Errorf("init postgres: %w", err)
		}
		return repository.NewPostgresSubmissionStore(pool), storeBackend{ping: pool.Ping, close: pool.Close}, nil
	default:
		logger.Warn(ctx, "using in-memory submission store, records are lost on restart")
		return repository.NewMemorySubmissionStore(), storeBackend{close: func() {}}, nil
	}
}

// buildGate returns nil when admission is disabled.
func buildGate(ctx context.Context, cfg AdmissionConfig, redisCache *cache.RedisCache) admission.Gate {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" {
		return admission.NewRedisGate(redisCache, cfg.Policy, cfg.RedisTimeout)
	}
	gate := admission.NewBucketGate(cfg.Policy)
	gate.StartCleanup(ctx, cfg.CleanupInterval)
	return gate
}

func buildHTTPServer(appCfg *AppConfig, submissions *service.SubmissionService, authService *gatewaysvc.AuthService, registry *prometheus.Registry, ping func(context.Context) error) *http.Server {
	if appCfg.Server.Mode != "" {
		gin.SetMode(appCfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	router.Use(gatewaymw.CORSMiddleware(appCfg.CORS))

	router.GET("/healthz", healthHandler(ping))
	if appCfg.Metrics.Enabled {
		router.GET(appCfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.Use(gatewaymw.AuthMiddleware(authService, gatewaymw.AuthPolicy{
		Mode:  appCfg.Auth.Mode,
		Roles: appCfg.Auth.Roles,
	}))
	controller.NewSubmissionController(submissions, appCfg.Stream).RegisterRoutes(api)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

// healthHandler reports 503 while the store connection is unreachable.
func healthHandler(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				logger.Warn(c.Request.Context(), "health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
