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

	"codearena/internal/arena/controller"
	arenarepo "codearena/internal/arena/repository"
	arenasvc "codearena/internal/arena/service"
	"codearena/internal/arena/ws"
	"codearena/internal/catalog"
	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	judgerepo "codearena/internal/judge/repository"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/rating"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/arena_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	queueRepo := arenarepo.NewQueueRepository(redisCache)
	stateRepo := arenarepo.NewMatchStateRepository(redisCache)
	matchStore := arenarepo.NewMatchStore(mysqlDB)
	ratingStore := arenarepo.NewRatingStore(mysqlDB, redisCache)
	catalogClient := catalog.NewClient(mysqlDB, redisCache, objStorage, appCfg.MinIO.Bucket)

	submissionRepo := judgerepo.NewSubmissionRepository(mysqlDB, redisCache)
	intake := judgesvc.NewIntakeService(submissionRepo, redisCache, mqClient)

	hub := ws.NewHub()
	go hub.Run()

	ratingEngine := rating.NewEngine(ratingStore)

	coordinator := arenasvc.NewMatchCoordinator(arenasvc.CoordinatorConfig{
		States: stateRepo,
		Store:  matchStore,
		Engine: ratingEngine,
		Intake: intake,
		Notify: hub,
	})

	matchmaking := arenasvc.NewMatchmakingService(arenasvc.MatchmakingConfig{
		Queues:  queueRepo,
		States:  stateRepo,
		Store:   matchStore,
		Ratings: ratingStore,
		Catalog: catalogClient,
		Notify:  hub,
		Tracker: coordinator,
	})

	gateway := arenasvc.NewGateway(matchmaking, coordinator, hub)
	hub.SetHandler(gateway)

	verdicts := arenasvc.NewVerdictConsumer(coordinator, hub)
	err = mqClient.SubscribeWithOptions(context.Background(), appCfg.Arena.ResultsTopic, verdicts.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.Kafka.ConsumerGroup,
		PrefetchCount: appCfg.Kafka.PrefetchCount,
		Concurrency:   appCfg.Kafka.Concurrency,
		MaxRetries:    appCfg.Kafka.MaxRetries,
		RetryDelay:    appCfg.Kafka.RetryDelay,
		MessageTTL:    appCfg.Kafka.MessageTTL,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe results topic failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	matchmaking.Start(context.Background())
	defer matchmaking.Stop()

	verifier := controller.NewTokenVerifier(appCfg.JWT.Secret, appCfg.JWT.Issuer)
	arenaController := controller.NewArenaController(hub, intake, submissionRepo, ratingStore)
	httpServer := buildHTTPServer(appCfg.Server, arenaController, verifier)

	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "arena http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	hub.Stop()
	_ = mqClient.Stop()
}

func buildHTTPServer(cfg ServerConfig, arenaController *controller.ArenaController, verifier *controller.TokenVerifier) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	arenaController.RegisterRoutes(router, verifier)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
