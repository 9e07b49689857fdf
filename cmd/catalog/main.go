package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	cartmysql "github.com/wyfcoding/shopcart/internal/cart/infrastructure/persistence/mysql"
	"github.com/wyfcoding/shopcart/internal/catalog/application"
	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence"
	"github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence/mysql"
	catalogredis "github.com/wyfcoding/shopcart/internal/catalog/infrastructure/persistence/redis"
	httpserver "github.com/wyfcoding/shopcart/internal/catalog/interfaces/http"
	"github.com/wyfcoding/shopcart/pkg/cache"
	"github.com/wyfcoding/shopcart/pkg/config"
	"github.com/wyfcoding/shopcart/pkg/db"
	"github.com/wyfcoding/shopcart/pkg/logger"
	"github.com/wyfcoding/shopcart/pkg/metrics"
	"github.com/wyfcoding/shopcart/pkg/middleware"
	"github.com/wyfcoding/shopcart/pkg/mq"
	"github.com/wyfcoding/shopcart/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/catalog/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
		Service:    cfg.ServiceName,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	bg := context.Background()

	// 3. Metrics
	metricsImpl := metrics.New(cfg.ServiceName)

	// 4. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Error(bg, "failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// 商品被购物车行引用，迁移需要同时建购物车表
	if cfg.Database.AutoMigrate {
		if err := cartmysql.Migrate(database.DB); err != nil {
			logger.Error(bg, "failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// 5. Repositories，启用 Redis 时商品读走缓存
	var (
		productRepo domain.ProductRepository = mysql.NewProductRepository(database.DB)
		limiter     ratelimit.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Error(bg, "failed to init redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		productRepo = persistence.NewCompositeProductRepository(productRepo,
			catalogredis.NewProductRedisRepository(redisCache, cfg.Catalog.CacheTTL))
		limiter = ratelimit.NewRedisRateLimiter(redisCache.Client())
	}

	// 6. Kafka
	var publisher mq.Publisher = mq.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
	}
	defer publisher.Close()

	// 7. Application Services
	appSvc := application.NewCatalogApplicationService(productRepo, db.NewTransactionManager(database.DB), publisher,
		application.WithOperationTimeout(cfg.Catalog.OperationTimeout))

	// 8. Interfaces
	grpcSrv := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinCORSMiddleware(),
		metricsImpl.GinMiddleware(),
		middleware.RateLimitMiddleware(limiter, cfg.RateLimit),
	)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	httpserver.NewCatalogHandler(appSvc).RegisterRoutes(r)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. Start
	g, ctx := errgroup.WithContext(bg)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return err
		}
		logger.Info(ctx, "gRPC server starting", "addr", cfg.GRPC.Addr())
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		logger.Info(ctx, "HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metricsImpl.StartServer(ctx, fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path)
		})
	}

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(bg, "shutting down servers...")
		case <-ctx.Done():
			logger.Info(bg, "context cancelled, shutting down...")
		}
		healthSrv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return context.Canceled
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error(bg, "server exited with error", "error", err)
		os.Exit(1)
	}
}
