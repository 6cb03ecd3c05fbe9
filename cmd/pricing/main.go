package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pricingrisk/internal/pricing/application"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/marketdata"
	"github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/persistence/mysql"
	pricingredis "github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/persistence/redis"
	grpcserver "github.com/wyfcoding/pricingrisk/internal/pricing/interfaces/grpc"
	httphandler "github.com/wyfcoding/pricingrisk/internal/pricing/interfaces/http"
	"github.com/wyfcoding/pricingrisk/pkg/cache"
	"github.com/wyfcoding/pricingrisk/pkg/config"
	"github.com/wyfcoding/pricingrisk/pkg/db"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"github.com/wyfcoding/pricingrisk/pkg/metrics"
	"github.com/wyfcoding/pricingrisk/pkg/middleware"
	"github.com/wyfcoding/pricingrisk/pkg/mq"
	"github.com/wyfcoding/pricingrisk/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", config.GetEnv("APP_CONFIG", "configs/pricing/config.toml"), "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		logger.Fatal(context.Background(), "server exited with error", "error", err)
	}
}

// app 运行期依赖
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	service  *application.PricingService
	limiter  ratelimit.RateLimiter
	relay    *messaging.OutboxRelay
	cleanups []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Service:    cfg.ServiceName,
		Version:    cfg.Version,
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Infrastructure & Application
	a, err := build(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer a.close()

	// 5. Interfaces
	router := newRouter(a)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecovery(),
		middleware.GRPCLogging(),
		middleware.GRPCMetrics(m),
	}
	if a.limiter != nil {
		interceptors = append(interceptors, middleware.GRPCRateLimit(a.limiter, ratelimit.PerSecond(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	}
	grpcSrv := grpcserver.NewServer(grpcserver.Config{
		Addr:                 fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
		MaxConcurrentStreams: uint32(cfg.GRPC.MaxConcurrentStreams),
		IdleTimeout:          time.Duration(cfg.GRPC.IdleTimeout) * time.Second,
	}, interceptors...)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.HTTP.Port {
		metricsSrv = metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 6. Start
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return grpcSrv.ListenAndServe(gctx)
	})

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	// 7. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// build 按配置装配可选的持久化、缓存、消息与行情依赖
func build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app, error) {
	a := &app{cfg: cfg, metrics: m}
	engine, err := application.NewConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	opts := []application.Option{application.WithRecorder(m)}

	// 行情
	md := marketdata.NewMemoryProvider()
	if cfg.MarketData.HistoryFile != "" {
		if md, err = marketdata.LoadCSVFile(cfg.MarketData.HistoryFile); err != nil {
			return nil, fmt.Errorf("load market history: %w", err)
		}
		logger.Info(ctx, "market history loaded", "file", cfg.MarketData.HistoryFile)
	}
	opts = append(opts, application.WithMarketData(md))

	// 数据库
	var database *db.DB
	var calibrations domain.CalibrationRepository
	if cfg.Database.DSN != "" {
		database, err = db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { _ = database.Close() })
		if err := mysql.AutoMigrate(database.DB); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate db failed: %w", err)
		}
		calibrations = mysql.NewCalibrationRepository(database.DB)
		opts = append(opts, application.WithReportRepository(mysql.NewReportRepository(database.DB)))
	}

	// 缓存：Redis 优先，否则进程内缓存
	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second
	var store pricingredis.JSONCache
	if cfg.Redis.Enabled {
		rc, err := cache.New(cache.Config{
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
			a.close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { _ = rc.Close() })
		store = rc
		if cfg.RateLimit.Enabled {
			a.limiter = ratelimit.NewRedisRateLimiter(rc.Client())
		}
	} else {
		lc, err := cache.NewLocal(ctx, ttl)
		if err != nil {
			a.close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { _ = lc.Close() })
		store = lc
	}
	opts = append(opts, application.WithCalibrationRepository(pricingredis.NewCalibrationCache(calibrations, store, ttl)))

	// 事件：有数据库时经 outbox 投递，否则直接写 Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			a.close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { _ = producer.Close() })

		if database != nil {
			if err := messaging.MigrateOutbox(database.DB); err != nil {
				a.close()
				return nil, fmt.Errorf("migrate outbox failed: %w", err)
			}
			opts = append(opts, application.WithPublisher(messaging.NewOutboxEventPublisher(database.DB)))
			a.relay = messaging.NewOutboxRelay(database, producer, cfg.Kafka.Topic,
				time.Duration(cfg.Kafka.OutboxInterval)*time.Millisecond)
		} else {
			opts = append(opts, application.WithPublisher(messaging.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)))
		}
	}

	a.service = application.NewPricingService(engine, opts...)
	logger.Info(ctx, "pricing service initialized",
		"database", database != nil,
		"redis", cfg.Redis.Enabled,
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	return a, nil
}

func newRouter(a *app) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.GinRecovery(), middleware.GinLogging(), middleware.GinCORS(), middleware.GinMetrics(a.metrics))
	if a.limiter != nil {
		r.Use(middleware.GinRateLimit(a.limiter, ratelimit.PerSecond(a.cfg.RateLimit.QPS, a.cfg.RateLimit.Burst)))
	}

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Port == a.cfg.HTTP.Port {
		r.GET(a.cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	timeout := time.Duration(a.cfg.HTTP.RequestTimeout) * time.Second
	httphandler.NewPricingHandler(a.service, timeout).RegisterRoutes(r)
	return r
}
