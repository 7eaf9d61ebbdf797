package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/listingd/internal/config"
	"github.com/MrSnakeDoc/listingd/internal/credentials"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/executor"
	"github.com/MrSnakeDoc/listingd/internal/httpserver"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/jobs"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/marketplace"
	"github.com/MrSnakeDoc/listingd/internal/ratelimit"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	"github.com/MrSnakeDoc/listingd/internal/redis"
	"github.com/MrSnakeDoc/listingd/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
	"github.com/MrSnakeDoc/listingd/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	publisher   events.Publisher
	pool        *jobs.Pool
	resumer     *scheduler.Resumer
	sweeper     *scheduler.Sweeper
	reloader    *scheduler.DesiredReloader
}

// New connects to Redis and the event broker and wires every component.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	publisher, err := newPublisher(cfg, loggerClient)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	store := redisstore.NewStore(redisClient)
	locks := lock.NewManager(redisClient, loggerClient, lock.Options{
		Wait:       cfg.LockWait,
		RetryDelay: cfg.LockRetryDelay,
	})
	reservoir := ratelimit.NewReservoir(redisClient, ratelimit.Config{
		Size:           cfg.ReservoirSize,
		RefillAmount:   cfg.ReservoirRefillAmount,
		RefillInterval: cfg.ReservoirRefillInterval,
		DefaultBackoff: cfg.RateLimitBackoff,
	})

	tokens := credentials.NewStore(redisClient)
	if cfg.TokenFile != "" {
		n, err := tokens.LoadFile(ctx, cfg.TokenFile)
		if err != nil {
			_ = publisher.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to load token file: %w", err)
		}
		loggerClient.Info("tokens loaded", logger.String("file", cfg.TokenFile), logger.Int("count", n))
	}

	api := marketplace.NewClient(marketplace.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.APITimeout,
		UserAgent: cfg.APIUserAgent,
	})

	queue := jobs.NewQueue(redisClient, cfg.JobVisibility)
	lst := listener.New(store, locks, queue, publisher, loggerClient.With(logger.String("component", "listener")), cfg.LockTTL)
	rec := reconciler.New(store, locks, loggerClient.With(logger.String("component", "reconciler")), cfg.LockTTL)
	service := reconciler.NewService(rec, lst, publisher, loggerClient)

	exec := executor.New(store, locks, reservoir, api, tokens, lst,
		loggerClient.With(logger.String("component", "executor")),
		executor.Config{
			CreateBatchSize:         cfg.CreateBatchSize,
			DeleteBatchSize:         cfg.DeleteBatchSize,
			DeleteArchivedBatchSize: cfg.DeleteArchivedBatchSize,
			LockTTL:                 cfg.ExecutorTTL,
		})
	pool := jobs.NewPool(queue, executor.NewProcessor(exec, queue, loggerClient), loggerClient.With(logger.String("component", "jobs")),
		jobs.PoolConfig{
			Workers:        cfg.Workers,
			PollInterval:   cfg.JobPollInterval,
			BackoffInitial: cfg.JobBackoffInitial,
			BackoffMax:     cfg.JobBackoffMax,
			MaxAge:         cfg.JobMaxAge,
		})

	sweeper := scheduler.NewSweeper(store, queue, loggerClient, cfg.SweepInterval)
	resumer := scheduler.NewResumer(queue, sweeper, loggerClient)

	// Desired file reloader (optional)
	var reloader *scheduler.DesiredReloader
	var reloadTrigger chan struct{}
	if cfg.DesiredFile != "" {
		loggerClient.Info("desired file configured", logger.String("file", cfg.DesiredFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewDesiredReloader(
			cfg.DesiredFile,
			service,
			lst,
			store,
			loggerClient,
			cfg.ReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("desired file not configured, desired listings come from the http api only")
	}

	d := deps.Deps{
		Logger:        loggerClient,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       time.Now,
		AllowedCIDRS:  cfg.AllowedCIDRS,
		TrustProxy:    cfg.TrustProxy,
		State:         store,
		Desired:       service,
		Agents:        lst,
		Jobs:          queue,
		ReloadTrigger: reloadTrigger,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		publisher:   publisher,
		pool:        pool,
		resumer:     resumer,
		sweeper:     sweeper,
		reloader:    reloader,
	}, nil
}

func newPublisher(cfg *config.Config, log logger.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		log.Info("no amqp url configured, lifecycle events are logged only")
		return events.NewLogPublisher(log), nil
	}
	pub, err := events.NewRabbitMQ(events.RabbitMQConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return pub, nil
}

// Run starts every background component and the HTTP server, then blocks
// until SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting listingd %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Requeue work a previous process left behind before workers start claiming
	if err := a.resumer.Resume(ctx); err != nil {
		a.logger.Warn("failed to resume persisted work", logger.Error(err))
	}

	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job pool: %w", err)
	}
	a.logger.Info("job pool started", logger.Int("workers", a.cfg.Workers))

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			a.pool.Stop()
			return fmt.Errorf("failed to start desired reloader: %w", err)
		}
		a.logger.Info("desired reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval))
	}

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	a.logger.Info("sweeper started",
		logger.Duration("interval", a.cfg.SweepInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	return a.shutdown(runErr)
}

func (a *App) shutdown(runErr error) error {
	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// Running batches finish and ack before their connections go away
	a.pool.Stop()

	if err := a.publisher.Close(); err != nil {
		a.logger.Warnf("failed to close event publisher: %v", err)
	}

	if err := a.redisClient.Close(); err != nil {
		a.logger.Warnf("failed to close redis: %v", err)
	} else {
		a.logger.Info("✅ Redis closed cleanly")
	}

	if runErr == nil {
		a.logger.Info("✅ listingd stopped cleanly")
	}
	return runErr
}
