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

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	commonmw "contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	contestrepo "contestjudge/internal/contest/repository"
	contestservice "contestjudge/internal/contest/service"
	judgerepo "contestjudge/internal/judge/repository"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/engine"
	"contestjudge/internal/judge/sandbox/language"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/runner"
	"contestjudge/internal/judge/sandbox/security"
	judgeservice "contestjudge/internal/judge/service"
	"contestjudge/internal/judge/verdict"
	leaderboardservice "contestjudge/internal/leaderboard/service"
	submitrepo "contestjudge/internal/submit/repository"
	submitservice "contestjudge/internal/submit/service"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfigPath = "configs/judge-server.yaml"
	defaultEnvPath    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Path to optional .env file")
	flag.Parse()

	if err := loadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		return
	}
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

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge server stopped with error", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	bootCtx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.MySQL)
	if err != nil {
		return fmt.Errorf("init mysql: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	queue, err := newQueue(appCfg.MQ)
	if err != nil {
		return fmt.Errorf("init mq: %w", err)
	}
	defer func() {
		_ = queue.Close()
	}()

	archive, err := newArchive(bootCtx, appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio: %w", err)
	}

	contestRepo := contestrepo.NewContestRepositoryWithTTL(mysqlDB, redisCache, appCfg.Contest.CacheTTL, appCfg.Contest.EmptyCacheTTL)
	contestSvc, err := contestservice.NewContestService(contestRepo, appCfg.Contest.Timeout)
	if err != nil {
		return err
	}
	if appCfg.Seed.Enabled {
		if _, err := contestservice.NewSeeder(contestRepo).Seed(bootCtx); err != nil {
			return err
		}
	}

	submissionRepo := submitrepo.NewSubmissionRepository(mysqlDB)
	statusRepo := judgerepo.NewStatusRepository(redisCache, appCfg.Judge.StatusTTL)
	tasks := judgerepo.NewTaskPublisher(queue, appCfg.MQ.Topics.Judge, appCfg.MQ.MaxRetries)
	events := judgerepo.NewMQStatusEventPublisher(queue, appCfg.MQ.Topics.StatusFinal)

	resolver := profile.NewStaticResolver(security.IsolationProfile{RootFS: appCfg.Sandbox.RootFS})
	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig(), resolver)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	languages := language.NewRegistry(runner.NewRunner(eng), appCfg.Sandbox.toProfiles(), appCfg.Sandbox.Languages)
	languages.RegisterProfiles(resolver)
	worker := sandbox.NewWorker(languages, appCfg.Sandbox.WorkRoot, verdict.OutputMatches).WithKiller(eng)

	judgeSvc, err := judgeservice.NewService(judgeservice.Config{
		Submissions:     submissionRepo,
		Problems:        contestSvc,
		Executor:        worker,
		Status:          statusRepo,
		Events:          events,
		Lock:            judgerepo.NewJudgeLock(redisCache, appCfg.Judge.LockTTL),
		WorkerTimeout:   appCfg.Judge.WorkerTimeout,
		StatusTimeout:   appCfg.Judge.StatusTimeout,
		SandboxRetries:  *appCfg.Judge.SandboxRetries,
		RetryBackoff:    appCfg.Judge.RetryBackoff,
		RetryBackoffMax: appCfg.Judge.RetryBackoffMax,
		MetaTTL:         appCfg.Judge.MetaTTL,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}
	recovery, err := judgeservice.NewRecovery(judgeservice.RecoveryConfig{
		Store:      submissionRepo,
		Tasks:      tasks,
		Marks:      redisCache,
		Interval:   appCfg.Judge.Recovery.Interval,
		StaleAfter: appCfg.Judge.Recovery.StaleAfter,
		Cooldown:   appCfg.Judge.Recovery.RequeueCooldown,
		Batch:      appCfg.Judge.Recovery.Batch,
	})
	if err != nil {
		return fmt.Errorf("init recovery: %w", err)
	}

	leaderboardSvc, err := leaderboardservice.NewService(leaderboardservice.Config{
		Contests:    contestSvc,
		Submissions: submissionRepo,
		Cache:       redisCache,
		CacheTTL:    appCfg.Leaderboard.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("init leaderboard: %w", err)
	}

	submitCfg := submitservice.Config{
		Contests:             contestSvc,
		SubmissionRepo:       submissionRepo,
		StatusRepo:           statusRepo,
		Tasks:                tasks,
		Cache:                redisCache,
		FinalStatusHandlers:  []submitservice.FinalStatusHandler{leaderboardSvc},
		SourceKeyPrefix:      appCfg.Submit.SourcePrefix,
		MaxCodeBytes:         appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL:       appCfg.Submit.IdempotencyTTL,
		EnforceContestWindow: appCfg.Submit.EnforceContestWindow,
		RateLimit: submitservice.RateLimitConfig{
			Max:    appCfg.Submit.RateLimit.Max,
			Window: appCfg.Submit.RateLimit.Window,
		},
		Timeouts: submitservice.TimeoutConfig{
			DB:      appCfg.Submit.Timeout,
			Cache:   appCfg.Submit.Timeout,
			MQ:      appCfg.Submit.Timeout,
			Storage: appCfg.Submit.Timeout,
			Status:  appCfg.Judge.StatusTimeout,
		},
	}
	if archive != nil {
		submitCfg.Archive = archive
	}
	submitSvc, err := submitservice.NewSubmitService(submitCfg)
	if err != nil {
		return fmt.Errorf("init submit service: %w", err)
	}

	if err := queue.SubscribeWithOptions(bootCtx, appCfg.MQ.Topics.Judge, judgeSvc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   appCfg.MQ.GroupIDs.Judge,
		Concurrency:     appCfg.Judge.Workers,
		PrefetchCount:   appCfg.Judge.Workers,
		MaxRetries:      appCfg.MQ.MaxRetries,
		RetryDelay:      appCfg.MQ.RetryDelay,
		DeadLetterTopic: appCfg.MQ.Topics.DeadLetter,
	}); err != nil {
		return fmt.Errorf("subscribe judge topic: %w", err)
	}
	if err := queue.SubscribeWithOptions(bootCtx, appCfg.MQ.Topics.StatusFinal, submitSvc.HandleFinalStatusMessage, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.MQ.GroupIDs.StatusFinal,
		Concurrency:   1,
		MaxRetries:    appCfg.MQ.MaxRetries,
		RetryDelay:    appCfg.MQ.RetryDelay,
	}); err != nil {
		return fmt.Errorf("subscribe status topic: %w", err)
	}
	if err := queue.Start(); err != nil {
		return fmt.Errorf("start mq consumers: %w", err)
	}
	defer func() {
		_ = queue.Stop()
	}()

	httpServer := &http.Server{
		Addr: appCfg.Server.Addr,
		Handler: buildRouter(routerDeps{
			CORS:        appCfg.CORS,
			Contests:    contestSvc,
			Submit:      submitSvc,
			Languages:   languages,
			Leaderboard: leaderboardSvc,
			Limiter:     commonmw.NewRateLimiter(redisCache, "http:rate", appCfg.Submit.Timeout),
			SubmitLimit: appCfg.RateLimit,
			Checks: []healthCheck{
				{name: "mysql", ping: mysqlDB.Ping},
				{name: "redis", ping: redisCache.Ping},
			},
		}),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(bootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		logger.Info(gctx, "judge server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("mq_driver", appCfg.MQ.Driver),
			zap.Int("workers", appCfg.Judge.Workers),
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return recovery.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})
	return g.Wait()
}

func newQueue(cfg MQConfig) (mq.MessageQueue, error) {
	if cfg.Driver == driverKafka {
		kcfg, err := cfg.Kafka.toMQConfig()
		if err != nil {
			return nil, err
		}
		return mq.NewKafkaQueue(kcfg)
	}
	return mq.NewMemoryQueue(mq.MemoryConfig{Buffer: cfg.Buffer}), nil
}

// newArchive returns nil when archiving is disabled.
func newArchive(ctx context.Context, cfg MinIOSection) (*storage.CompressedStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	objStorage, err := storage.NewMinIOStorage(cfg.MinIOConfig)
	if err != nil {
		return nil, err
	}
	if err := objStorage.EnsureBucket(ctx, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}
	return storage.NewCompressedStore(objStorage, cfg.Bucket)
}
