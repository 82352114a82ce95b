package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autonews-pipeline/internal/adapters/generator"
	"autonews-pipeline/internal/adapters/images"
	"autonews-pipeline/internal/adapters/inbox"
	"autonews-pipeline/internal/adapters/repo"
	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/cache"
	"autonews-pipeline/internal/infra/config"
	"autonews-pipeline/internal/infra/db"
	applog "autonews-pipeline/internal/infra/log"
	"autonews-pipeline/internal/infra/metrics"
	"autonews-pipeline/internal/infra/openai"
	"autonews-pipeline/internal/infra/queue"
	"autonews-pipeline/internal/usecase/autopublish"
	"autonews-pipeline/internal/usecase/ingest"
	"autonews-pipeline/internal/usecase/publish"
	"autonews-pipeline/internal/usecase/scoring"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("worker: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := cache.NewRedis(redisClient)
	itemInbox := inbox.NewRedisInbox(redisClient, "inbox")

	var jobQueue domain.JobQueue
	if cfg.AMQP.URL != "" {
		rabbit, err := queue.NewRabbitJobQueue(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось подключить RabbitMQ")
		}
		defer rabbit.Close()
		jobQueue = rabbit
	} else {
		jobQueue = queue.NewRedisJobQueue(redisClient, cfg.Queues.Jobs)
	}

	var gen domain.Generator
	if cfg.LLM.APIKey != "" {
		client := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout)
		gen = generator.NewOpenAI(client, cfg.LLM.Model, cfg.LLM.Timeout)
	} else {
		logger.Warn().Msg("worker: ключ LLM не задан, используется эвристический генератор")
		gen = generator.NewSimple()
	}

	policy := scoring.DefaultPolicy()
	ingestService := ingest.NewService(repoAdapter, repoAdapter, itemInbox, gen, policy,
		logger.With().Str("component", "ingest").Logger())
	scoreService := scoring.NewService(repoAdapter, policy,
		logger.With().Str("component", "score").Logger())

	fetcher := images.NewFetcher(cfg.Images.Timeout)
	store := images.NewFileStore(cfg.Images.Dir, cfg.Images.BaseURL)
	publisher := publish.NewService(repoAdapter, fetcher, store, redisCache, publish.SideEffects{
		RevalidateURL:  cfg.Revalidate.PingURL,
		SearchIndexURL: cfg.Revalidate.IndexURL,
		CacheKeys:      []string{"articles:list", "articles:latest"},
	}, logger.With().Str("component", "publish").Logger())

	engine := autopublish.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, publisher,
		autopublish.Config{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			LockStaleAfter: cfg.Pipeline.LockStaleAfter,
			FallbackBatch:  cfg.Pipeline.MaxItemsPerCycle,
		}, logger.With().Str("component", "autopublish").Logger())

	w := &worker{
		cfg:      cfg,
		settings: repoAdapter,
		ingest:   ingestService,
		score:    scoreService,
		engine:   engine,
		log:      logger,
	}

	logger.Info().Msg("worker: запущен")
	for {
		job, ack, err := jobQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка получения задачи")
			continue
		}
		success := w.runJob(ctx, job)
		if err := ack(success); err != nil {
			logger.Error().Err(err).Str("job", job.ID).Msg("worker: подтверждение не доставлено")
		}
	}
}

type worker struct {
	cfg      config.AppConfig
	settings domain.SettingsRepo
	ingest   *ingest.Service
	score    *scoring.Service
	engine   *autopublish.Service
	log      zerolog.Logger
}

// runJob выполняет задачу под блокировкой её типа. Возвращает false только
// когда задачу имеет смысл доставить повторно.
func (w *worker) runJob(ctx context.Context, job domain.PipelineJob) bool {
	if !domain.KnownTask(job.Task) {
		w.log.Warn().Str("task", string(job.Task)).Msg("worker: неизвестная задача отброшена")
		return true
	}
	w.log.Info().Str("task", string(job.Task)).Str("cause", string(job.Cause)).Msg("worker: задача получена")

	// Движок автопубликации захватывает свою блокировку сам.
	if job.Task == domain.TaskAutoPublish {
		result, err := w.engine.RunSweep(ctx)
		switch {
		case errors.Is(err, autopublish.ErrSweepLocked):
			w.log.Info().Msg("worker: проход уже идёт, задача пропущена")
			return true
		case err != nil:
			w.log.Error().Err(err).Msg("worker: проход не завершён")
			return false
		}
		w.log.Info().Int("evaluated", result.Evaluated).Msg("worker: проход выполнен")
		return true
	}

	now := time.Now().UTC()
	acquired, err := w.settings.AcquireTaskLock(ctx, job.Task, now, w.cfg.Pipeline.LockStaleAfter)
	if err != nil {
		w.log.Error().Err(err).Str("task", string(job.Task)).Msg("worker: ошибка захвата блокировки")
		return false
	}
	if !acquired {
		w.log.Info().Str("task", string(job.Task)).Msg("worker: задача уже выполняется")
		return true
	}
	defer func() {
		if err := w.settings.ReleaseTaskLock(context.Background(), job.Task); err != nil {
			w.log.Error().Err(err).Str("task", string(job.Task)).Msg("worker: блокировка не снята")
		}
	}()

	max := w.cfg.Pipeline.MaxItemsPerCycle
	switch job.Task {
	case domain.TaskRSS:
		_, err = w.ingest.RunScan(ctx, domain.SourceRSS, max)
	case domain.TaskYouTube:
		_, err = w.ingest.RunScan(ctx, domain.SourceYouTube, max)
	case domain.TaskScore:
		_, err = w.score.RunScorePass(ctx, max)
	case domain.TaskDeepSpecs:
		_, err = w.ingest.RunSpecsPass(ctx, max)
	}
	if err != nil {
		w.log.Error().Err(err).Str("task", string(job.Task)).Msg("worker: задача завершилась с ошибкой")
		return false
	}
	return true
}
