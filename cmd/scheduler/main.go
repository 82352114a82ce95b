package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/cache"
	"autonews-pipeline/internal/infra/config"
	applog "autonews-pipeline/internal/infra/log"
	"autonews-pipeline/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("scheduler: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := cache.NewRedis(redisClient)

	var jobQueue domain.JobQueue
	if cfg.AMQP.URL != "" {
		rabbit, err := queue.NewRabbitJobQueue(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось подключить RabbitMQ")
		}
		defer rabbit.Close()
		jobQueue = rabbit
	} else {
		jobQueue = queue.NewRedisJobQueue(redisClient, cfg.Queues.Jobs)
	}

	s := &scheduler{queue: jobQueue, cache: redisCache, log: logger}

	scanTicker := time.NewTicker(cfg.Scheduler.ScanInterval)
	defer scanTicker.Stop()
	sweepTicker := time.NewTicker(cfg.Scheduler.SweepInterval)
	defer sweepTicker.Stop()

	logger.Info().
		Dur("scan_interval", cfg.Scheduler.ScanInterval).
		Dur("sweep_interval", cfg.Scheduler.SweepInterval).
		Msg("scheduler: запущен")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-scanTicker.C:
			s.enqueue(ctx, domain.TaskRSS, cfg.Scheduler.ScanInterval)
			s.enqueue(ctx, domain.TaskYouTube, cfg.Scheduler.ScanInterval)
			s.enqueue(ctx, domain.TaskScore, cfg.Scheduler.ScanInterval)
			s.enqueue(ctx, domain.TaskDeepSpecs, cfg.Scheduler.ScanInterval)
		case <-sweepTicker.C:
			s.enqueue(ctx, domain.TaskAutoPublish, cfg.Scheduler.SweepInterval)
		}
	}
}

type scheduler struct {
	queue domain.JobQueue
	cache *cache.RedisCache
	log   zerolog.Logger
}

// enqueue ставит задачу в очередь не чаще одного раза за интервал,
// даже если планировщик запущен в нескольких экземплярах.
func (s *scheduler) enqueue(ctx context.Context, task domain.TaskType, interval time.Duration) {
	now := time.Now().UTC()
	key := fmt.Sprintf("sched:%s:%d", task, now.Truncate(interval).Unix())
	err := s.cache.Once(key, interval, func() error {
		return s.queue.Enqueue(ctx, domain.PipelineJob{
			ID:          uuid.NewString(),
			Task:        task,
			Cause:       domain.JobCauseScheduled,
			RequestedAt: now,
		})
	})
	if err != nil {
		s.log.Error().Err(err).Str("task", string(task)).Msg("scheduler: задача не поставлена")
		return
	}
	s.log.Debug().Str("task", string(task)).Msg("scheduler: задача поставлена")
}
