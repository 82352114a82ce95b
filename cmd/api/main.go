package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"autonews-pipeline/internal/adapters/repo"
	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/config"
	"autonews-pipeline/internal/infra/db"
	httpinfra "autonews-pipeline/internal/infra/http"
	applog "autonews-pipeline/internal/infra/log"
	"autonews-pipeline/internal/infra/metrics"
	"autonews-pipeline/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var jobQueue domain.JobQueue
	if cfg.AMQP.URL != "" {
		rabbit, err := queue.NewRabbitJobQueue(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось подключить RabbitMQ")
		}
		defer rabbit.Close()
		jobQueue = rabbit
	} else {
		if cfg.RedisAddr == "" {
			log.Fatal().Msg("api: не указан адрес Redis (REDIS_ADDR)")
		}
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobQueue = queue.NewRedisJobQueue(redisClient, cfg.Queues.Jobs)
	}

	h := &handlers{
		settings:  repoAdapter,
		decisions: repoAdapter,
		queue:     jobQueue,
		stale:     cfg.Pipeline.LockStaleAfter,
	}

	server := httpinfra.NewServer(logger)
	server.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/{type}", h.runTask)
		r.Get("/autopublish/stats", h.stats)
		r.Get("/autopublish/log", h.listLog)
		r.Post("/autopublish/log/{id}/review", h.annotateReview)
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api: сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: некорректное завершение")
	}
}

type handlers struct {
	settings  domain.SettingsRepo
	decisions domain.DecisionLogRepo
	queue     domain.JobQueue
	stale     time.Duration
}

// runTask ставит задачу конвейера в очередь. Если задача того же типа уже
// выполняется, возвращается 409 без постановки.
func (h *handlers) runTask(w http.ResponseWriter, r *http.Request) {
	task := domain.TaskType(chi.URLParam(r, "type"))
	if !domain.KnownTask(task) {
		writeError(w, http.StatusNotFound, "unknown task type")
		return
	}

	locked, err := h.settings.TaskLocked(r.Context(), task, time.Now().UTC(), h.stale)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lock check failed")
		return
	}
	if locked {
		writeJSONStatus(w, http.StatusConflict, map[string]string{"status": "locked"})
		return
	}

	job := domain.PipelineJob{
		ID:          uuid.NewString(),
		Task:        task,
		Cause:       domain.JobCauseManual,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "running", "job_id": job.ID})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.decisions.Stats(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, stats)
}

func (h *handlers) listLog(w http.ResponseWriter, r *http.Request) {
	filter := domain.LogFilter{
		Decision: domain.Decision(r.URL.Query().Get("decision")),
		FeedName: r.URL.Query().Get("feed"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	entries, err := h.decisions.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "log read failed")
		return
	}
	if entries == nil {
		entries = []domain.AutoPublishLog{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

type reviewRequest struct {
	ReviewTimeSeconds int    `json:"review_time_seconds"`
	Notes             string `json:"notes"`
}

// annotateReview дописывает итоги ручного ревью к записи журнала.
func (h *handlers) annotateReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}
	defer r.Body.Close()
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReviewTimeSeconds < 0 {
		writeError(w, http.StatusBadRequest, "review_time_seconds must be non-negative")
		return
	}

	err = h.decisions.AnnotateReview(r.Context(), id, req.ReviewTimeSeconds, req.Notes)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "log entry not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "annotate failed")
	default:
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("api: ошибка сериализации ответа")
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("api: ошибка сериализации ответа")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
