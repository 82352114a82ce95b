package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов конвейера.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL   string `envconfig:"AMQP_URL"`
		Queue string `envconfig:"AMQP_QUEUE" default:"pipeline_jobs"`
	} `envconfig:""`

	Queues struct {
		Jobs string `envconfig:"JOBS_QUEUE_KEY" default:"pipeline_jobs"`
	} `envconfig:""`

	LLM struct {
		APIKey  string        `envconfig:"LLM_API_KEY"`
		BaseURL string        `envconfig:"LLM_BASE_URL"`
		Model   string        `envconfig:"LLM_MODEL" default:"llama-3.3-70b-versatile"`
		Timeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Images struct {
		BaseURL string        `envconfig:"IMAGE_STORE_BASE_URL"`
		Dir     string        `envconfig:"IMAGE_STORE_DIR" default:"./media"`
		Timeout time.Duration `envconfig:"IMAGE_FETCH_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Pipeline struct {
		MaxItemsPerCycle int           `envconfig:"PIPELINE_MAX_ITEMS" default:"20"`
		LockStaleAfter   time.Duration `envconfig:"PIPELINE_LOCK_STALE_AFTER" default:"10m"`
		MaxAttempts      int           `envconfig:"PIPELINE_MAX_PUBLISH_ATTEMPTS" default:"3"`
	} `envconfig:""`

	Scheduler struct {
		ScanInterval  time.Duration `envconfig:"SCAN_INTERVAL" default:"30m"`
		SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	} `envconfig:""`

	Revalidate struct {
		PingURL  string `envconfig:"REVALIDATE_PING_URL"`
		IndexURL string `envconfig:"SEARCH_INDEX_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
