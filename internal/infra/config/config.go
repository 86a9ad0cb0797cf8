package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Berlin"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token        string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL   string `envconfig:"TG_WEBHOOK_URL"`
		DigestChatID int64  `envconfig:"TG_DIGEST_CHAT_ID"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	QueueBackend string `envconfig:"QUEUE_BACKEND" default:"redis"`

	Queues struct {
		Jobs string `envconfig:"JOBS_QUEUE_KEY" default:"news_jobs"`
	} `envconfig:""`

	Limits struct {
		DigestMax int `envconfig:"DIGEST_MAX_ITEMS" default:"10"`
		TopTags   int `envconfig:"CLUSTER_TOP_TAGS" default:"5"`
		Window    int `envconfig:"DEFAULT_WINDOW_DAYS" default:"7"`
	} `envconfig:""`

	Relevance struct {
		DictionaryPath string `envconfig:"RELEVANCE_DICTIONARY"`
	} `envconfig:""`

	Schedule struct {
		CollectCron string `envconfig:"COLLECT_CRON" default:"*/30 * * * *"`
		DigestCron  string `envconfig:"DIGEST_CRON" default:"0 8 * * MON"`
	} `envconfig:""`

	Feeds struct {
		Timeout   time.Duration `envconfig:"FEED_TIMEOUT" default:"20s"`
		UserAgent string        `envconfig:"FEED_USER_AGENT" default:"ai-news-digest/1.0"`
	} `envconfig:""`

	Cache struct {
		TTL time.Duration `envconfig:"VIEW_CACHE_TTL" default:"5m"`
	} `envconfig:""`

	API struct {
		Token string `envconfig:"API_TOKEN"`
	} `envconfig:""`

	LLM struct {
		APIKey  string        `envconfig:"LLM_API_KEY"`
		BaseURL string        `envconfig:"LLM_BASE_URL" default:"https://api.mistral.ai/v1"`
		Model   string        `envconfig:"LLM_MODEL" default:"mistral-small-latest"`
		Timeout time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Если рядом лежит .env, значения из него
// подставляются в окружение, не перетирая уже заданные переменные.
func Load() AppConfig {
	cfg, err := load()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func load() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
