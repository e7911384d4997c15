package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded once at process startup from the environment (§6's
// LOG_LEVEL plus the store/queue/channel credentials the ambient stack
// needs), shared by cmd/producer, cmd/worker, and cmd/api.
type Config struct {
	// Server (cmd/api)
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// Database
	PostgresURL string `envconfig:"POSTGRES_URL" required:"true"`

	// Shared store (§6)
	RedisURL string `envconfig:"REDIS_URL" required:"true"`

	// Job queue binding (§6). Backend selects between the natsqueue and
	// dbqueue bindings; NATSURL is required only when selected.
	QueueBackend string `envconfig:"QUEUE_BACKEND" default:"nats"` // "nats" | "db"
	NATSURL      string `envconfig:"NATS_URL"`
	QueueName    string `envconfig:"QUEUE_NAME" default:"notifications"`

	// Email channel (§4.4.1)
	SMTPHost         string `envconfig:"SMTP_HOST"`
	SMTPPort         int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername     string `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom         string `envconfig:"SMTP_FROM"`
	EmailRatePerSec  int    `envconfig:"EMAIL_RATE_PER_SECOND" default:"10"`
	EmailConcurrency int    `envconfig:"EMAIL_CONCURRENCY" default:"3"`

	// Push channel (§4.4.2)
	FirebaseCredentialsJSON string `envconfig:"FIREBASE_CREDENTIALS_JSON"` // inline credential object
	FirebaseCredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"` // filesystem path, alternative to the above
	PushRatePerSec          int    `envconfig:"PUSH_RATE_PER_SECOND" default:"500"`
	PushConcurrency         int    `envconfig:"PUSH_CONCURRENCY" default:"5"`

	// Chat-bot channel (§4.4.3)
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatRatePerSec   int    `envconfig:"CHAT_RATE_PER_SECOND" default:"25"`
	ChatConcurrency  int    `envconfig:"CHAT_CONCURRENCY" default:"5"`

	// Web-push channel (§4.4.4)
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT_EMAIL"`
	WebRatePerSec   int    `envconfig:"WEB_RATE_PER_SECOND" default:"50"`
	WebConcurrency  int    `envconfig:"WEB_CONCURRENCY" default:"5"`

	// Worker (§4.7)
	WorkerConcurrency         int  `envconfig:"WORKER_CONCURRENCY" default:"10"`
	ResetStatsAfterCompletion bool `envconfig:"RESET_STATS_AFTER_COMPLETION" default:"false"`

	// Producer (§4.6)
	DispatchChannel          string `envconfig:"DISPATCH_CHANNEL" default:"email"`
	DispatchJobName          string `envconfig:"DISPATCH_JOB_NAME" default:"send"`
	DispatchCampaignID       string `envconfig:"DISPATCH_CAMPAIGN_ID"`
	ProducerBatchSize        int    `envconfig:"PRODUCER_BATCH_SIZE" default:"1000"`
	ProducerMaxQueriesPerSec int    `envconfig:"PRODUCER_MAX_QUERIES_PER_SECOND" default:"0"` // 0 == unlimited
	EnqueueRetries           int    `envconfig:"ENQUEUE_RETRIES" default:"3"`
	EnqueueBaseDelayMs       int64  `envconfig:"ENQUEUE_BASE_DELAY_MS" default:"200"`

	// Billing
	PricePerPartCents     int64 `envconfig:"PRICE_PER_PART_CENTS" default:"5"`
	ExpressSurchargeCents int64 `envconfig:"EXPRESS_SURCHARGE_CENTS" default:"2"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
