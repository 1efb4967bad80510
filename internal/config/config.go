package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "cc"

type ServerConfig struct {
	Addr        string   `yaml:"addr"        envconfig:"SERVER_ADDR"`
	Mode        string   `yaml:"mode"        envconfig:"SERVER_MODE"` // debug / release / test
	CORSOrigins []string `yaml:"corsOrigins" envconfig:"CORS_ORIGINS"`
	// 写接口限流：每秒请求数与突发
	RateLimit      float64       `yaml:"rateLimit"      envconfig:"RATE_LIMIT"`
	RateBurst      int           `yaml:"rateBurst"      envconfig:"RATE_BURST"`
	ShutdownWait   time.Duration `yaml:"shutdownWait"   envconfig:"SHUTDOWN_WAIT"`
	PublicBaseURL  string        `yaml:"publicBaseURL"  envconfig:"PUBLIC_BASE_URL"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes" envconfig:"MAX_UPLOAD_BYTES"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"          envconfig:"MYSQL_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"MYSQL_MAX_OPEN"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"MYSQL_MAX_IDLE"`
	AutoMigrate  bool   `yaml:"autoMigrate"  envconfig:"MYSQL_AUTO_MIGRATE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"     envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       envconfig:"REDIS_DB"`
}

type JWTConfig struct {
	AccessSecret  string        `yaml:"accessSecret"  envconfig:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `yaml:"refreshSecret" envconfig:"JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `yaml:"accessTTL"     envconfig:"JWT_ACCESS_TTL"`
	RefreshTTL    time.Duration `yaml:"refreshTTL"    envconfig:"JWT_REFRESH_TTL"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"     envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port"     envconfig:"SMTP_PORT"`
	Username string `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"password" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from"     envconfig:"SMTP_FROM"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic"   envconfig:"KAFKA_TOPIC"`
}

type ElasticConfig struct {
	Addresses []string `yaml:"addresses" envconfig:"ELASTIC_ADDRESSES"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend"         envconfig:"STORAGE_BACKEND"` // supabase / gcs / memory
	SupabaseURL     string `yaml:"supabaseURL"     envconfig:"SUPABASE_URL"`
	SupabaseKey     string `yaml:"supabaseKey"     envconfig:"SUPABASE_SERVICE_KEY"`
	GCSCredentials  string `yaml:"gcsCredentials"  envconfig:"GCS_CREDENTIALS_FILE"`
	AvatarBucket    string `yaml:"avatarBucket"    envconfig:"AVATAR_BUCKET"`
	CommunityBucket string `yaml:"communityBucket" envconfig:"COMMUNITY_BUCKET"`
	ContentBucket   string `yaml:"contentBucket"   envconfig:"CONTENT_BUCKET"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secretKey"     envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret string `yaml:"webhookSecret" envconfig:"STRIPE_WEBHOOK_SECRET"`
	Currency      string `yaml:"currency"      envconfig:"STRIPE_CURRENCY"`
	// ConnectAccount 资金转入的 Connect 账户，平台费通过 application fee 留存
	ConnectAccount string        `yaml:"connectAccount" envconfig:"STRIPE_CONNECT_ACCOUNT"`
	HoldTTL        time.Duration `yaml:"holdTTL"        envconfig:"STRIPE_HOLD_TTL"`
}

type CertificateConfig struct {
	Enabled   bool   `yaml:"enabled"   envconfig:"CERT_RENDER_ENABLED"`
	ChromeBin string `yaml:"chromeBin" envconfig:"CERT_CHROME_BIN"`
}

type JobsConfig struct {
	OutboxInterval time.Duration `yaml:"outboxInterval"   envconfig:"OUTBOX_INTERVAL"`
	OutboxBatch    int           `yaml:"outboxBatch"      envconfig:"OUTBOX_BATCH"`
	OutboxMaxRetry int           `yaml:"outboxMaxRetry"   envconfig:"OUTBOX_MAX_RETRY"`
	ReconcileSpec  string        `yaml:"reconcileSpec"    envconfig:"RECONCILE_SPEC"`
	ReconcileBatch int           `yaml:"reconcileBatch"   envconfig:"RECONCILE_BATCH"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Redis       RedisConfig       `yaml:"redis"`
	JWT         JWTConfig         `yaml:"jwt"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Elastic     ElasticConfig     `yaml:"elastic"`
	Storage     StorageConfig     `yaml:"storage"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Certificate CertificateConfig `yaml:"certificate"`
	Jobs        JobsConfig        `yaml:"jobs"`
	PolicyFile  string            `yaml:"policyFile" envconfig:"POLICY_FILE"`
}

// Default 开发环境默认值
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			Mode:           "debug",
			CORSOrigins:    []string{"http://localhost:3000"},
			RateLimit:      5,
			RateBurst:      10,
			ShutdownWait:   10 * time.Second,
			PublicBaseURL:  "http://localhost:8080",
			MaxUploadBytes: 5 << 20,
		},
		MySQL: MySQLConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			AutoMigrate:  true,
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		SMTP:  SMTPConfig{Port: 587},
		Kafka: KafkaConfig{Topic: "crowd-conscious-events"},
		Storage: StorageConfig{
			Backend:         "supabase",
			AvatarBucket:    "profile-pictures",
			CommunityBucket: "community-images",
			ContentBucket:   "content-images",
		},
		Stripe: StripeConfig{Currency: "usd", HoldTTL: 30 * time.Minute},
		Jobs: JobsConfig{
			OutboxInterval: time.Second,
			OutboxBatch:    200,
			OutboxMaxRetry: 5,
			ReconcileSpec:  "@every 10m",
			ReconcileBatch: 500,
		},
	}
}

// Load 依次加载：默认值 -> .env -> yaml 文件 -> 环境变量
func Load(configFile string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MySQL.DSN == "" {
		return errors.New("mysql dsn required")
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("jwt secrets required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("jwt access and refresh secrets must differ")
	}
	switch c.Storage.Backend {
	case "supabase", "gcs", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Jobs.OutboxBatch <= 0 {
		return errors.New("outbox batch must be positive")
	}
	return nil
}
