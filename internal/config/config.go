package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Insights  InsightsConfig  `mapstructure:"insights"`
	Leads     LeadsConfig     `mapstructure:"leads"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// InsightsConfig points at the upstream market-insights backend that owns
// search, aggregation, and AI insight generation. This service only proxies
// and shapes its responses.
type InsightsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchLimit int           `mapstructure:"search_limit"`
	MarketLimit int           `mapstructure:"market_limit"`
}

type LeadsConfig struct {
	WaitlistSource string        `mapstructure:"waitlist_source"`
	DemoSource     string        `mapstructure:"demo_source"`
	NotifyTimeout  time.Duration `mapstructure:"notify_timeout"`

	// Best-effort notification channels for demo requests. Empty values
	// disable the corresponding sender.
	NotifyWebhookURL string `mapstructure:"notify_webhook_url"`
	TelegramToken    string `mapstructure:"telegram_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

type AnalyticsConfig struct {
	FlushSize     int           `mapstructure:"flush_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	RetentionDays int           `mapstructure:"retention_days"`
	PurgeCron     string        `mapstructure:"purge_cron"`
	MeasurementID string        `mapstructure:"measurement_id"`
}

type AuthConfig struct {
	GoogleClientID     string        `mapstructure:"google_client_id"`
	GoogleClientSecret string        `mapstructure:"google_client_secret"`
	RedirectURL        string        `mapstructure:"redirect_url"`
	ProductAppURL      string        `mapstructure:"product_app_url"`
	StateTTL           time.Duration `mapstructure:"state_ttl"`
}

func Load(path string, envOnly bool) (Config, error) {
	// .env values become visible to AutomaticEnv; a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("insights.base_url", "http://localhost:3001")
	v.SetDefault("insights.timeout", "20s")
	v.SetDefault("insights.search_limit", 30)
	v.SetDefault("insights.market_limit", 50)
	v.SetDefault("leads.waitlist_source", "client_waitlist_modal")
	v.SetDefault("leads.demo_source", "client_support_form")
	v.SetDefault("leads.notify_timeout", "10s")
	v.SetDefault("analytics.flush_size", 10)
	v.SetDefault("analytics.flush_interval", "1500ms")
	v.SetDefault("analytics.dedup_window", "1s")
	v.SetDefault("analytics.session_ttl", "30m")
	v.SetDefault("analytics.retention_days", 90)
	v.SetDefault("analytics.purge_cron", "0 0 4 * * *")
	v.SetDefault("auth.redirect_url", "http://localhost:8080/auth/callback")
	v.SetDefault("auth.product_app_url", "http://localhost:5174")
	v.SetDefault("auth.state_ttl", "10m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
