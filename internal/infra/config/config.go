package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища сценариев.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token         string  `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string  `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string  `envconfig:"TG_WEBHOOK_SECRET"`
		PollTimeout   int     `envconfig:"TG_POLL_TIMEOUT" default:"30"`
		AdminIDs      []int64 `envconfig:"ADMIN_IDS"`
	} `envconfig:""`

	Store struct {
		Driver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"data/bot.db"`
		PGDSN      string `envconfig:"PG_DSN"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Features struct {
		DurableReminders   bool `envconfig:"REMINDERS_DURABLE" default:"false"`
		FoldCallbackTokens bool `envconfig:"MATCH_FOLD_CALLBACK_TOKENS" default:"false"`
		SeedDefaults       bool `envconfig:"SEED_DEFAULTS" default:"true"`
	} `envconfig:""`

	APIToken string `envconfig:"API_TOKEN"`
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env не найден, используем переменные окружения")
	}
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// FromEnv разбирает переменные окружения без чтения .env.
func FromEnv() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return cfg, nil
}

// Webhook сообщает, что апдейты приходят через вебхук, а не long polling.
func (c AppConfig) Webhook() bool {
	return c.Telegram.WebhookURL != ""
}

// Validate проверяет настройки, нужные бот-шлюзу.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TG_BOT_TOKEN не задан"))
	}
	if len(c.Telegram.AdminIDs) == 0 {
		errs = append(errs, errors.New("ADMIN_IDS не задан"))
	}
	if err := c.ValidateStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateStore проверяет выбор хранилища.
func (c AppConfig) ValidateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH не задан")
		}
	case DriverPostgres:
		if c.Store.PGDSN == "" {
			return errors.New("PG_DSN не задан для STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}
