package config

import (
	"strings"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "1,22")
	t.Setenv("STORE_DRIVER", " SQLite ")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.SQLitePath == "" {
		t.Fatalf("неожиданное хранилище: %+v", cfg.Store)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[1] != 22 {
		t.Fatalf("неожиданные админы: %v", cfg.Telegram.AdminIDs)
	}
	if !cfg.Features.SeedDefaults || cfg.Features.DurableReminders || cfg.Features.FoldCallbackTokens {
		t.Fatalf("неожиданные флаги: %+v", cfg.Features)
	}
	if cfg.Webhook() {
		t.Fatal("без TG_WEBHOOK_URL должен использоваться long polling")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("конфиг должен быть валиден: %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	var cfg AppConfig
	cfg.Store.Driver = DriverPostgres
	err := cfg.Validate()
	if err == nil {
		t.Fatal("ожидали ошибку")
	}
	for _, want := range []string{"TG_BOT_TOKEN", "ADMIN_IDS", "PG_DSN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("ожидали упоминание %s в %q", want, err.Error())
		}
	}

	cfg.Store.Driver = "mysql"
	if err := cfg.ValidateStore(); err == nil {
		t.Fatal("неизвестный драйвер должен отклоняться")
	}
}

func TestFromEnvFoldCallbackTokens(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "1")
	t.Setenv("MATCH_FOLD_CALLBACK_TOKENS", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !cfg.Features.FoldCallbackTokens {
		t.Fatal("MATCH_FOLD_CALLBACK_TOKENS=true должен включать свёртку регистра токенов")
	}
}
