package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerLevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "bot-gateway")
	logger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться в prod: %s", buf.String())
	}

	logger.Info().Msg("видно")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали JSON: %v", err)
	}
	if entry["service"] != "bot-gateway" || entry["message"] != "видно" {
		t.Fatalf("неожиданная запись: %v", entry)
	}

	buf.Reset()
	devLogger := newLogger(&buf, "dev", "api")
	devLogger.Debug().Msg("отладка")
	if buf.Len() == 0 {
		t.Fatal("в dev debug должен писаться")
	}
}
