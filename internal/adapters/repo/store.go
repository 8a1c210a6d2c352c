package repo

import (
	"context"
	"fmt"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/config"
	"github.com/evil-zenix/business-bot-project/internal/infra/db"
)

// Store объединяет все репозитории сервиса независимо от драйвера.
type Store interface {
	domain.ScenarioRepo
	domain.ConnectionRepo
	domain.ReminderLogRepo
	domain.ReminderHistoryRepo
	domain.ReminderTaskRepo
	domain.BusinessMetricRepo
	Migrate(ctx context.Context) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

// Open подключает хранилище по STORE_DRIVER и применяет схему.
// Возвращаемая функция закрывает соединения.
func Open(ctx context.Context, cfg config.AppConfig) (Store, func(), error) {
	var (
		store   Store
		closeFn func()
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(cfg.Store.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("подключение к postgres: %w", err)
		}
		store, closeFn = NewPostgres(pool), pool.Close
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("открытие sqlite: %w", err)
		}
		store, closeFn = NewSQLite(conn), func() { _ = conn.Close() }
	default:
		return nil, nil, fmt.Errorf("неизвестный драйвер %q", cfg.Store.Driver)
	}
	if err := store.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("миграция: %w", err)
	}
	return store, closeFn, nil
}
