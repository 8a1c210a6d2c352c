package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// SQLite реализует те же репозитории поверх файла SQLite.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domain.ScenarioRepo        = (*SQLite)(nil)
	_ domain.ConnectionRepo      = (*SQLite)(nil)
	_ domain.ReminderLogRepo     = (*SQLite)(nil)
	_ domain.ReminderHistoryRepo = (*SQLite)(nil)
	_ domain.ReminderTaskRepo    = (*SQLite)(nil)
	_ domain.BusinessMetricRepo  = (*SQLite)(nil)
)

// NewSQLite создаёт адаптер. Время хранится в наносекундах Unix.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS scenarios (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trigger_kind TEXT NOT NULL CHECK (trigger_kind IN ('exact', 'contains', 'callback')),
	trigger_value TEXT NOT NULL,
	response_text TEXT NOT NULL,
	buttons TEXT NOT NULL DEFAULT '[]',
	reminder_delay_min INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_scenarios_active_created ON scenarios(active, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS business_connections (
	connection_id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	user_chat_id INTEGER NOT NULL DEFAULT 0,
	can_reply INTEGER NOT NULL DEFAULT 0,
	is_enabled INTEGER NOT NULL DEFAULT 1,
	updated_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS reminder_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario_id INTEGER NOT NULL,
	chat_id INTEGER NOT NULL,
	connection_id TEXT NOT NULL,
	sent_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS reminder_tasks (
	task_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	fire_at INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	created_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_reminder_tasks_status ON reminder_tasks(status, fire_at)`,
	`CREATE TABLE IF NOT EXISTS business_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event TEXT NOT NULL,
	scenario_id INTEGER,
	chat_id INTEGER,
	metadata TEXT,
	occurred_at INTEGER NOT NULL
)`,
}

// Migrate создаёт таблицы, если их ещё нет.
func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		start := time.Now()
		_, err := s.db.ExecContext(ctx, stmt)
		metrics.ObserveNetworkRequest("sqlite", "migrate", "schema", start, err)
		if err != nil {
			return storeErr("migrate", err)
		}
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteScenario(row sqlScanner) (domain.Scenario, error) {
	var (
		sc        domain.Scenario
		kind      string
		buttons   string
		delay     int
		createdAt int64
	)
	if err := row.Scan(&sc.ID, &kind, &sc.TriggerValue, &sc.ResponseText, &buttons, &delay, &sc.Active, &createdAt); err != nil {
		return domain.Scenario{}, err
	}
	decoded, err := decodeButtons([]byte(buttons))
	if err != nil {
		return domain.Scenario{}, err
	}
	sc.TriggerKind = domain.TriggerKind(kind)
	sc.Buttons = decoded
	sc.Reminder = domain.ReminderFromMinutes(delay)
	sc.CreatedAt = time.Unix(0, createdAt).UTC()
	return sc, nil
}

// CreateScenario реализует domain.ScenarioRepo.
func (s *SQLite) CreateScenario(ctx context.Context, draft domain.ScenarioDraft) (int64, error) {
	if err := draft.Validate(); err != nil {
		return 0, err
	}
	buttons, err := encodeButtons(draft.Buttons)
	if err != nil {
		return 0, err
	}
	delay := 0
	if draft.Reminder != nil {
		delay = draft.Reminder.DelayMinutes
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO scenarios (trigger_kind, trigger_value, response_text, buttons, reminder_delay_min, active, created_at)
VALUES (?, ?, ?, ?, ?, 1, ?)
`, string(draft.TriggerKind), draft.TriggerValue, draft.ResponseText, string(buttons), delay, s.now().UTC().UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "scenarios_insert", "scenarios", start, err)
	if err != nil {
		return 0, storeErr("create_scenario", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("create_scenario", err)
	}
	return id, nil
}

// GetScenario реализует domain.ScenarioRepo.
func (s *SQLite) GetScenario(ctx context.Context, id int64) (domain.Scenario, error) {
	start := time.Now()
	sc, err := scanSQLiteScenario(s.db.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id))
	metrics.ObserveNetworkRequest("sqlite", "scenarios_get", "scenarios", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Scenario{}, fmt.Errorf("сценарий %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Scenario{}, storeErr("get_scenario", err)
	}
	return sc, nil
}

// ListScenarios реализует domain.ScenarioLister.
func (s *SQLite) ListScenarios(ctx context.Context, activeOnly bool) ([]domain.Scenario, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+scenarioColumns+`
FROM scenarios
WHERE (? = 0 OR active = 1)
ORDER BY created_at DESC, id DESC
`, activeOnly)
	metrics.ObserveNetworkRequest("sqlite", "scenarios_list", "scenarios", start, err)
	if err != nil {
		return nil, storeErr("list_scenarios", err)
	}
	defer rows.Close()

	var list []domain.Scenario
	for rows.Next() {
		sc, err := scanSQLiteScenario(rows)
		if err != nil {
			return nil, storeErr("list_scenarios", err)
		}
		list = append(list, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_scenarios", err)
	}
	return list, nil
}

// UpdateScenario реализует domain.ScenarioRepo.
func (s *SQLite) UpdateScenario(ctx context.Context, id int64, patch domain.ScenarioPatch) (bool, error) {
	if patch.IsEmpty() {
		return false, nil
	}
	if err := patch.Validate(); err != nil {
		return false, err
	}
	args, err := newPatchArgs(patch)
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
UPDATE scenarios SET
	trigger_kind = COALESCE(?, trigger_kind),
	trigger_value = COALESCE(?, trigger_value),
	response_text = COALESCE(?, response_text),
	buttons = COALESCE(?, buttons),
	reminder_delay_min = COALESCE(?, reminder_delay_min)
WHERE id = ?
`, args.kind, args.value, args.text, args.buttons, args.delay, id)
	metrics.ObserveNetworkRequest("sqlite", "scenarios_update", "scenarios", start, err)
	if err != nil {
		return false, storeErr("update_scenario", err)
	}
	if err := s.expectRow(res, "update_scenario"); err != nil {
		return false, fmt.Errorf("сценарий %d: %w", id, err)
	}
	return true, nil
}

// DeleteScenario реализует domain.ScenarioRepo.
func (s *SQLite) DeleteScenario(ctx context.Context, id int64) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	metrics.ObserveNetworkRequest("sqlite", "scenarios_delete", "scenarios", start, err)
	if err != nil {
		return storeErr("delete_scenario", err)
	}
	if err := s.expectRow(res, "delete_scenario"); err != nil {
		return fmt.Errorf("сценарий %d: %w", id, err)
	}
	return nil
}

// ToggleScenario реализует domain.ScenarioRepo.
func (s *SQLite) ToggleScenario(ctx context.Context, id int64) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE scenarios SET active = 1 - active WHERE id = ?`, id)
	metrics.ObserveNetworkRequest("sqlite", "scenarios_toggle", "scenarios", start, err)
	if err != nil {
		return storeErr("toggle_scenario", err)
	}
	if err := s.expectRow(res, "toggle_scenario"); err != nil {
		return fmt.Errorf("сценарий %d: %w", id, err)
	}
	return nil
}

func (s *SQLite) expectRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertConnection реализует domain.ConnectionRepo.
func (s *SQLite) UpsertConnection(ctx context.Context, conn domain.BusinessConnection) error {
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = s.now().UTC()
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO business_connections (connection_id, user_id, user_chat_id, can_reply, is_enabled, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(connection_id) DO UPDATE SET
	user_id = excluded.user_id,
	user_chat_id = excluded.user_chat_id,
	can_reply = excluded.can_reply,
	is_enabled = excluded.is_enabled,
	updated_at = excluded.updated_at
`, conn.ID, conn.UserID, conn.UserChatID, conn.CanReply, conn.Enabled, conn.UpdatedAt.UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "connections_upsert", "business_connections", start, err)
	return storeErr("upsert_connection", err)
}

// GetConnection реализует domain.ConnectionRepo.
func (s *SQLite) GetConnection(ctx context.Context, id string) (domain.BusinessConnection, error) {
	var (
		conn      domain.BusinessConnection
		updatedAt int64
	)
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `
SELECT connection_id, user_id, user_chat_id, can_reply, is_enabled, updated_at
FROM business_connections
WHERE connection_id = ?
`, id).Scan(&conn.ID, &conn.UserID, &conn.UserChatID, &conn.CanReply, &conn.Enabled, &updatedAt)
	metrics.ObserveNetworkRequest("sqlite", "connections_get", "business_connections", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BusinessConnection{}, fmt.Errorf("подключение %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BusinessConnection{}, storeErr("get_connection", err)
	}
	conn.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return conn, nil
}

// AppendReminderDispatch реализует domain.ReminderLogRepo.
func (s *SQLite) AppendReminderDispatch(ctx context.Context, record domain.ReminderDispatch) error {
	if record.SentAt.IsZero() {
		record.SentAt = s.now().UTC()
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reminder_history (scenario_id, chat_id, connection_id, sent_at)
VALUES (?, ?, ?, ?)
`, record.ScenarioID, record.ChatID, record.ConnectionID, record.SentAt.UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "reminder_history_insert", "reminder_history", start, err)
	return storeErr("append_reminder_dispatch", err)
}

// ListReminderDispatches реализует domain.ReminderHistoryRepo.
func (s *SQLite) ListReminderDispatches(ctx context.Context, chatID int64) ([]domain.ReminderDispatch, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT scenario_id, chat_id, connection_id, sent_at
FROM reminder_history
WHERE chat_id = ?
ORDER BY id
`, chatID)
	metrics.ObserveNetworkRequest("sqlite", "reminder_history_list", "reminder_history", start, err)
	if err != nil {
		return nil, storeErr("list_reminder_dispatches", err)
	}
	defer rows.Close()

	var out []domain.ReminderDispatch
	for rows.Next() {
		var (
			rec    domain.ReminderDispatch
			sentAt int64
		)
		if err := rows.Scan(&rec.ScenarioID, &rec.ChatID, &rec.ConnectionID, &sentAt); err != nil {
			return nil, storeErr("list_reminder_dispatches", err)
		}
		rec.SentAt = time.Unix(0, sentAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_reminder_dispatches", err)
	}
	return out, nil
}

// SaveReminderTask реализует domain.ReminderTaskRepo.
func (s *SQLite) SaveReminderTask(ctx context.Context, task domain.ReminderTask) error {
	payload, err := encodeJob(task.Job)
	if err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = domain.ReminderScheduled
	}
	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO reminder_tasks (task_key, payload, fire_at, status, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(task_key) DO UPDATE SET
	payload = excluded.payload,
	fire_at = excluded.fire_at,
	status = excluded.status
`, task.Key, string(payload), task.FireAt.UnixNano(), string(task.Status), s.now().UTC().UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "reminder_tasks_upsert", "reminder_tasks", start, err)
	return storeErr("save_reminder_task", err)
}

// ListPendingReminderTasks реализует domain.ReminderTaskRepo.
func (s *SQLite) ListPendingReminderTasks(ctx context.Context) ([]domain.ReminderTask, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT task_key, payload, fire_at
FROM reminder_tasks
WHERE status = ?
ORDER BY fire_at
`, string(domain.ReminderScheduled))
	metrics.ObserveNetworkRequest("sqlite", "reminder_tasks_pending", "reminder_tasks", start, err)
	if err != nil {
		return nil, storeErr("list_reminder_tasks", err)
	}
	defer rows.Close()

	var tasks []domain.ReminderTask
	for rows.Next() {
		var (
			task    domain.ReminderTask
			payload string
			fireAt  int64
		)
		if err := rows.Scan(&task.Key, &payload, &fireAt); err != nil {
			return nil, storeErr("list_reminder_tasks", err)
		}
		job, err := decodeJob([]byte(payload))
		if err != nil {
			return nil, storeErr("list_reminder_tasks", err)
		}
		task.Job = job
		task.FireAt = time.Unix(0, fireAt).UTC()
		task.Status = domain.ReminderScheduled
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_reminder_tasks", err)
	}
	return tasks, nil
}

// FinishReminderTask реализует domain.ReminderTaskRepo.
func (s *SQLite) FinishReminderTask(ctx context.Context, key string, status domain.ReminderTaskStatus) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
UPDATE reminder_tasks SET status = ?, finished_at = ?
WHERE task_key = ?
`, string(status), s.now().UTC().UnixNano(), key)
	metrics.ObserveNetworkRequest("sqlite", "reminder_tasks_finish", "reminder_tasks", start, err)
	if err != nil {
		return storeErr("finish_reminder_task", err)
	}
	if err := s.expectRow(res, "finish_reminder_task"); err != nil {
		return fmt.Errorf("задача %s: %w", key, err)
	}
	return nil
}

// RecordBusinessMetric сохраняет бизнесовую метрику.
func (s *SQLite) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = s.now().UTC()
	}
	var scenarioID, chatID sql.NullInt64
	if metric.ScenarioID != nil {
		scenarioID = sql.NullInt64{Int64: *metric.ScenarioID, Valid: true}
	}
	if metric.ChatID != nil {
		chatID = sql.NullInt64{Int64: *metric.ChatID, Valid: true}
	}
	var metadata sql.NullString
	if data := encodeMetadata(metric.Metadata); data != nil {
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO business_metrics (event, scenario_id, chat_id, metadata, occurred_at)
VALUES (?, ?, ?, ?, ?)
`, metric.Event, scenarioID, chatID, metadata, metric.OccurredAt.UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "business_metrics_insert", "business_metrics", start, err)
	return storeErr("record_business_metric", err)
}
