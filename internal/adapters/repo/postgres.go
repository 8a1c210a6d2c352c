package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ScenarioRepo        = (*Postgres)(nil)
	_ domain.ConnectionRepo      = (*Postgres)(nil)
	_ domain.ReminderLogRepo     = (*Postgres)(nil)
	_ domain.ReminderHistoryRepo = (*Postgres)(nil)
	_ domain.ReminderTaskRepo    = (*Postgres)(nil)
	_ domain.BusinessMetricRepo  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS scenarios (
	id BIGSERIAL PRIMARY KEY,
	trigger_kind TEXT NOT NULL CHECK (trigger_kind IN ('exact', 'contains', 'callback')),
	trigger_value TEXT NOT NULL,
	response_text TEXT NOT NULL,
	buttons JSONB NOT NULL DEFAULT '[]'::jsonb,
	reminder_delay_min INTEGER NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS scenarios_active_created_idx ON scenarios (active, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS business_connections (
	connection_id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	user_chat_id BIGINT NOT NULL DEFAULT 0,
	can_reply BOOLEAN NOT NULL DEFAULT FALSE,
	is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS reminder_history (
	id BIGSERIAL PRIMARY KEY,
	scenario_id BIGINT NOT NULL,
	chat_id BIGINT NOT NULL,
	connection_id TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS reminder_tasks (
	task_key TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	fire_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS reminder_tasks_status_idx ON reminder_tasks (status, fire_at)`,
	`CREATE TABLE IF NOT EXISTS business_metrics (
	id BIGSERIAL PRIMARY KEY,
	event TEXT NOT NULL,
	scenario_id BIGINT,
	chat_id BIGINT,
	metadata JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate создаёт таблицы, если их ещё нет.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		start := time.Now()
		_, err := p.pool.Exec(ctx, stmt)
		metrics.ObserveNetworkRequest("postgres", "migrate", "schema", start, err)
		if err != nil {
			return storeErr("migrate", err)
		}
	}
	return nil
}

const scenarioColumns = `id, trigger_kind, trigger_value, response_text, buttons, reminder_delay_min, active, created_at`

func scanScenario(row pgx.Row) (domain.Scenario, error) {
	var (
		sc      domain.Scenario
		kind    string
		buttons []byte
		delay   int
	)
	if err := row.Scan(&sc.ID, &kind, &sc.TriggerValue, &sc.ResponseText, &buttons, &delay, &sc.Active, &sc.CreatedAt); err != nil {
		return domain.Scenario{}, err
	}
	decoded, err := decodeButtons(buttons)
	if err != nil {
		return domain.Scenario{}, err
	}
	sc.TriggerKind = domain.TriggerKind(kind)
	sc.Buttons = decoded
	sc.Reminder = domain.ReminderFromMinutes(delay)
	return sc, nil
}

// CreateScenario реализует domain.ScenarioRepo.
func (p *Postgres) CreateScenario(ctx context.Context, draft domain.ScenarioDraft) (int64, error) {
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

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var id int64
	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO scenarios (trigger_kind, trigger_value, response_text, buttons, reminder_delay_min)
VALUES ($1, $2, $3, $4::jsonb, $5)
RETURNING id
`, string(draft.TriggerKind), draft.TriggerValue, draft.ResponseText, string(buttons), delay).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "scenarios_insert", "scenarios", start, err)
	if err != nil {
		return 0, storeErr("create_scenario", err)
	}
	return id, nil
}

// GetScenario реализует domain.ScenarioRepo.
func (p *Postgres) GetScenario(ctx context.Context, id int64) (domain.Scenario, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	sc, err := scanScenario(p.pool.QueryRow(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "scenarios_get", "scenarios", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scenario{}, fmt.Errorf("сценарий %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Scenario{}, storeErr("get_scenario", err)
	}
	return sc, nil
}

// ListScenarios реализует domain.ScenarioLister.
func (p *Postgres) ListScenarios(ctx context.Context, activeOnly bool) ([]domain.Scenario, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+scenarioColumns+`
FROM scenarios
WHERE ($1::boolean = FALSE OR active)
ORDER BY created_at DESC, id DESC
`, activeOnly)
	metrics.ObserveNetworkRequest("postgres", "scenarios_list", "scenarios", start, err)
	if err != nil {
		return nil, storeErr("list_scenarios", err)
	}
	defer rows.Close()

	var list []domain.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
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
func (p *Postgres) UpdateScenario(ctx context.Context, id int64, patch domain.ScenarioPatch) (bool, error) {
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

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE scenarios SET
	trigger_kind = COALESCE($2::text, trigger_kind),
	trigger_value = COALESCE($3::text, trigger_value),
	response_text = COALESCE($4::text, response_text),
	buttons = COALESCE($5::jsonb, buttons),
	reminder_delay_min = COALESCE($6::integer, reminder_delay_min)
WHERE id = $1
`, id, args.kind, args.value, args.text, args.buttons, args.delay)
	metrics.ObserveNetworkRequest("postgres", "scenarios_update", "scenarios", start, err)
	if err != nil {
		return false, storeErr("update_scenario", err)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("сценарий %d: %w", id, domain.ErrNotFound)
	}
	return true, nil
}

// DeleteScenario реализует domain.ScenarioRepo.
func (p *Postgres) DeleteScenario(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "scenarios_delete", "scenarios", start, err)
	if err != nil {
		return storeErr("delete_scenario", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("сценарий %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ToggleScenario реализует domain.ScenarioRepo.
func (p *Postgres) ToggleScenario(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE scenarios SET active = NOT active WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "scenarios_toggle", "scenarios", start, err)
	if err != nil {
		return storeErr("toggle_scenario", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("сценарий %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpsertConnection реализует domain.ConnectionRepo.
func (p *Postgres) UpsertConnection(ctx context.Context, conn domain.BusinessConnection) error {
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_connections (connection_id, user_id, user_chat_id, can_reply, is_enabled, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (connection_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	user_chat_id = EXCLUDED.user_chat_id,
	can_reply = EXCLUDED.can_reply,
	is_enabled = EXCLUDED.is_enabled,
	updated_at = EXCLUDED.updated_at
`, conn.ID, conn.UserID, conn.UserChatID, conn.CanReply, conn.Enabled, conn.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_upsert", "business_connections", start, err)
	return storeErr("upsert_connection", err)
}

// GetConnection реализует domain.ConnectionRepo.
func (p *Postgres) GetConnection(ctx context.Context, id string) (domain.BusinessConnection, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var conn domain.BusinessConnection
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT connection_id, user_id, user_chat_id, can_reply, is_enabled, updated_at
FROM business_connections
WHERE connection_id = $1
`, id).Scan(&conn.ID, &conn.UserID, &conn.UserChatID, &conn.CanReply, &conn.Enabled, &conn.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_get", "business_connections", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BusinessConnection{}, fmt.Errorf("подключение %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BusinessConnection{}, storeErr("get_connection", err)
	}
	return conn, nil
}

// AppendReminderDispatch реализует domain.ReminderLogRepo.
func (p *Postgres) AppendReminderDispatch(ctx context.Context, record domain.ReminderDispatch) error {
	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO reminder_history (scenario_id, chat_id, connection_id, sent_at)
VALUES ($1, $2, $3, $4)
`, record.ScenarioID, record.ChatID, record.ConnectionID, record.SentAt)
	metrics.ObserveNetworkRequest("postgres", "reminder_history_insert", "reminder_history", start, err)
	return storeErr("append_reminder_dispatch", err)
}

// ListReminderDispatches реализует domain.ReminderHistoryRepo.
func (p *Postgres) ListReminderDispatches(ctx context.Context, chatID int64) ([]domain.ReminderDispatch, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT scenario_id, chat_id, connection_id, sent_at
FROM reminder_history
WHERE chat_id = $1
ORDER BY id
`, chatID)
	metrics.ObserveNetworkRequest("postgres", "reminder_history_list", "reminder_history", start, err)
	if err != nil {
		return nil, storeErr("list_reminder_dispatches", err)
	}
	defer rows.Close()

	var out []domain.ReminderDispatch
	for rows.Next() {
		var rec domain.ReminderDispatch
		if err := rows.Scan(&rec.ScenarioID, &rec.ChatID, &rec.ConnectionID, &rec.SentAt); err != nil {
			return nil, storeErr("list_reminder_dispatches", err)
		}
		rec.SentAt = rec.SentAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_reminder_dispatches", err)
	}
	return out, nil
}

// SaveReminderTask реализует domain.ReminderTaskRepo.
func (p *Postgres) SaveReminderTask(ctx context.Context, task domain.ReminderTask) error {
	payload, err := encodeJob(task.Job)
	if err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = domain.ReminderScheduled
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO reminder_tasks (task_key, payload, fire_at, status)
VALUES ($1, $2::jsonb, $3, $4)
ON CONFLICT (task_key) DO UPDATE SET
	payload = EXCLUDED.payload,
	fire_at = EXCLUDED.fire_at,
	status = EXCLUDED.status
`, task.Key, string(payload), task.FireAt, string(task.Status))
	metrics.ObserveNetworkRequest("postgres", "reminder_tasks_upsert", "reminder_tasks", start, err)
	return storeErr("save_reminder_task", err)
}

// ListPendingReminderTasks реализует domain.ReminderTaskRepo.
func (p *Postgres) ListPendingReminderTasks(ctx context.Context) ([]domain.ReminderTask, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT task_key, payload, fire_at
FROM reminder_tasks
WHERE status = $1
ORDER BY fire_at
`, string(domain.ReminderScheduled))
	metrics.ObserveNetworkRequest("postgres", "reminder_tasks_pending", "reminder_tasks", start, err)
	if err != nil {
		return nil, storeErr("list_reminder_tasks", err)
	}
	defer rows.Close()

	var tasks []domain.ReminderTask
	for rows.Next() {
		var (
			task    domain.ReminderTask
			payload []byte
		)
		if err := rows.Scan(&task.Key, &payload, &task.FireAt); err != nil {
			return nil, storeErr("list_reminder_tasks", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, storeErr("list_reminder_tasks", err)
		}
		task.Job = job
		task.Status = domain.ReminderScheduled
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_reminder_tasks", err)
	}
	return tasks, nil
}

// FinishReminderTask реализует domain.ReminderTaskRepo.
func (p *Postgres) FinishReminderTask(ctx context.Context, key string, status domain.ReminderTaskStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE reminder_tasks SET status = $2, finished_at = now()
WHERE task_key = $1
`, key, string(status))
	metrics.ObserveNetworkRequest("postgres", "reminder_tasks_finish", "reminder_tasks", start, err)
	if err != nil {
		return storeErr("finish_reminder_task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задача %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var scenarioID sql.NullInt64
	if metric.ScenarioID != nil {
		scenarioID = sql.NullInt64{Int64: *metric.ScenarioID, Valid: true}
	}
	var chatID sql.NullInt64
	if metric.ChatID != nil {
		chatID = sql.NullInt64{Int64: *metric.ChatID, Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, scenario_id, chat_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, metric.Event, scenarioID, chatID, encodeMetadata(metric.Metadata), metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return storeErr("record_business_metric", err)
}
