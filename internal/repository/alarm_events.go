package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"frostbase-alarm/internal/models"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// AlarmEventsRepository 冷藏车报警事件仓库（truck_alarm_events）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlarmEventFilters 报警事件过滤条件
type AlarmEventFilters struct {
	StartTime *time.Time     // triggered_at >= StartTime
	EndTime   *time.Time     // triggered_at <= EndTime
	Metric    *models.Metric // temperature / humidity
	Limit     int            // 默认 100，最大 1000
}

const schema = `
	CREATE TABLE IF NOT EXISTS truck_alarm_events (
		event_id     UUID PRIMARY KEY,
		truck_id     VARCHAR(64) NOT NULL,
		metric       VARCHAR(32) NOT NULL,
		value        DOUBLE PRECISION NOT NULL,
		min_value    DOUBLE PRECISION NOT NULL,
		max_value    DOUBLE PRECISION NOT NULL,
		message      TEXT NOT NULL,
		triggered_at TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_truck_alarm_events_truck_time
		ON truck_alarm_events (truck_id, triggered_at DESC);
`

// EnsureSchema 建表（幂等）
func (r *AlarmEventsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure truck_alarm_events schema: %w", err)
	}
	return nil
}

// CreateAlarmEvent 写入报警事件
func (r *AlarmEventsRepository) CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.TruckID == "" {
		return fmt.Errorf("truck_id is required")
	}

	query := `
		INSERT INTO truck_alarm_events (
			event_id,
			truck_id,
			metric,
			value,
			min_value,
			max_value,
			message,
			triggered_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.TruckID,
		string(event.Metric),
		event.Value,
		event.MinValue,
		event.MaxValue,
		event.Message,
		event.TriggeredAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	r.logger.Debug("Alarm event created",
		zap.String("event_id", event.EventID),
		zap.String("truck_id", event.TruckID),
		zap.String("metric", string(event.Metric)),
	)
	return nil
}

func buildWhereClause(truckID string, filters AlarmEventFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("truck_id = $%d", *argN)}
	*args = append(*args, truckID)
	*argN++

	// 时间段过滤
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	if filters.Metric != nil {
		where = append(where, fmt.Sprintf("metric = $%d", *argN))
		*args = append(*args, string(*filters.Metric))
		*argN++
	}

	return where
}

// ListAlarmEvents 查询车辆报警历史（按 triggered_at 倒序）
func (r *AlarmEventsRepository) ListAlarmEvents(ctx context.Context, truckID string, filters AlarmEventFilters) ([]*models.AlarmEvent, error) {
	if truckID == "" {
		return []*models.AlarmEvent{}, nil
	}

	args := []interface{}{}
	argN := 1
	where := buildWhereClause(truckID, filters, &args, &argN)

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT
			event_id,
			truck_id,
			metric,
			value,
			min_value,
			max_value,
			message,
			triggered_at,
			created_at
		FROM truck_alarm_events
		WHERE %s
		ORDER BY triggered_at DESC
		LIMIT $%d
	`, strings.Join(where, " AND "), argN)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alarm events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlarmEvent{}
	for rows.Next() {
		var (
			event  models.AlarmEvent
			metric string
		)
		if err := rows.Scan(
			&event.EventID,
			&event.TruckID,
			&metric,
			&event.Value,
			&event.MinValue,
			&event.MaxValue,
			&event.Message,
			&event.TriggeredAt,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		event.Metric = models.Metric(metric)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarm events: %w", err)
	}

	return events, nil
}

// CountAlarmEvents 统计报警事件数量（忽略 Limit）
func (r *AlarmEventsRepository) CountAlarmEvents(ctx context.Context, truckID string, filters AlarmEventFilters) (int, error) {
	if truckID == "" {
		return 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := buildWhereClause(truckID, filters, &args, &argN)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM truck_alarm_events WHERE %s`, strings.Join(where, " AND "))

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count alarm events: %w", err)
	}
	return total, nil
}
