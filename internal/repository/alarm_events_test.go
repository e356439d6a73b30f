package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"frostbase-alarm/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const truckID = "674a4001000000000000001a"

var eventColumns = []string{
	"event_id", "truck_id", "metric", "value", "min_value", "max_value",
	"message", "triggered_at", "created_at",
}

func setupMockAlarmEventsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlarmEventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlarmEventsRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestCreateAlarmEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	now := time.Now()
	event := &models.AlarmEvent{
		EventID:     uuid.New().String(),
		TruckID:     truckID,
		Metric:      models.MetricTemperature,
		Value:       10,
		MinValue:    -5,
		MaxValue:    5,
		Message:     "Temperature out of range: 10.0°C (min -5.0°C, max 5.0°C)",
		TriggeredAt: now,
		CreatedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO truck_alarm_events`).
		WithArgs(event.EventID, truckID, "temperature", 10.0, -5.0, 5.0, event.Message, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlarmEvent(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlarmEvent_Validation(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	ctx := context.Background()
	assert.Error(t, repo.CreateAlarmEvent(ctx, nil))
	assert.Error(t, repo.CreateAlarmEvent(ctx, &models.AlarmEvent{TruckID: truckID}))
	assert.Error(t, repo.CreateAlarmEvent(ctx, &models.AlarmEvent{EventID: uuid.New().String()}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlarmEvent_DBError(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO truck_alarm_events`).WillReturnError(errors.New("connection refused"))

	err := repo.CreateAlarmEvent(context.Background(), &models.AlarmEvent{EventID: uuid.New().String(), TruckID: truckID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create alarm event")
}

func TestListAlarmEvents_WithFilters(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	start := time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	metric := models.MetricHumidity
	triggered := start.Add(time.Hour)

	rows := sqlmock.NewRows(eventColumns).
		AddRow(uuid.New().String(), truckID, "humidity", 95.0, 60.0, 90.0, "Humidity out of range", triggered, triggered)

	mock.ExpectQuery(`SELECT(.+)FROM truck_alarm_events(.+)truck_id = \$1 AND triggered_at >= \$2 AND triggered_at <= \$3 AND metric = \$4(.+)LIMIT \$5`).
		WithArgs(truckID, start, end, "humidity", 20).
		WillReturnRows(rows)

	events, err := repo.ListAlarmEvents(context.Background(), truckID, AlarmEventFilters{
		StartTime: &start,
		EndTime:   &end,
		Metric:    &metric,
		Limit:     20,
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.MetricHumidity, events[0].Metric)
	assert.Equal(t, 95.0, events[0].Value)
	assert.Equal(t, triggered, events[0].TriggeredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlarmEvents_DefaultAndMaxLimit(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	mock.ExpectQuery(`LIMIT \$2`).
		WithArgs(truckID, defaultListLimit).
		WillReturnRows(sqlmock.NewRows(eventColumns))
	mock.ExpectQuery(`LIMIT \$2`).
		WithArgs(truckID, maxListLimit).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := repo.ListAlarmEvents(context.Background(), truckID, AlarmEventFilters{})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = repo.ListAlarmEvents(context.Background(), truckID, AlarmEventFilters{Limit: 5000})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlarmEvents_EmptyTruckID(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	events, err := repo.ListAlarmEvents(context.Background(), "", AlarmEventFilters{})
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAlarmEvents(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM truck_alarm_events WHERE truck_id = \$1`).
		WithArgs(truckID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountAlarmEvents(context.Background(), truckID, AlarmEventFilters{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS truck_alarm_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
