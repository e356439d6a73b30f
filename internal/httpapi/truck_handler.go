package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"frostbase-alarm/internal/consumer"
	"frostbase-alarm/internal/models"
	"frostbase-alarm/internal/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LiveSnapshots 进程内监控快照
type LiveSnapshots interface {
	TruckIDs() []string
	Snapshot(truckID string) (models.Snapshot, bool)
}

// CachedSnapshots Redis 快照缓存（consumer.SnapshotCache 实现）
type CachedSnapshots interface {
	Get(ctx context.Context, truckID string) (*models.Snapshot, error)
}

// AlarmHistory 报警历史（repository.AlarmEventsRepository 实现）
type AlarmHistory interface {
	ListAlarmEvents(ctx context.Context, truckID string, filters repository.AlarmEventFilters) ([]*models.AlarmEvent, error)
}

// TruckHandler 冷藏车显示层接口
type TruckHandler struct {
	live    LiveSnapshots
	cache   CachedSnapshots
	history AlarmHistory
	logger  *zap.Logger
}

// NewTruckHandler cache / history 可为 nil（对应基础设施未启用）
func NewTruckHandler(live LiveSnapshots, cache CachedSnapshots, history AlarmHistory, logger *zap.Logger) *TruckHandler {
	return &TruckHandler{
		live:    live,
		cache:   cache,
		history: history,
		logger:  logger,
	}
}

// ListTrucks GET /api/v1/trucks
func (h *TruckHandler) ListTrucks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OkList(h.live.TruckIDs()))
}

// GetSnapshot GET /api/v1/trucks/{truckId}/snapshot
func (h *TruckHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	truckID := mux.Vars(r)["truckId"]

	if snap, ok := h.live.Snapshot(truckID); ok {
		writeJSON(w, http.StatusOK, Ok(snap))
		return
	}

	// 非本实例监控的车辆，回退到 Redis 缓存
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, Fail(fmt.Sprintf("truck %s is not monitored", truckID)))
		return
	}
	snap, err := h.cache.Get(r.Context(), truckID)
	if err != nil {
		if errors.Is(err, consumer.ErrCacheMiss) {
			writeJSON(w, http.StatusNotFound, Fail(fmt.Sprintf("truck %s is not monitored", truckID)))
			return
		}
		h.logger.Error("Failed to read snapshot cache", zap.String("truck_id", truckID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to read snapshot"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

// ListAlarms GET /api/v1/trucks/{truckId}/alarms?start=&end=&metric=&limit=
func (h *TruckHandler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	events, ok := h.queryAlarms(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, OkList(events))
}

// ExportAlarms GET /api/v1/trucks/{truckId}/alarms/export
func (h *TruckHandler) ExportAlarms(w http.ResponseWriter, r *http.Request) {
	events, ok := h.queryAlarms(w, r)
	if !ok {
		return
	}

	data, err := GenerateAlarmHistoryExport(events)
	if err != nil {
		h.logger.Error("Failed to generate alarm export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	truckID := mux.Vars(r)["truckId"]
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alarms-%s.xlsx", truckID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *TruckHandler) queryAlarms(w http.ResponseWriter, r *http.Request) ([]*models.AlarmEvent, bool) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("alarm history is not enabled"))
		return nil, false
	}

	filters, err := parseAlarmFilters(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return nil, false
	}

	truckID := mux.Vars(r)["truckId"]
	events, err := h.history.ListAlarmEvents(r.Context(), truckID, filters)
	if err != nil {
		h.logger.Error("Failed to list alarm events", zap.String("truck_id", truckID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alarm events"))
		return nil, false
	}
	return events, true
}

func parseAlarmFilters(r *http.Request) (repository.AlarmEventFilters, error) {
	q := r.URL.Query()
	var filters repository.AlarmEventFilters

	start, err := parseTime(q.Get("start"))
	if err != nil {
		return filters, fmt.Errorf("start: %w", err)
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		return filters, fmt.Errorf("end: %w", err)
	}
	if start != nil && end != nil && end.Before(*start) {
		return filters, fmt.Errorf("end must not be before start")
	}
	filters.StartTime, filters.EndTime = start, end

	if m := q.Get("metric"); m != "" {
		metric := models.Metric(m)
		if metric != models.MetricTemperature && metric != models.MetricHumidity {
			return filters, fmt.Errorf("unknown metric %q", m)
		}
		filters.Metric = &metric
	}

	if filters.Limit, err = parseInt(q.Get("limit"), 0); err != nil {
		return filters, fmt.Errorf("limit: %w", err)
	}
	return filters, nil
}
