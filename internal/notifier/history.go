package notifier

import (
	"context"
	"time"

	"frostbase-alarm/internal/models"

	"github.com/google/uuid"
)

// AlarmEventWriter 报警事件持久化接口（repository.AlarmEventsRepository 实现）
type AlarmEventWriter interface {
	CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error
}

// HistoryNotifier 将每次通知记录为报警事件
type HistoryNotifier struct {
	repo AlarmEventWriter
	now  func() time.Time
}

func NewHistoryNotifier(repo AlarmEventWriter) *HistoryNotifier {
	return &HistoryNotifier{repo: repo, now: time.Now}
}

func (h *HistoryNotifier) Notify(ctx context.Context, n models.Notification) error {
	return h.repo.CreateAlarmEvent(ctx, BuildAlarmEvent(n, h.now()))
}

func (h *HistoryNotifier) Close() error { return nil }

// BuildAlarmEvent 由通知构建报警事件
func BuildAlarmEvent(n models.Notification, createdAt time.Time) *models.AlarmEvent {
	return &models.AlarmEvent{
		EventID:     uuid.New().String(),
		TruckID:     n.TruckID,
		Metric:      n.Metric,
		Value:       n.Value,
		MinValue:    n.Min,
		MaxValue:    n.Max,
		Message:     n.Message,
		TriggeredAt: n.At,
		CreatedAt:   createdAt,
	}
}
