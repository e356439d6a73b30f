package notifier

import (
	"context"
	"errors"
	"sync"

	"frostbase-alarm/internal/models"

	"go.uber.org/zap"
)

// Notifier 超限通知出口（提示音 + 弹窗消息）
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
	Close() error
}

// Multi 扇出到多个 Notifier；单个出口失败不影响其它出口
type Multi struct {
	sinks     []Notifier
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewMulti 创建扇出通知器（nil 出口会被忽略）
func NewMulti(logger *zap.Logger, sinks ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len 出口数量
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, n); err != nil {
			m.logger.Error("Failed to deliver notification",
				zap.String("truck_id", n.TruckID),
				zap.String("metric", string(n.Metric)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有出口，只执行一次
func (m *Multi) Close() error {
	m.closeOnce.Do(func() {
		var errs []error
		for _, s := range m.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}

// LogNotifier 将通知写入日志
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.logger.Warn(n.Message,
		zap.String("truck_id", n.TruckID),
		zap.String("metric", string(n.Metric)),
		zap.Float64("value", n.Value),
		zap.Float64("min", n.Min),
		zap.Float64("max", n.Max),
		zap.String("cue", n.Cue),
		zap.Time("at", n.At),
	)
	return nil
}

func (l *LogNotifier) Close() error { return nil }

// Shared 多个 monitor 共用同一出口时使用：Close 不向下传递，由持有者统一关闭
func Shared(n Notifier) Notifier {
	return shared{n}
}

type shared struct {
	Notifier
}

func (shared) Close() error { return nil }
