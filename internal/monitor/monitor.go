package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frostbase-alarm/internal/client"
	"frostbase-alarm/internal/evaluator"
	"frostbase-alarm/internal/metrics"
	"frostbase-alarm/internal/models"
	"frostbase-alarm/internal/notifier"

	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrClosed         = errors.New("monitor is shut down")
)

// ReadingSource 最新读数来源
type ReadingSource interface {
	FetchLatestReading(ctx context.Context, truckID string) (*models.Reading, error)
}

// ThresholdSource 阈值来源
type ThresholdSource interface {
	FetchThresholds(ctx context.Context) (*models.Thresholds, error)
}

// SnapshotSink 快照发布（Redis 缓存等）
type SnapshotSink interface {
	Publish(ctx context.Context, snap models.Snapshot) error
}

// Options 单车监控配置
type Options struct {
	TruckID       string
	PollInterval  time.Duration
	AlertCooldown time.Duration

	// FetchTimeout 单次拉取超时，默认等于 PollInterval
	FetchTimeout time.Duration
	// ThresholdRefresh 阈值重新拉取间隔，0 表示只在未知时拉取
	ThresholdRefresh time.Duration
}

// Deps 外部依赖，Readings/Thresholds/Notifier 必填
type Deps struct {
	Readings   ReadingSource
	Thresholds ThresholdSource
	Notifier   notifier.Notifier
	Snapshots  SnapshotSink
	Metrics    *metrics.Metrics
	Scheduler  Scheduler
	Clock      Clock
	Logger     *zap.Logger
}

// Monitor 单辆冷藏车的遥测报警监控
type Monitor struct {
	opts   Options
	deps   Deps
	logger *zap.Logger

	// mu 保护以下显示状态（单写多读）
	mu           sync.RWMutex
	state        models.AlertState
	reading      *models.Reading
	thresholds   *models.Thresholds
	thresholdsAt time.Time
	lastError    string
	updatedAt    time.Time
	closed       bool
	started      bool

	// tickMu 保证 tick 不重叠
	tickMu sync.Mutex

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
}

// New 创建监控
func New(opts Options, deps Deps) (*Monitor, error) {
	if opts.TruckID == "" {
		return nil, fmt.Errorf("truck id is required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", opts.PollInterval)
	}
	if opts.AlertCooldown < 0 {
		return nil, fmt.Errorf("alert cooldown must not be negative, got %s", opts.AlertCooldown)
	}
	if deps.Readings == nil || deps.Thresholds == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("readings, thresholds and notifier are required")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = opts.PollInterval
	}
	if deps.Scheduler == nil {
		deps.Scheduler = systemScheduler{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Monitor{
		opts:       opts,
		deps:       deps,
		logger:     deps.Logger.With(zap.String("truck_id", opts.TruckID)),
		state:      models.NewAlertState(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		done:       make(chan struct{}),
	}, nil
}

// TruckID 监控的车辆
func (m *Monitor) TruckID() string { return m.opts.TruckID }

// Start 启动轮询（立即执行一次，之后每 PollInterval 执行一次）
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	ticker := m.deps.Scheduler.NewTicker(m.opts.PollInterval)

	m.logger.Info("Telemetry monitor started",
		zap.Duration("poll_interval", m.opts.PollInterval),
		zap.Duration("alert_cooldown", m.opts.AlertCooldown),
	)

	go m.loop(ctx, ticker)
	return nil
}

func (m *Monitor) loop(ctx context.Context, ticker Ticker) {
	defer close(m.done)
	defer ticker.Stop()

	// 立即执行一次
	m.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Telemetry monitor stopped", zap.Error(ctx.Err()))
			return
		case <-m.lifeCtx.Done():
			m.logger.Info("Telemetry monitor stopped")
			return
		case <-ticker.C():
			m.Tick(ctx)
		}
	}
}

// Tick 执行一次拉取 + 评估 + 通知
func (m *Monitor) Tick(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.isClosed() {
		return
	}

	// Shutdown 时取消进行中的拉取、通知和快照发布
	tickCtx, tickCancel := context.WithCancel(ctx)
	defer tickCancel()
	stop := context.AfterFunc(m.lifeCtx, tickCancel)
	defer stop()

	fetchCtx, cancel := context.WithTimeout(tickCtx, m.opts.FetchTimeout)
	defer cancel()

	th := m.ensureThresholds(fetchCtx)

	reading, err := m.deps.Readings.FetchLatestReading(fetchCtx, m.opts.TruckID)
	now := m.deps.Clock.Now()
	if err != nil {
		m.commitFailure(tickCtx, err, now)
		return
	}

	m.commitReading(tickCtx, *reading, th, now)
}

// ensureThresholds 阈值未知（或到期）时拉取，失败时沿用旧值
func (m *Monitor) ensureThresholds(ctx context.Context) *models.Thresholds {
	m.mu.RLock()
	current := m.thresholds
	fetchedAt := m.thresholdsAt
	m.mu.RUnlock()

	if current != nil {
		if m.opts.ThresholdRefresh <= 0 || m.deps.Clock.Now().Sub(fetchedAt) < m.opts.ThresholdRefresh {
			return current
		}
	}

	th, err := m.deps.Thresholds.FetchThresholds(ctx)
	if err != nil {
		m.logger.Warn("Failed to fetch thresholds",
			zap.String("kind", client.Kind(err)),
			zap.Bool("thresholds_known", current != nil),
			zap.Error(err),
		)
		if current == nil && m.deps.Metrics != nil {
			m.deps.Metrics.ObserveThresholds(m.opts.TruckID, false)
		}
		return current
	}

	m.mu.Lock()
	if !m.closed {
		m.thresholds = th
		m.thresholdsAt = m.deps.Clock.Now()
	}
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveThresholds(m.opts.TruckID, true)
	}
	m.logger.Debug("Thresholds loaded",
		zap.Float64("min_temperature", th.MinTemperature),
		zap.Float64("max_temperature", th.MaxTemperature),
		zap.Float64("min_humidity", th.MinHumidity),
		zap.Float64("max_humidity", th.MaxHumidity),
	)
	return th
}

// commitFailure 拉取失败：保留上次读数，不改变报警状态
func (m *Monitor) commitFailure(ctx context.Context, err error, now time.Time) {
	kind := client.Kind(err)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("Discarding fetch failure after shutdown", zap.Error(err))
		return
	}
	m.lastError = kind
	m.updatedAt = now
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Warn("Failed to fetch latest reading",
		zap.String("kind", kind),
		zap.Error(err),
	)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveTick(m.opts.TruckID, kind)
	}
	m.publishSnapshot(ctx, snap)
}

// commitReading 写入读数；阈值已知时评估并派发通知
func (m *Monitor) commitReading(ctx context.Context, reading models.Reading, th *models.Thresholds, now time.Time) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("Discarding reading after shutdown")
		return
	}

	m.reading = &reading
	m.lastError = ""
	m.updatedAt = now

	var notes []models.Notification
	if th != nil {
		res := evaluator.Evaluate(m.state, reading, *th, now, m.opts.AlertCooldown)
		m.state = res.State
		notes = res.Notifications
	}
	state := m.state.Clone()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if th == nil {
		m.logger.Debug("Thresholds unknown, skipping evaluation")
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveTick(m.opts.TruckID, "ok")
		m.deps.Metrics.ObserveReading(reading, state)
	}

	// 通知失败不回滚状态，出口错误由 Multi 记录
	for _, n := range notes {
		if err := m.deps.Notifier.Notify(ctx, n); err != nil {
			m.logger.Debug("Notification dispatch incomplete",
				zap.String("metric", string(n.Metric)),
				zap.Error(err),
			)
		}
		if m.deps.Metrics != nil {
			m.deps.Metrics.ObserveNotification(m.opts.TruckID, n.Metric)
		}
	}

	m.publishSnapshot(ctx, snap)
}

func (m *Monitor) publishSnapshot(ctx context.Context, snap models.Snapshot) {
	if m.deps.Snapshots == nil {
		return
	}
	if err := m.deps.Snapshots.Publish(ctx, snap); err != nil {
		m.logger.Warn("Failed to publish snapshot", zap.Error(err))
	}
}

// Shutdown 停止轮询并释放通知资源，可重复调用
func (m *Monitor) Shutdown() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		m.mu.Unlock()

		m.lifeCancel()

		// 等待进行中的 tick 结束
		m.tickMu.Lock()
		m.tickMu.Unlock()
		if started {
			<-m.done
		}

		if err := m.deps.Notifier.Close(); err != nil {
			m.logger.Warn("Failed to close notifier", zap.Error(err))
		}
		m.logger.Info("Telemetry monitor shut down")
	})
}

// Snapshot 显示层快照副本
func (m *Monitor) Snapshot() models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// State 报警状态副本
func (m *Monitor) State() models.AlertState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

func (m *Monitor) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Monitor) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		TruckID:              m.opts.TruckID,
		TemperatureAlertFlag: m.state.TemperatureOutOfRange(),
		HumidityAlertFlag:    m.state.HumidityOutOfRange(),
		TemperatureStatus:    m.state.Temperature.Status,
		HumidityStatus:       m.state.Humidity.Status,
		ThresholdsKnown:      m.thresholds != nil,
		LastError:            m.lastError,
		UpdatedAt:            m.updatedAt,
	}
	if m.reading != nil {
		temp, hum, at := m.reading.Temperature, m.reading.Humidity, m.reading.Timestamp
		snap.Temperature = &temp
		snap.Humidity = &hum
		snap.ReadingAt = &at
	}
	if m.thresholds != nil {
		th := *m.thresholds
		snap.Thresholds = &th
	}
	return snap
}
