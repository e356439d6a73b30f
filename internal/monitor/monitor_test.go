package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"frostbase-alarm/internal/client"
	"frostbase-alarm/internal/metrics"
	"frostbase-alarm/internal/models"
	"frostbase-alarm/internal/notifier"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const truckID = "674a4001000000000000001a"

var (
	t0         = time.Date(2024, 11, 29, 10, 0, 0, 0, time.UTC)
	thresholds = models.Thresholds{MinTemperature: -5, MaxTemperature: 5, MinHumidity: 60, MaxHumidity: 90}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type manualScheduler struct {
	ticker   *manualTicker
	interval time.Duration
}

func (s *manualScheduler) NewTicker(d time.Duration) Ticker {
	s.interval = d
	s.ticker = &manualTicker{ch: make(chan time.Time)}
	return s.ticker
}

type fakeReadings struct {
	mu      sync.Mutex
	reading *models.Reading
	err     error
	calls   int
	// gate 非空时拉取阻塞直到关闭（忽略 ctx）
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeReadings) set(temp, hum float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	if err != nil {
		return
	}
	f.reading = &models.Reading{TruckID: truckID, Temperature: temp, Humidity: hum, Timestamp: t0}
}

func (f *fakeReadings) FetchLatestReading(_ context.Context, _ string) (*models.Reading, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	r, err := f.reading, f.err
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	if err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (f *fakeReadings) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeThresholds struct {
	mu    sync.Mutex
	th    *models.Thresholds
	err   error
	calls int
}

func (f *fakeThresholds) FetchThresholds(_ context.Context) (*models.Thresholds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	th := *f.th
	return &th, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []models.Notification
	err    error
	closed int
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingNotifier) count(metric models.Metric) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Metric == metric {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (s *recordingSink) Publish(_ context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordingSink) last() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

type harness struct {
	monitor    *Monitor
	clock      *fakeClock
	scheduler  *manualScheduler
	readings   *fakeReadings
	thresholds *fakeThresholds
	notifier   *recordingNotifier
	sink       *recordingSink
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{now: t0},
		scheduler:  &manualScheduler{},
		readings:   &fakeReadings{},
		thresholds: &fakeThresholds{th: &thresholds},
		notifier:   &recordingNotifier{},
		sink:       &recordingSink{},
		metrics:    metrics.New(),
	}
	h.readings.set(0, 75, nil)

	m, err := New(Options{
		TruckID:       truckID,
		PollInterval:  5 * time.Second,
		AlertCooldown: 60 * time.Second,
	}, Deps{
		Readings:   h.readings,
		Thresholds: h.thresholds,
		Notifier:   h.notifier,
		Snapshots:  h.sink,
		Metrics:    h.metrics,
		Scheduler:  h.scheduler,
		Clock:      h.clock,
	})
	require.NoError(t, err)
	h.monitor = m
	t.Cleanup(m.Shutdown)
	return h
}

func (h *harness) tickAt(temp, hum float64, ms int64) {
	h.readings.set(temp, hum, nil)
	h.clock.Set(t0.Add(time.Duration(ms) * time.Millisecond))
	h.monitor.Tick(context.Background())
}

func TestNew_Validation(t *testing.T) {
	deps := Deps{Readings: &fakeReadings{}, Thresholds: &fakeThresholds{}, Notifier: &recordingNotifier{}}

	_, err := New(Options{PollInterval: time.Second}, deps)
	assert.Error(t, err)

	_, err = New(Options{TruckID: truckID}, deps)
	assert.Error(t, err)

	_, err = New(Options{TruckID: truckID, PollInterval: time.Second}, Deps{})
	assert.Error(t, err)

	m, err := New(Options{TruckID: truckID, PollInterval: time.Second}, deps)
	require.NoError(t, err)
	assert.Equal(t, time.Second, m.opts.FetchTimeout)
	m.Shutdown()
}

func TestMonitor_Scenario(t *testing.T) {
	h := newHarness(t)

	steps := []struct {
		temp          float64
		ms            int64
		flag          bool
		notifications int
	}{
		{10, 0, true, 1},
		{10, 30000, true, 1},
		{10, 61000, true, 2},
		{2, 62000, false, 2},
	}

	for i, s := range steps {
		h.tickAt(s.temp, 75, s.ms)
		snap := h.monitor.Snapshot()
		assert.Equal(t, s.flag, snap.TemperatureAlertFlag, "step %d flag", i)
		assert.False(t, snap.HumidityAlertFlag, "step %d humidity flag", i)
		assert.Equal(t, s.notifications, h.notifier.count(models.MetricTemperature), "step %d notifications", i)
	}
	assert.Zero(t, h.notifier.count(models.MetricHumidity))

	// 恢复后时间戳保留
	last := h.monitor.State().LastTemperatureAlertAt()
	require.NotNil(t, last)
	assert.Equal(t, t0.Add(61*time.Second), *last)
	assert.Equal(t, 1, h.thresholds.calls)
}

func TestMonitor_FetchFailureKeepsPreviousValues(t *testing.T) {
	h := newHarness(t)

	h.tickAt(10, 75, 0)
	before := h.monitor.State()

	h.readings.set(0, 0, fmt.Errorf("get reading: %w", client.ErrNetwork))
	h.clock.Set(t0.Add(5 * time.Second))
	h.monitor.Tick(context.Background())

	snap := h.monitor.Snapshot()
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 10.0, *snap.Temperature)
	assert.Equal(t, "network_error", snap.LastError)
	assert.Equal(t, before, h.monitor.State())
	assert.Equal(t, 1, h.notifier.count(models.MetricTemperature))

	h.readings.set(0, 0, client.ErrNoData)
	h.monitor.Tick(context.Background())
	assert.Equal(t, "no_data", h.monitor.Snapshot().LastError)

	h.tickAt(1, 75, 10000)
	snap = h.monitor.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.TemperatureAlertFlag)

	// ok / network_error / no_data 三个序列
	series, err := testutil.GatherAndCount(h.metrics.Registry(), "frostbase_monitor_ticks_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestMonitor_ThresholdsUnknownSkipsEvaluation(t *testing.T) {
	h := newHarness(t)
	h.thresholds.err = errors.New("parameter endpoint down")

	h.tickAt(50, 99, 0)

	snap := h.monitor.Snapshot()
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 50.0, *snap.Temperature)
	assert.False(t, snap.ThresholdsKnown)
	assert.False(t, snap.TemperatureAlertFlag)
	assert.Nil(t, h.monitor.State().LastTemperatureAlertAt())
	assert.Empty(t, h.notifier.sent)

	expected := `
# HELP frostbase_thresholds_known 1 once thresholds have been fetched for the truck monitor.
# TYPE frostbase_thresholds_known gauge
frostbase_thresholds_known{truck_id="674a4001000000000000001a"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "frostbase_thresholds_known"))

	// 阈值恢复后下一次 tick 开始评估
	h.thresholds.mu.Lock()
	h.thresholds.err = nil
	h.thresholds.mu.Unlock()
	h.tickAt(50, 99, 5000)

	snap = h.monitor.Snapshot()
	assert.True(t, snap.ThresholdsKnown)
	assert.True(t, snap.TemperatureAlertFlag)
	assert.True(t, snap.HumidityAlertFlag)
	assert.Equal(t, 1, h.notifier.count(models.MetricTemperature))
	assert.Equal(t, 1, h.notifier.count(models.MetricHumidity))
	assert.Equal(t, 2, h.thresholds.calls)
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(),
		strings.NewReader(strings.Replace(expected, "} 0", "} 1", 1)), "frostbase_thresholds_known"))
}

func TestMonitor_ThresholdRefresh(t *testing.T) {
	h := newHarness(t)
	h.monitor.opts.ThresholdRefresh = time.Minute

	h.tickAt(0, 75, 0)
	h.tickAt(0, 75, 30000)
	assert.Equal(t, 1, h.thresholds.calls)

	h.thresholds.mu.Lock()
	h.thresholds.th = &models.Thresholds{MinTemperature: -5, MaxTemperature: 5, MinHumidity: 60, MaxHumidity: 70}
	h.thresholds.mu.Unlock()

	h.tickAt(0, 75, 61000)
	assert.Equal(t, 2, h.thresholds.calls)
	assert.True(t, h.monitor.Snapshot().HumidityAlertFlag)
}

func TestMonitor_NotifierFailureKeepsTransition(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker unavailable")

	h.tickAt(10, 75, 0)

	state := h.monitor.State()
	assert.True(t, state.TemperatureOutOfRange())
	require.NotNil(t, state.LastTemperatureAlertAt())
	assert.Equal(t, models.StatusOutOfRangeNotified, state.Temperature.Status)

	// 冷却期内不重试
	h.tickAt(10, 75, 1000)
	assert.Equal(t, 1, h.notifier.count(models.MetricTemperature))
}

func TestMonitor_PublishesSnapshot(t *testing.T) {
	h := newHarness(t)

	h.tickAt(10, 95, 0)

	snap := h.sink.last()
	assert.Equal(t, truckID, snap.TruckID)
	assert.True(t, snap.TemperatureAlertFlag)
	assert.True(t, snap.HumidityAlertFlag)
	assert.Equal(t, models.StatusOutOfRangeNotified, snap.HumidityStatus)
	require.NotNil(t, snap.Thresholds)
	assert.Equal(t, thresholds, *snap.Thresholds)
	assert.Equal(t, t0, snap.UpdatedAt)
}

func TestMonitor_StartRunsImmediatelyAndOnTicks(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.monitor.Start(context.Background()))
	assert.ErrorIs(t, h.monitor.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 5*time.Second, h.scheduler.interval)

	require.Eventually(t, func() bool { return h.readings.callCount() == 1 }, time.Second, 5*time.Millisecond)

	h.scheduler.ticker.ch <- t0
	h.scheduler.ticker.ch <- t0
	require.Eventually(t, func() bool { return h.readings.callCount() == 3 }, time.Second, 5*time.Millisecond)

	h.monitor.Shutdown()
	assert.True(t, h.scheduler.ticker.isStopped())
	assert.ErrorIs(t, h.monitor.Start(context.Background()), ErrClosed)
}

func TestMonitor_ShutdownIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Start(context.Background()))

	h.monitor.Shutdown()
	h.monitor.Shutdown()

	assert.Equal(t, 1, h.notifier.closed)

	// 关闭后的 tick 不拉取
	calls := h.readings.callCount()
	h.monitor.Tick(context.Background())
	assert.Equal(t, calls, h.readings.callCount())
}

func TestMonitor_ResponseAfterShutdownDiscarded(t *testing.T) {
	h := newHarness(t)
	h.readings.set(10, 75, nil)
	h.readings.gate = make(chan struct{})
	h.readings.entered = make(chan struct{})

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		h.monitor.Tick(context.Background())
	}()
	<-h.readings.entered

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		h.monitor.Shutdown()
	}()
	require.Eventually(t, h.monitor.isClosed, time.Second, 5*time.Millisecond)

	close(h.readings.gate)
	<-tickDone
	<-shutdownDone

	snap := h.monitor.Snapshot()
	assert.Nil(t, snap.Temperature)
	assert.False(t, snap.TemperatureAlertFlag)
	assert.Empty(t, h.notifier.sent)
	assert.Equal(t, 1, h.notifier.closed)
}

func TestMonitor_ConcurrentSnapshotReaders(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.monitor.Snapshot()
				_ = h.monitor.State()
			}
		}()
	}
	for i := 0; i < 20; i++ {
		h.tickAt(float64(i), 75, int64(i)*1000)
	}
	wg.Wait()

	snap := h.monitor.Snapshot()
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 19.0, *snap.Temperature)
}

// blockingNotifier 阻塞到 ctx 取消
type blockingNotifier struct {
	entered chan struct{}
	once    sync.Once
}

func (b *blockingNotifier) Notify(ctx context.Context, _ models.Notification) error {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingNotifier) Close() error { return nil }

func TestMonitor_ShutdownCancelsInFlightNotification(t *testing.T) {
	readings := &fakeReadings{}
	readings.set(10, 75, nil)
	blocking := &blockingNotifier{entered: make(chan struct{})}

	m, err := New(Options{
		TruckID:       truckID,
		PollInterval:  5 * time.Second,
		AlertCooldown: 60 * time.Second,
	}, Deps{
		Readings:   readings,
		Thresholds: &fakeThresholds{th: &thresholds},
		Notifier:   blocking,
		Scheduler:  &manualScheduler{},
		Clock:      &fakeClock{now: t0},
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	select {
	case <-blocking.entered:
	case <-time.After(time.Second):
		t.Fatal("notification was never dispatched")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Shutdown()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown blocked on in-flight notification")
	}
	// 已派发的状态转换保留
	assert.True(t, m.State().TemperatureOutOfRange())
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, models.Notification) error {
	return errors.New("broker unavailable")
}

func (failingNotifier) Close() error { return nil }

func TestMonitor_SinkFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	readings := &fakeReadings{}
	readings.set(10, 75, nil)

	m, err := New(Options{
		TruckID:       truckID,
		PollInterval:  5 * time.Second,
		AlertCooldown: 60 * time.Second,
	}, Deps{
		Readings:   readings,
		Thresholds: &fakeThresholds{th: &thresholds},
		Notifier:   notifier.NewMulti(logger, failingNotifier{}),
		Scheduler:  &manualScheduler{},
		Clock:      &fakeClock{now: t0},
		Logger:     logger,
	})
	require.NoError(t, err)
	defer m.Shutdown()

	m.Tick(context.Background())

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.True(t, m.State().TemperatureOutOfRange())
}
