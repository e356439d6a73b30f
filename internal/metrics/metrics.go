package metrics

import (
	"net/http"

	"frostbase-alarm/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 报警服务指标
type Metrics struct {
	registry      *prometheus.Registry
	ticksTotal    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	outOfRange    *prometheus.GaugeVec
	readingValue  *prometheus.GaugeVec
	thresholds    *prometheus.GaugeVec
}

// New 创建指标并注册到独立 registry（避免测试间重复注册）
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostbase",
			Name:      "monitor_ticks_total",
			Help:      "Poll ticks by truck and result (ok, network_error, parse_error, no_data).",
		}, []string{"truck_id", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostbase",
			Name:      "notifications_total",
			Help:      "Out-of-range notifications fired by truck and metric.",
		}, []string{"truck_id", "metric"}),
		outOfRange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frostbase",
			Name:      "metric_out_of_range",
			Help:      "1 while the metric is out of range, 0 otherwise.",
		}, []string{"truck_id", "metric"}),
		readingValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frostbase",
			Name:      "reading_value",
			Help:      "Latest telemetry value by truck and metric.",
		}, []string{"truck_id", "metric"}),
		thresholds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frostbase",
			Name:      "thresholds_known",
			Help:      "1 once thresholds have been fetched for the truck monitor.",
		}, []string{"truck_id"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.ticksTotal,
		m.notifications,
		m.outOfRange,
		m.readingValue,
		m.thresholds,
	)

	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 供测试读取指标
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveTick(truckID, result string) {
	m.ticksTotal.WithLabelValues(truckID, result).Inc()
}

func (m *Metrics) ObserveNotification(truckID string, metric models.Metric) {
	m.notifications.WithLabelValues(truckID, string(metric)).Inc()
}

// ObserveReading 更新读数与超限状态
func (m *Metrics) ObserveReading(r models.Reading, state models.AlertState) {
	m.readingValue.WithLabelValues(r.TruckID, string(models.MetricTemperature)).Set(r.Temperature)
	m.readingValue.WithLabelValues(r.TruckID, string(models.MetricHumidity)).Set(r.Humidity)
	m.outOfRange.WithLabelValues(r.TruckID, string(models.MetricTemperature)).Set(boolGauge(state.TemperatureOutOfRange()))
	m.outOfRange.WithLabelValues(r.TruckID, string(models.MetricHumidity)).Set(boolGauge(state.HumidityOutOfRange()))
}

func (m *Metrics) ObserveThresholds(truckID string, known bool) {
	m.thresholds.WithLabelValues(truckID).Set(boolGauge(known))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
