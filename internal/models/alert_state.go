package models

import "time"

// MetricStatus 单指标状态机状态
type MetricStatus string

const (
	StatusNormal             MetricStatus = "normal"
	StatusOutOfRangeNotified MetricStatus = "out_of_range_notified"
	StatusOutOfRangeSilent   MetricStatus = "out_of_range_silent"
)

// MetricAlert 单指标报警状态
type MetricAlert struct {
	OutOfRange  bool         `json:"out_of_range"`
	LastAlertAt *time.Time   `json:"last_alert_at,omitempty"` // nil = 从未报警
	Status      MetricStatus `json:"status"`
}

// AlertState 报警状态（仅由 monitor 持有，每次轮询更新，不持久化）
type AlertState struct {
	Temperature MetricAlert `json:"temperature"`
	Humidity    MetricAlert `json:"humidity"`
}

// NewAlertState 初始状态：全部 false / none / Normal
func NewAlertState() AlertState {
	return AlertState{
		Temperature: MetricAlert{Status: StatusNormal},
		Humidity:    MetricAlert{Status: StatusNormal},
	}
}

func (s AlertState) TemperatureOutOfRange() bool { return s.Temperature.OutOfRange }
func (s AlertState) HumidityOutOfRange() bool    { return s.Humidity.OutOfRange }

func (s AlertState) LastTemperatureAlertAt() *time.Time { return s.Temperature.LastAlertAt }
func (s AlertState) LastHumidityAlertAt() *time.Time    { return s.Humidity.LastAlertAt }

// Metric 按指标取状态
func (s AlertState) Metric(m Metric) MetricAlert {
	if m == MetricHumidity {
		return s.Humidity
	}
	return s.Temperature
}

// WithMetric 返回替换了某个指标状态的副本
func (s AlertState) WithMetric(m Metric, a MetricAlert) AlertState {
	if m == MetricHumidity {
		s.Humidity = a
	} else {
		s.Temperature = a
	}
	return s
}

// Clone 深拷贝（时间指针不共享）
func (s AlertState) Clone() AlertState {
	s.Temperature.LastAlertAt = cloneTime(s.Temperature.LastAlertAt)
	s.Humidity.LastAlertAt = cloneTime(s.Humidity.LastAlertAt)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
