package models

import "time"

// Metric 监控指标
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// Unit 指标显示单位
func (m Metric) Unit() string {
	switch m {
	case MetricTemperature:
		return "°C"
	case MetricHumidity:
		return "%"
	}
	return ""
}

// Title 指标显示名称
func (m Metric) Title() string {
	switch m {
	case MetricTemperature:
		return "Temperature"
	case MetricHumidity:
		return "Humidity"
	}
	return string(m)
}

// Reading 单条遥测读数（外部产生，只读）
type Reading struct {
	TruckID     string    `json:"truck_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"` // 0-100
	Timestamp   time.Time `json:"timestamp"`
}

// Value 按指标取值
func (r Reading) Value(m Metric) float64 {
	if m == MetricHumidity {
		return r.Humidity
	}
	return r.Temperature
}

// Thresholds 阈值配置（min <= max 由外部保证，这里不校验）
type Thresholds struct {
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`
	MinHumidity    float64 `json:"minHumidity"`
	MaxHumidity    float64 `json:"maxHumidity"`
}

// Bounds 按指标取 [min, max]
func (t Thresholds) Bounds(m Metric) (float64, float64) {
	if m == MetricHumidity {
		return t.MinHumidity, t.MaxHumidity
	}
	return t.MinTemperature, t.MaxTemperature
}
