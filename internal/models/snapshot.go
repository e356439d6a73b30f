package models

import "time"

// Snapshot 提供给显示层的只读快照
type Snapshot struct {
	TruckID              string       `json:"truck_id"`
	Temperature          *float64     `json:"temperature"`
	Humidity             *float64     `json:"humidity"`
	ReadingAt            *time.Time   `json:"reading_at,omitempty"`
	TemperatureAlertFlag bool         `json:"temperature_alert_flag"`
	HumidityAlertFlag    bool         `json:"humidity_alert_flag"`
	TemperatureStatus    MetricStatus `json:"temperature_status"`
	HumidityStatus       MetricStatus `json:"humidity_status"`
	ThresholdsKnown      bool         `json:"thresholds_known"`
	Thresholds           *Thresholds  `json:"thresholds,omitempty"`
	LastError            string       `json:"last_error,omitempty"`
	UpdatedAt            time.Time    `json:"updated_at"`
}
