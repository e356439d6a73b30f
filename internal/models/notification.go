package models

import (
	"fmt"
	"time"
)

// CueOutOfRange 报警提示音标识（客户端据此播放声音）
const CueOutOfRange = "out_of_range"

// Notification 一次超限通知（提示音 + 弹窗消息）
type Notification struct {
	TruckID string    `json:"truck_id"`
	Metric  Metric    `json:"metric"`
	Value   float64   `json:"value"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	At      time.Time `json:"at"`
	Cue     string    `json:"cue"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// NewNotification 构建通知，消息包含指标名、当前值和 min/max
func NewNotification(truckID string, m Metric, value, min, max float64, at time.Time) Notification {
	unit := m.Unit()
	return Notification{
		TruckID: truckID,
		Metric:  m,
		Value:   value,
		Min:     min,
		Max:     max,
		At:      at,
		Cue:     CueOutOfRange,
		Title:   fmt.Sprintf("%s alert", m.Title()),
		Message: fmt.Sprintf("%s out of range: %.1f%s (min %.1f%s, max %.1f%s)",
			m.Title(), value, unit, min, unit, max, unit),
	}
}
