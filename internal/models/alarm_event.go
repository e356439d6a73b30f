package models

import "time"

// AlarmEvent 报警事件（对应 truck_alarm_events 表，仅做审计记录）
type AlarmEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	TruckID     string    `json:"truck_id" db:"truck_id"`
	Metric      Metric    `json:"metric" db:"metric"`
	Value       float64   `json:"value" db:"value"`
	MinValue    float64   `json:"min_value" db:"min_value"`
	MaxValue    float64   `json:"max_value" db:"max_value"`
	Message     string    `json:"message" db:"message"`
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
