package evaluator

import (
	"time"

	"frostbase-alarm/internal/models"
)

// Metrics 评估顺序（通知按此顺序输出）
var Metrics = []models.Metric{models.MetricTemperature, models.MetricHumidity}

// Result 一次评估的结果
type Result struct {
	State         models.AlertState
	Notifications []models.Notification
}

// Notified 本次评估是否对某指标发出了通知
func (r Result) Notified(m models.Metric) bool {
	for _, n := range r.Notifications {
		if n.Metric == m {
			return true
		}
	}
	return false
}

// Evaluate 纯函数：根据上一状态、最新读数和阈值计算新状态与需要发出的通知。
//
// 每个指标独立评估：
//   - 超限 = value > max 或 value < min
//   - 超限且（从未报警 或 now-lastAlertAt > cooldown）时发出通知并更新 lastAlertAt
//   - 未超限时 flag 复位，lastAlertAt 保持不变
func Evaluate(prev models.AlertState, reading models.Reading, th models.Thresholds, now time.Time, cooldown time.Duration) Result {
	res := Result{State: prev.Clone()}

	for _, m := range Metrics {
		min, max := th.Bounds(m)
		next, notify := evaluateMetric(res.State.Metric(m), reading.Value(m), min, max, now, cooldown)
		res.State = res.State.WithMetric(m, next)
		if notify {
			res.Notifications = append(res.Notifications,
				models.NewNotification(reading.TruckID, m, reading.Value(m), min, max, now))
		}
	}

	return res
}

func evaluateMetric(prev models.MetricAlert, value, min, max float64, now time.Time, cooldown time.Duration) (models.MetricAlert, bool) {
	next := prev

	if !Breach(value, min, max) {
		next.OutOfRange = false
		next.Status = models.StatusNormal
		return next, false
	}

	next.OutOfRange = true
	if CooldownElapsed(prev.LastAlertAt, now, cooldown) {
		t := now
		next.LastAlertAt = &t
		next.Status = models.StatusOutOfRangeNotified
		return next, true
	}

	// 同一次超限内已通知过的保持 Notified
	if prev.Status != models.StatusOutOfRangeNotified {
		next.Status = models.StatusOutOfRangeSilent
	}
	return next, false
}

// Breach 值是否超出 [min, max]
func Breach(value, min, max float64) bool {
	return value > max || value < min
}

// CooldownElapsed 冷却是否已过（last 为 nil 视为已过，边界严格大于）
func CooldownElapsed(last *time.Time, now time.Time, cooldown time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > cooldown
}
