package monitor

import "time"

// Clock 时间源（测试注入固定时钟）
type Clock interface {
	Now() time.Time
}

// Ticker 周期触发器
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Scheduler 创建 Ticker（测试中可手动驱动 tick）
type Scheduler interface {
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemScheduler struct{}

func (systemScheduler) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }
