package alerting

import (
	"sync"
	"time"
)

// Throttle 记录每个国家最近一次 feed 故障告警的时间,
// 冷却窗口内的重复告警会被压制。状态只存活于进程生命周期。
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{last: make(map[string]time.Time)}
}

// Allow reports whether a feed failure alert for the given country may
// fire at now, and records the attempt when it may.
func (t *Throttle) Allow(country string, now time.Time, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[country]; ok && now.Sub(prev) < cooldown {
		return false
	}
	t.last[country] = now
	return true
}
