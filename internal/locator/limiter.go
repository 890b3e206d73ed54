package locator

import (
	"context"
	"sync"
	"time"
)

// MinuteLimiter：按自然分钟计数的简单限流
// 背景：受接口配额限制，控制每分钟最大请求数；超出时阻塞等待下一分钟刷新
// 约束：capacity <= 0 表示不限流；多个区域并发搜索时共用同一实例
type MinuteLimiter struct {
	capacity int
	used     int
	lastMin  int64
	mu       sync.Mutex
	now      func() time.Time
	poll     time.Duration
}

func NewMinuteLimiter(perMinute int) *MinuteLimiter {
	return &MinuteLimiter{capacity: perMinute, now: time.Now, poll: 250 * time.Millisecond}
}

func (ml *MinuteLimiter) allow() bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	nowMin := ml.now().Unix() / 60
	if ml.lastMin != nowMin {
		ml.lastMin = nowMin
		ml.used = 0
	}
	if ml.used < ml.capacity {
		ml.used++
		return true
	}
	return false
}

// Wait：阻塞直到本分钟仍有配额或 ctx 结束
func (ml *MinuteLimiter) Wait(ctx context.Context) error {
	if ml == nil || ml.capacity <= 0 {
		return nil
	}
	for !ml.allow() {
		t := time.NewTimer(ml.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
