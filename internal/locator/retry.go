package locator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"store-scrape/internal/logger"
	"store-scrape/internal/metrics"
)

// ErrRetriesExhausted：单次查询的全部尝试均以瞬时错误失败
var ErrRetriesExhausted = errors.New("locator: retries exhausted")

// RetryPolicy：有界重试策略，两次尝试之间等待 [MinDelay, MaxDelay] 内的均匀随机时长
// 约束：MaxAttempts 包含首次尝试；策略本身无状态，可被多个 goroutine 共用
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy：10 次尝试，间隔 1~5 秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, MinDelay: time.Second, MaxDelay: 5 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.MinDelay < 0 {
		p.MinDelay = 0
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	return p
}

// uniformBackOff：backoff.BackOff 实现，每次返回区间内的均匀随机等待
type uniformBackOff struct {
	min, max time.Duration
}

func (b *uniformBackOff) Reset() {}

func (b *uniformBackOff) NextBackOff() time.Duration {
	span := b.max - b.min
	if span <= 0 {
		return b.min
	}
	return b.min + time.Duration(rand.Int64N(int64(span)+1))
}

// Do：按策略执行 op；瞬时错误重试，其余错误立即返回
// 异常：尝试用尽时返回同时包装 ErrRetriesExhausted 与最后一次 *TransientFetchError 的错误；
// ctx 取消时返回 ctx 的原因
func Do[T any](ctx context.Context, p RetryPolicy, op func(attempt int) (T, error)) (T, error) {
	p = p.normalized()
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(attempt)
		if err == nil {
			return v, nil
		}
		var tfe *TransientFetchError
		if !errors.As(err, &tfe) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(&uniformBackOff{min: p.MinDelay, max: p.MaxDelay}),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.LocatorRetriesTotal.Inc()
			logger.L().Warn("locator_retry", "attempt", attempt, "next_ms", next.Milliseconds(), "err", err)
		}),
	)
	if err == nil {
		return res, nil
	}
	var tfe *TransientFetchError
	if errors.As(err, &tfe) {
		return res, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	}
	return res, err
}
