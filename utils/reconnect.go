package utils

import "time"

// ReconnectStrategy 语音连接断开后决定下一次重连前等待多久
type ReconnectStrategy interface {
	NextDelay() time.Duration
	// Attempts 自上次 Reset 以来的重连次数
	Attempts() int
	Reset()
}

// ExponentialBackoff 每次失败等待时间翻倍，封顶 maxDelay，连接成功后 Reset 回到初始值。
// 不是并发安全的，只在客户端的重连循环里使用。
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	nextDelay    time.Duration
	attempts     int
}

var _ ReconnectStrategy = (*ExponentialBackoff)(nil)

// NewExponentialBackoff 1s 起步，最多 30s
func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffWithLimits(time.Second, 30*time.Second)
}

// NewExponentialBackoffWithLimits 对应配置里的 network.reconnect，非正数使用默认值
func NewExponentialBackoffWithLimits(initial, maxDelay time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay = max(maxDelay, initial)
	return &ExponentialBackoff{
		initialDelay: initial,
		maxDelay:     maxDelay,
		nextDelay:    initial,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.nextDelay
	e.attempts++
	e.nextDelay = min(e.nextDelay*2, e.maxDelay)
	return delay
}

func (e *ExponentialBackoff) Attempts() int {
	return e.attempts
}

func (e *ExponentialBackoff) Reset() {
	e.nextDelay = e.initialDelay
	e.attempts = 0
}
