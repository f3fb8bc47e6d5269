package handlers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SessionLimiter 按会话限制聊天消息速率，同一会话的多个连接共享一个令牌桶
type SessionLimiter struct {
	rps     rate.Limit
	burst   int
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSessionLimiter 创建限流器；rps <= 0 表示不限流
func NewSessionLimiter(rps float64, burst int) *SessionLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SessionLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow 消耗会话的一个令牌
func (l *SessionLimiter) Allow(sessionID string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[sessionID] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Cleanup 删除空闲超过 maxIdle 的会话，返回删除数量
func (l *SessionLimiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, e := range l.entries {
		if time.Since(e.lastSeen) > maxIdle {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Run 每分钟清理一次，直到 ctx 结束
func (l *SessionLimiter) Run(ctx context.Context, maxIdle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(maxIdle)
		}
	}
}
