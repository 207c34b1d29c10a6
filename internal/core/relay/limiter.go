package relay

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter 按服务的转发限流器
//
// 每个服务一个令牌桶，ForwardRate 为 0 时不限制。
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	denied  map[string]uint64
}

// NewLimiter 创建限流器
func NewLimiter(perSecond float64, burst int) *Limiter {
	l := &Limiter{
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		denied:  make(map[string]uint64),
	}
	if perSecond > 0 {
		l.limit = rate.Limit(perSecond)
	}
	return l
}

// Enabled 是否启用限流
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0
}

// Allow 检查服务是否允许再转发一个调用
func (l *Limiter) Allow(service string) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[service]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[service] = b
	}
	if !b.Allow() {
		l.denied[service]++
		return fmt.Errorf("%w: service %s", ErrRateLimited, service)
	}
	return nil
}

// Stats 返回限流统计
func (l *Limiter) Stats() LimiterStats {
	if l == nil {
		return LimiterStats{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LimiterStats{
		Limit:  float64(l.limit),
		Burst:  l.burst,
		Denied: make(map[string]uint64, len(l.denied)),
	}
	for svc := range l.buckets {
		stats.Services = append(stats.Services, svc)
	}
	sort.Strings(stats.Services)
	for svc, n := range l.denied {
		stats.Denied[svc] = n
	}
	return stats
}

// LimiterStats 限流器统计
type LimiterStats struct {
	Limit    float64
	Burst    int
	Services []string
	Denied   map[string]uint64
}
