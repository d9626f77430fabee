package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Limits нормализует параметры token bucket:
// rate <= 0 даёт 10 req/sec, burst <= 0 - удвоенный rate, burst < rate поднимается до rate
func Limits(perSecond, burst float64) (rate.Limit, int) {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = perSecond * 2
	}
	if burst < perSecond {
		burst = perSecond
	}
	return rate.Limit(perSecond), int(math.Ceil(burst))
}

// NewRateLimiter создаёт token bucket для запросов к бирже.
// Ожидание токена отменяется контекстом, поэтому лимит не может
// удерживать вызывающего дольше его таймаута.
//
//	limiter := NewRateLimiter(5, 10)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
func NewRateLimiter(perSecond, burst float64) *rate.Limiter {
	return rate.NewLimiter(Limits(perSecond, burst))
}

// ============================================================
// KeyedLimiter - отдельное ведро на каждый ключ (API key аккаунта)
// ============================================================

// KeyedLimiter лениво создаёт limiter на ключ.
// Биржа считает лимиты по API-ключу, поэтому аккаунты не делят общий бюджет.
type KeyedLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewKeyedLimiter создаёт limiter с одинаковыми параметрами для всех ключей
func NewKeyedLimiter(perSecond, burst float64) *KeyedLimiter {
	limit, b := Limits(perSecond, burst)
	return &KeyedLimiter{
		limit:    limit,
		burst:    b,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get возвращает (создавая при необходимости) limiter ключа
func (kl *KeyedLimiter) Get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.limiters[key]
	if !ok {
		l = rate.NewLimiter(kl.limit, kl.burst)
		kl.limiters[key] = l
	}
	return l
}

// Wait ожидает токен для ключа
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.Get(key).Wait(ctx)
}

// Forget удаляет ведро ключа (после удаления аккаунта)
func (kl *KeyedLimiter) Forget(key string) {
	kl.mu.Lock()
	delete(kl.limiters, key)
	kl.mu.Unlock()
}

// Len - число отслеживаемых ключей
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
