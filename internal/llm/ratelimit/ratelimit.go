// Package ratelimit implements the token-bucket request and token budget
// used to keep LLM provider traffic under a configured requests-per-minute
// and tokens-per-minute ceiling, plus an in-flight concurrency gate.
//
// golang.org/x/time/rate only gates event counts; it has no notion of a
// second, independently-sized token budget, so the two buckets here are
// hand-rolled on top of the same token-bucket algorithm x/time/rate uses.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces requests-per-minute, tokens-per-minute and a maximum
// number of concurrent in-flight requests.
type Limiter struct {
	mu sync.Mutex

	rpm    float64
	tpm    float64
	reqBkt float64
	tokBkt float64
	last   time.Time

	sem chan struct{}
}

// New builds a Limiter. rpm/tpm of zero disables that bucket.
func New(rpm, tpm, maxConcurrency int) *Limiter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	l := &Limiter{
		rpm:  float64(rpm),
		tpm:  float64(tpm),
		last: time.Now(),
		sem:  make(chan struct{}, maxConcurrency),
	}
	l.reqBkt = l.rpm
	l.tokBkt = l.tpm
	return l
}

func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.last).Minutes()
	l.last = now
	if l.rpm > 0 {
		l.reqBkt += elapsed * l.rpm
		if l.reqBkt > l.rpm {
			l.reqBkt = l.rpm
		}
	}
	if l.tpm > 0 {
		l.tokBkt += elapsed * l.tpm
		if l.tokBkt > l.tpm {
			l.tokBkt = l.tpm
		}
	}
}

// Acquire blocks (subject to ctx) until a concurrency slot and the request
// and token budgets allow one call consuming estimatedTokens tokens. The
// returned release func must be called when the call completes.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (release func(), err error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		l.mu.Lock()
		l.refill()
		reqOK := l.rpm <= 0 || l.reqBkt >= 1
		tokOK := l.tpm <= 0 || l.tokBkt >= float64(estimatedTokens)
		if reqOK && tokOK {
			if l.rpm > 0 {
				l.reqBkt--
			}
			if l.tpm > 0 {
				l.tokBkt -= float64(estimatedTokens)
			}
			l.mu.Unlock()
			return func() { <-l.sem }, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			<-l.sem
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
