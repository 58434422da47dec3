package utils

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"imgurfetch/internal"
)

// minBurst keeps small rates from forcing one-byte waits
const minBurst = 32 * 1024

// BandwidthLimiter throttles transferred bytes with a token bucket shared by
// every task of a client. A rate of 0 disables throttling.
type BandwidthLimiter struct {
	mutex   sync.RWMutex
	limiter *rate.Limiter
	bps     int64
}

// NewBandwidthLimiter creates a limiter allowing bytesPerSecond
func NewBandwidthLimiter(bytesPerSecond int64) *BandwidthLimiter {
	l := &BandwidthLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	l.SetRate(bytesPerSecond)
	return l
}

var _ internal.RateLimiter = (*BandwidthLimiter)(nil)

// Wait blocks until n bytes may be transferred or ctx is done
func (l *BandwidthLimiter) Wait(ctx context.Context, n int) error {
	l.mutex.RLock()
	limiter, bps := l.limiter, l.bps
	l.mutex.RUnlock()

	if bps <= 0 || n <= 0 {
		return ctx.Err()
	}

	burst := limiter.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// SetRate changes the allowed throughput; 0 or less removes the cap
func (l *BandwidthLimiter) SetRate(bytesPerSecond int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.bps = bytesPerSecond
	if bytesPerSecond <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}

	burst := int(bytesPerSecond)
	if burst < minBurst {
		burst = minBurst
	}
	l.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// Rate returns the configured bytes per second, 0 if unlimited
func (l *BandwidthLimiter) Rate() int64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.bps
}
