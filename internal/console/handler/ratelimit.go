package handler

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/marketplace-console/internal/identity"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = 5 * time.Minute
)

// bucket is one caller's token bucket.
type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

// buckets holds a token bucket per caller key.
type buckets struct {
	rps   rate.Limit
	burst int

	mu  sync.Mutex
	all map[string]*bucket
}

// take spends a token for key. When none is left it reports how long the
// caller should wait before retrying.
func (b *buckets) take(key string, now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	bk, ok := b.all[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.all[key] = bk
	}
	bk.used = now
	b.mu.Unlock()

	if bk.lim.AllowN(now, 1) {
		return true, 0
	}
	if b.rps <= 0 {
		return false, time.Second
	}
	return false, time.Duration(float64(time.Second) / float64(b.rps))
}

// forget drops buckets unused since cutoff.
func (b *buckets) forget(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, bk := range b.all {
		if bk.used.Before(cutoff) {
			delete(b.all, key)
		}
	}
}

// callerKey is the operator when the request is authenticated and the client
// IP otherwise.
func callerKey(c *gin.Context) string {
	if op := identity.OperatorFromCtx(c); op != nil {
		return "op:" + op.OperatorID
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter throttles each caller to rps requests per second with bursts of
// up to burst. Rejected requests get a 429 with Retry-After in whole seconds.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	b := &buckets{rps: rate.Limit(rps), burst: burst, all: make(map[string]*bucket)}

	go func() {
		t := time.NewTicker(limiterSweep)
		defer t.Stop()
		for now := range t.C {
			b.forget(now.Add(-limiterIdle))
		}
	}()

	return func(c *gin.Context) {
		ok, wait := b.take(callerKey(c), time.Now())
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
