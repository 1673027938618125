package sandbox

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ashendes/paygate/internal/metrics"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Chaos injects failures and latency into gateway responses
type Chaos struct {
	mu          sync.RWMutex
	enabled     bool
	slowMode    bool
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	service     string
	rnd         *rand.Rand
}

// NewChaos returns disabled chaos that fails 40% of requests and delays by
// 5-10 seconds once switched on.
func NewChaos(service string) *Chaos {
	return &Chaos{
		failureRate: 0.4,
		minDelay:    5 * time.Second,
		maxDelay:    10 * time.Second,
		service:     service,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFailureRate sets the share of requests that fail, clamped to [0, 1]
func (c *Chaos) SetFailureRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureRate = rate
}

// SetDelay sets the slow mode delay range
func (c *Chaos) SetDelay(lo, hi time.Duration) {
	if hi < lo {
		hi = lo
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minDelay, c.maxDelay = lo, hi
}

func (c *Chaos) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	metrics.ChaosFailureRate.WithLabelValues(c.service).Set(boolGauge(enabled))
}

func (c *Chaos) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Chaos) SetSlowMode(enabled bool) {
	c.mu.Lock()
	c.slowMode = enabled
	c.mu.Unlock()
	metrics.ChaosSlowMode.WithLabelValues(c.service).Set(boolGauge(enabled))
}

func (c *Chaos) SlowMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slowMode
}

// roll returns the delay to apply and whether the request fails
func (c *Chaos) roll() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var delay time.Duration
	if c.slowMode {
		delay = c.minDelay
		if spread := c.maxDelay - c.minDelay; spread > 0 {
			delay += time.Duration(c.rnd.Int63n(int64(spread)))
		}
	}
	fail := c.enabled && c.rnd.Float64() < c.failureRate
	return delay, fail
}

// Middleware delays or fails requests according to the chaos settings.
// A delayed request gives up when the client goes away.
func (c *Chaos) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		delay, fail := c.roll()
		if delay > 0 {
			log.WithField("delay_ms", delay.Milliseconds()).Debug("Chaos: Simulating slow response")
			select {
			case <-time.After(delay):
			case <-ctx.Request.Context().Done():
				ctx.Abort()
				return
			}
		}
		if fail {
			log.WithFields(log.Fields{
				"method": ctx.Request.Method,
				"path":   ctx.Request.URL.Path,
			}).Warn("Chaos: Simulated gateway failure")
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody(CodeUnavailable,
				"Gateway temporarily unavailable"))
			return
		}
		ctx.Next()
	}
}

func (c *Chaos) enable(ctx *gin.Context) {
	c.SetEnabled(true)
	log.Info("Chaos mode ENABLED for sandbox gateway")
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Chaos mode enabled",
		"info":    "a share of gateway requests will fail with 503",
	})
}

func (c *Chaos) disable(ctx *gin.Context) {
	c.SetEnabled(false)
	c.SetSlowMode(false)
	log.Info("Chaos mode DISABLED for sandbox gateway")
	ctx.JSON(http.StatusOK, gin.H{"message": "Chaos mode disabled"})
}

func (c *Chaos) enableSlow(ctx *gin.Context) {
	c.SetSlowMode(true)
	log.Info("Slow mode ENABLED for sandbox gateway")
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Slow mode enabled",
		"info":    "gateway requests will be delayed",
	})
}

func (c *Chaos) disableSlow(ctx *gin.Context) {
	c.SetSlowMode(false)
	log.Info("Slow mode DISABLED for sandbox gateway")
	ctx.JSON(http.StatusOK, gin.H{"message": "Slow mode disabled"})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
