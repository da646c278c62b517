// internal/middleware/rate_limit.go
package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/contract-engine/internal/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key, the client IP unless keyFunc
// says otherwise.
type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
	keyFunc  func(c *gin.Context) string
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		keyFunc:  func(c *gin.Context) string { return c.ClientIP() },
	}

	// Clean up old visitors every minute
	go rl.cleanupVisitors()

	return rl
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mtx.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mtx.Unlock()
	}
}

// WithKey limits by a custom key, for example user and route.
func (rl *RateLimiter) WithKey(keyFunc func(c *gin.Context) string) *RateLimiter {
	rl.keyFunc = keyFunc
	return rl
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getVisitor(rl.keyFunc(c))

		if !limiter.Allow() {
			utils.TooManyRequestsResponse(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}

// Default rate limiters
var (
	generalLimiter = NewRateLimiter(rate.Every(100*time.Millisecond), 20) // 10 requests per second
	otpLimiter     = NewRateLimiter(rate.Every(time.Minute), 5).WithKey(otpKey)
	webhookLimiter = NewRateLimiter(rate.Every(10*time.Millisecond), 200)
)

func GeneralRateLimit() gin.HandlerFunc {
	return generalLimiter.Middleware()
}

// OtpRateLimit bounds code requests and signing attempts per user and
// contract, on top of the persisted resend cooldown.
func OtpRateLimit() gin.HandlerFunc {
	return otpLimiter.Middleware()
}

func WebhookRateLimit() gin.HandlerFunc {
	return webhookLimiter.Middleware()
}

func otpKey(c *gin.Context) string {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		userID = c.ClientIP()
	}
	return userID + ":" + c.Param("id") + ":" + c.FullPath()
}
