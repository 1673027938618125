package patterns

import (
	"context"
	"time"
)

// DefaultTimeout bounds one round trip to the gateway
const DefaultTimeout = 3 * time.Second

// SlowServiceTimeout is used by callers that chain several gateway calls
const SlowServiceTimeout = 10 * time.Second

// WithTimeout derives a fail-fast context from parent. A nil parent means Background.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if duration <= 0 {
		duration = DefaultTimeout
	}
	return context.WithTimeout(parent, duration)
}
