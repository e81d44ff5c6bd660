package patterns

import (
	"context"
	"time"
)

const (
	DefaultTimeout = 8 * time.Second
	NotifyTimeout  = 5 * time.Second
)

// Detached returns a context that carries no deadline or cancellation from
// parent, bounded by d. Used for work that outlives the request.
func Detached(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), d)
}
