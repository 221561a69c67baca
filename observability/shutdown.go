package observability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is given.
const DefaultShutdownTimeout = 10 * time.Second

// Shutdown flushes pending spans and retry metrics, then closes the exporters, all within
// timeout. A nil provider is a no-op.
func Shutdown(provider Provider, timeout time.Duration) error {
	if provider == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx)); err != nil {
		return fmt.Errorf("observability shutdown failed: %w", err)
	}
	return nil
}
