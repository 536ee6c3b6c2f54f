package realm

import (
	"context"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// withCacheFlushRetry runs op, and on failure flushes the local
// name/ID-mapping cache and retries exactly once. Stale cache state is
// a common transient cause of realm lookup failures and is cheap to
// clear. The second failure is returned as-is.
func withCacheFlushRetry[T any](ctx context.Context, op func() (T, error), flush func(context.Context) error) (T, error) {
	v, err := op()
	if err == nil {
		return v, nil
	}

	if ferr := flush(ctx); ferr != nil {
		logger.Warn("Failed to flush local cache before retry", "error", ferr)
	}
	return op()
}
