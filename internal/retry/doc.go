// Package retry runs store operations with capped exponential backoff.
//
//	err := retry.Do(ctx, &retry.Config{MaxRetries: 2}, func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	}, &retry.Options{ShouldRetry: isTransient})
//
// Do stops early when the context is cancelled or ShouldRetry rejects an
// error. Errors wrapped with Permanent are never retried.
package retry
