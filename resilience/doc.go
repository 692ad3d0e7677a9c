// Package resilience holds the caller-side failure policies applied around
// backend calls. Adapters never retry on their own; callers opt in here.
//
//   - Retry: bounded attempts with exponential backoff, retrying only
//     errors classified as retryable
//   - Breaker: stops calling a backend after repeated failures and probes it
//     again after a cool-down
//
//	tok, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(attempt int) (*Token, error) {
//	    return client.Refresh(ctx, refreshToken)
//	})
package resilience
