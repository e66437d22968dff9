package interfaces

import "context"

type idempotencyKey struct{}

// WithIdempotencyKey tags ctx so a Ledger implementation can deduplicate
// retried movements of the same logical payment.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	if v, ok := ctx.Value(idempotencyKey{}).(string); ok {
		return v
	}
	return ""
}
