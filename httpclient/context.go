/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const ctxKeyIdempotentHint ctxKey = iota

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// When set to true, the request is considered idempotent even if it's not a GET/HEAD/OPTIONS request.
// Custom RetryableRoundTripper.CheckRetry implementations may use the hint to decide
// whether it's safe to retry unsafe methods like POST and PATCH on retriable server errors.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from context.
// Returns false when the key is not present. See NewContextWithIdempotentHint for details.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	value := ctx.Value(ctxKeyIdempotentHint)
	if value == nil {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}
