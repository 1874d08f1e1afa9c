package transport

import "context"

type contextRetryKey string

// ctxRetried marks a request that has already been replayed after a refresh;
// a second 401 on such a request is terminal. The marker travels explicitly
// through the retry path instead of being stashed on a shared request object.
const ctxRetried contextRetryKey = "retried"

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxRetried, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(ctxRetried).(bool)
	return retried
}
