package httpx

import "context"

type ctxKey string

const CtxKeyCaller ctxKey = "caller"

// CallerFromContext returns the authenticated API caller, if any.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyCaller).(string); ok {
		return v
	}
	return ""
}

func contextWithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, CtxKeyCaller, caller)
}
