package middlewares

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID retorna el request id inyectado por WithRequestID, o "".
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}
