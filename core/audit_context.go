package core

import "context"

type recoveryCtxKey string

const (
	recoveryCtxKeyIP        recoveryCtxKey = "recoverykit.ip_addr"
	recoveryCtxKeyUserAgent recoveryCtxKey = "recoverykit.user_agent"
)

// WithRequestMeta annotates ctx with the caller's address and user agent so
// emitted events can carry them.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ip != "" {
		ctx = context.WithValue(ctx, recoveryCtxKeyIP, ip)
	}
	if userAgent != "" {
		ctx = context.WithValue(ctx, recoveryCtxKeyUserAgent, userAgent)
	}
	return ctx
}

func requestMetaFromContext(ctx context.Context) (ip, userAgent *string) {
	if ctx == nil {
		return nil, nil
	}
	return ctxString(ctx, recoveryCtxKeyIP), ctxString(ctx, recoveryCtxKeyUserAgent)
}

func ctxString(ctx context.Context, key recoveryCtxKey) *string {
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
