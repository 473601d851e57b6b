package script

import "context"

// RequestContext carries the caller identity and ad-hoc values a directive may read.
type RequestContext struct {
	UserAuthID   string
	UserAuthName string
	Items        map[string]any
}

type contextKey struct{}

// WithRequestContext stores rc in ctx
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the stored RequestContext, or an empty one.
func FromContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if rc, ok := ctx.Value(contextKey{}).(*RequestContext); ok && rc != nil {
			return rc
		}
	}
	return &RequestContext{}
}
