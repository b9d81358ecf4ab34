package obs

import (
	"context"
	"sync"
)

// routePatternKey is the context key storing matched route pattern.
type routePatternKey struct{}

// annotationsKey is the context key storing request log annotations.
type annotationsKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// Annotations collects fields that inner handlers attach to the request log line.
type Annotations struct {
	mu     sync.Mutex
	fields map[string]string
}

func (a *Annotations) set(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fields == nil {
		a.fields = make(map[string]string)
	}
	a.fields[key] = value
}

// Fields returns a copy of the collected fields.
func (a *Annotations) Fields() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.fields))
	for k, v := range a.fields {
		out[k] = v
	}
	return out
}

// WithAnnotations attaches an annotation set to ctx, reusing one an outer
// middleware already attached.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if a, ok := ctx.Value(annotationsKey{}).(*Annotations); ok {
		return ctx, a
	}
	a := &Annotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// Annotate adds key=value to the request log line. It is a no-op outside a logged request.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || value == "" {
		return
	}
	if a, ok := ctx.Value(annotationsKey{}).(*Annotations); ok {
		a.set(key, value)
	}
}
