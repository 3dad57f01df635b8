package authx

import "context"

type facadeContextKey struct{}

// WithFacade provisions the facade into the context at the composition
// root. Everything below reaches it through FromContext.
func WithFacade(ctx context.Context, f *Facade) context.Context {
	return context.WithValue(ctx, facadeContextKey{}, f)
}

// FromContext returns the provisioned facade.
//
// It panics when called outside a WithFacade scope: an unprovisioned
// facade is a programming error, and a silently returned zero facade would
// mask the missing setup.
func FromContext(ctx context.Context) *Facade {
	f, ok := ctx.Value(facadeContextKey{}).(*Facade)
	if !ok {
		panic("authx: FromContext called outside a WithFacade scope")
	}
	return f
}
