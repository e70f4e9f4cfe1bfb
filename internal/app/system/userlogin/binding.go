// internal/app/system/userlogin/binding.go
package userlogin

import (
	"context"
	"sync/atomic"
)

type ctxKey struct{}

// Binding ties the record being negotiated to one request. It lives in the
// request's context, so no two requests ever observe each other's binding.
type Binding struct {
	rec atomic.Pointer[Record]
}

// Bind returns a context carrying a binding to rec. Callers must Unbind
// before the request returns, on every path.
func Bind(ctx context.Context, rec *Record) (context.Context, *Binding) {
	b := &Binding{}
	b.rec.Store(rec)
	return context.WithValue(ctx, ctxKey{}, b), b
}

// Rebind points the binding at rec. Used after session regeneration.
func (b *Binding) Rebind(rec *Record) {
	b.rec.Store(rec)
}

// Unbind empties the binding. Contexts derived from the request that outlive
// it see no current record afterwards.
func (b *Binding) Unbind() {
	b.rec.Store(nil)
}

// Record returns the bound record or nil.
func (b *Binding) Record() *Record {
	if b == nil {
		return nil
	}
	return b.rec.Load()
}

// Current returns the record bound to ctx, or nil when there is none.
func Current(ctx context.Context) *Record {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(ctxKey{}).(*Binding)
	return b.Record()
}
