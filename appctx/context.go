// Package appctx carries the request-scoped caller identity. It has no dependencies so both
// config (tenant guard) and utils can import it.
package appctx

import "context"

// Identity is the caller an operation runs for. Ledger and stock writes are scoped to BusinessId.
type Identity struct {
	BusinessId string
	UserId     int
	UserName   string
	Role       string
}

type ctxKey int

const (
	identityKey ctxKey = iota
	correlationKey
	skipTenantKey
)

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// UpdateIdentity applies fn to a copy of the current identity (zero value if none) and stores the result.
func UpdateIdentity(ctx context.Context, fn func(*Identity)) context.Context {
	id, _ := IdentityFrom(ctx)
	fn(&id)
	return WithIdentity(ctx, id)
}

func BusinessId(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.BusinessId
}

func WithCorrelationId(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, correlationKey, correlationId)
}

func CorrelationId(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationKey).(string)
	return v, ok && v != ""
}

// WithoutTenantScope turns off automatic business_id scoping. Internal jobs only.
func WithoutTenantScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipTenantKey, true)
}

func TenantScopeDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(skipTenantKey).(bool)
	return v
}
