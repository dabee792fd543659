package utils

import (
	"context"

	"github.com/mmdatafocus/erp_core/appctx"
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	businessId := appctx.BusinessId(ctx)
	return businessId, businessId != ""
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	id, ok := appctx.IdentityFrom(ctx)
	return id.UserId, ok
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	id, ok := appctx.IdentityFrom(ctx)
	return id.UserName, ok && id.UserName != ""
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	id, ok := appctx.IdentityFrom(ctx)
	return id.Role, ok && id.Role != ""
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.CorrelationId(ctx)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.UpdateIdentity(ctx, func(id *appctx.Identity) { id.BusinessId = businessId })
}

func SetUserInContext(ctx context.Context, userId int, userName string) context.Context {
	return appctx.UpdateIdentity(ctx, func(id *appctx.Identity) {
		id.UserId = userId
		id.UserName = userName
	})
}

func SetRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.UpdateIdentity(ctx, func(id *appctx.Identity) { id.Role = role })
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.WithCorrelationId(ctx, correlationId)
}

// WithSkipTenantScope disables the tenant guard for internal jobs that scan every business.
func WithSkipTenantScope(ctx context.Context) context.Context {
	return appctx.WithoutTenantScope(ctx)
}

// SystemContext builds the context used by CLI jobs and background workers acting for a business.
func SystemContext(ctx context.Context, businessId string) context.Context {
	return appctx.WithIdentity(ctx, appctx.Identity{BusinessId: businessId, UserName: "System"})
}
