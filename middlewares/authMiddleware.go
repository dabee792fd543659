package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/utils"
)

type authString string

// AuthMiddleware requires a bearer token and puts its business, user and role into the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.BusinessId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
		ctx = utils.SetBusinessIdInContext(ctx, customClaim.BusinessId)
		ctx = utils.SetUserInContext(ctx, customClaim.ID, customClaim.Name)
		ctx = utils.SetRoleInContext(ctx, customClaim.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
