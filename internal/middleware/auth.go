package middleware

import (
	"context"
	"fmt"

	"WaPulse/config"
	"WaPulse/pkg/token"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	// 基于共享生成器创建 middleware，但需要添加 HTTP 相关的配置
	authMiddleware = &jwt.HertzJWTMiddleware{
		Realm:       "WaPulse API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			tenant, ok := claims[IdentityKey].(string)
			if !ok {
				return nil
			}
			return tenant
		},

		// 令牌合法但租户已从配置移除时同样拒绝
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			tenant, ok := data.(string)
			if !ok || tenant == "" {
				return false
			}
			for _, t := range config.Cfg.TenantList() {
				if t == tenant {
					return true
				}
			}
			return false
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{
				"error": map[string]interface{}{
					"code":    "UNAUTHORIZED",
					"message": message,
				},
			})
		},

		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
	}

	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetTenant 从请求上下文中获取已认证的租户标识
func GetTenant(ctx context.Context, c *app.RequestContext) (string, bool) {
	val, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	tenant, ok := val.(string)
	if !ok {
		return "", false
	}

	return tenant, true
}
