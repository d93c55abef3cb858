package cache

import (
	"context"
	"time"

	"WaPulse/config"
	"WaPulse/storage/redis"
)

const (
	tokenPrefix = "token"
)

// SetRefreshToken 存储租户的 refresh token
// Key: wpls:token:refresh:{tenant}
// TTL 与 JWT_REFRESH_DAYS 对齐
func SetRefreshToken(ctx context.Context, tenant, refreshToken string) error {
	key := redis.Key(tokenPrefix, "refresh", tenant)
	ttl := time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour

	return redis.Client().Set(ctx, key, refreshToken, ttl).Err()
}

// GetRefreshToken 获取租户当前有效的 refresh token
func GetRefreshToken(ctx context.Context, tenant string) (string, error) {
	key := redis.Key(tokenPrefix, "refresh", tenant)
	return redis.Client().Get(ctx, key).Result()
}

// DeleteRefreshToken 删除 refresh token，换新后旧令牌作废
func DeleteRefreshToken(ctx context.Context, tenant string) error {
	key := redis.Key(tokenPrefix, "refresh", tenant)
	return redis.Client().Del(ctx, key).Err()
}

// ValidateRefreshTokenExists 检查 refresh token 是否存在且匹配
func ValidateRefreshTokenExists(ctx context.Context, tenant, refreshToken string) bool {
	storedToken, err := GetRefreshToken(ctx, tenant)
	if err != nil {
		return false
	}
	return storedToken == refreshToken
}
