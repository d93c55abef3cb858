package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"WaPulse/config"
	"WaPulse/internal/cache"
	"WaPulse/internal/model/dto"
	"WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/response"
	"WaPulse/pkg/token"
)

// IssueToken 为配置过的租户签发令牌
// POST /v1/auth/token
func IssueToken(ctx context.Context, c *app.RequestContext) {
	var req dto.IssueTokenRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if !validTenant(req.Tenant) {
		response.Error(ctx, c, errors.InvalidTenant)
		return
	}

	accessToken, refreshToken, expiresIn, err := token.GenerateTokenPair(req.Tenant)
	if err != nil {
		logger.Logger.Error("Failed to generate token pair", zap.String("tenant", req.Tenant), zap.Error(err))
		response.Error(ctx, c, err)
		return
	}

	if err := cache.SetRefreshToken(ctx, req.Tenant, refreshToken); err != nil {
		logger.Logger.Warn("Failed to store refresh token", zap.String("tenant", req.Tenant), zap.Error(err))
	}

	response.Success(ctx, c, &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

// RefreshToken 用 refresh token 换新令牌对
// POST /v1/auth/token/refresh
func RefreshToken(ctx context.Context, c *app.RequestContext) {
	var req dto.RefreshTokenRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	tenant, err := token.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	// 租户可能在令牌存续期间被移除
	if !validTenant(tenant) {
		response.Error(ctx, c, errors.InvalidTenant)
		return
	}

	// 旋转：只认 Redis 里最新的那个 refresh token
	if !cache.ValidateRefreshTokenExists(ctx, tenant, req.RefreshToken) {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	accessToken, refreshToken, expiresIn, err := token.GenerateTokenPair(tenant)
	if err != nil {
		logger.Logger.Error("Failed to refresh token pair", zap.String("tenant", tenant), zap.Error(err))
		response.Error(ctx, c, err)
		return
	}

	if err := cache.SetRefreshToken(ctx, tenant, refreshToken); err != nil {
		logger.Logger.Warn("Failed to rotate refresh token", zap.String("tenant", tenant), zap.Error(err))
	}

	response.Success(ctx, c, &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

func validTenant(tenant string) bool {
	for _, t := range config.Cfg.TenantList() {
		if t == tenant {
			return true
		}
	}
	return false
}
