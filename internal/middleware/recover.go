package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"WaPulse/config"
	"WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/response"
)

// RecoverMiddleware 兜底 panic，记录堆栈并返回 500
func RecoverMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}) {
	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.ByteString("stack", formatStack(debug.Stack())),
	}

	if tenant, exists := GetTenant(ctx, c); exists {
		fields = append(fields, zap.String("tenant", tenant))
	}

	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	errDef := errors.Definition{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
	}
	if !config.Cfg.IsProduction() {
		errDef.Message = fmt.Sprintf("Internal error: %v", err)
	}
	response.Error(ctx, c, errDef)
	c.Abort()
}

// formatStack 去掉 runtime 层的冗余帧
func formatStack(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")
	var filtered []string

	for i, line := range lines {
		if strings.Contains(line, "runtime/panic.go") ||
			strings.Contains(line, "runtime/debug/stack.go") {
			continue
		}
		if strings.Contains(line, "/runtime/") {
			continue
		}
		if i < len(lines)-1 && strings.Contains(lines[i+1], "src/runtime/") {
			continue
		}
		filtered = append(filtered, line)
	}

	return []byte(strings.Join(filtered, "\n"))
}
