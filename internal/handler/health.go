package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"Plans/storage/database"
	"Plans/storage/mq"
	"Plans/storage/redis"
)

// Healthz 依赖未就绪时返回 503
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	checks := map[string]bool{
		"database": database.DB() != nil,
		"redis":    redis.Ready(),
		"rabbitmq": mq.Connection() != nil && !mq.Connection().IsClosed(),
	}

	code, status := consts.StatusOK, "ok"
	for _, ok := range checks {
		if !ok {
			code, status = consts.StatusServiceUnavailable, "degraded"
		}
	}

	c.JSON(code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
