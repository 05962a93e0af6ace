package handler

import (
	"context"
	"net/http"
	"time"

	"systeminvoice/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health checks store and Redis connectivity; never exposes credentials or
// internals. rdb may be nil when Redis is not configured.
func Health(ping func(context.Context) error, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		storeStatus := "connected"
		if ping != nil && ping(ctx) != nil {
			storeStatus = "error"
		}

		redisStatus := "disabled"
		body := gin.H{}
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			} else if n, err := worker.ParkedCount(ctx, rdb, worker.QueueClosureReport); err == nil {
				body["dlq_closure_report"] = n
				if last, err := worker.RecentParked(ctx, rdb, worker.QueueClosureReport, 1); err == nil && len(last) == 1 && last[0].SessionID != nil {
					body["dlq_closure_report_last_session"] = last[0].SessionID.String()
				}
			}
		}

		status := http.StatusOK
		if storeStatus == "error" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}

		body["ok"] = status == http.StatusOK
		body["store"] = storeStatus
		body["redis"] = redisStatus
		c.JSON(status, body)
	}
}
