package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
	mongo *mongo.Client
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client, mc *mongo.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, mongo: mc}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err == nil {
			components["postgres"] = "ok"
		} else {
			components["postgres"] = "down"
			healthy = false
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err == nil {
			components["redis"] = "ok"
		} else {
			components["redis"] = "down"
			healthy = false
		}
	}
	if h.mongo != nil {
		if err := h.mongo.Ping(ctx, nil); err == nil {
			components["mongo"] = "ok"
		} else {
			components["mongo"] = "down"
			healthy = false
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": components})
}
