package main

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"voicedesk/internal/rbac"
	"voicedesk/internal/telephony"
	"voicedesk/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h *telephony.Handlers, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(503, gin.H{"error": "db unavailable"})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.AbortWithStatusJSON(503, gin.H{"error": "redis unavailable"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	webhooks := r.Group("/webhooks/voice")
	{
		webhooks.POST("/inbound", h.HandleInboundVoice)
		webhooks.POST("/conference", h.HandleConferenceStatus)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		calls := v1.Group("/voice")
		calls.Use(rbac.RequireAccount())
		{
			calls.POST("/calls",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAgent),
				h.HandleStartOutgoingCall,
			)
			calls.GET("/conversations/:display_id/call", h.HandleGetCallState)
		}
	}
}
