package main

import (
	"github.com/gin-gonic/gin"

	"call-router/internal/httpapi"
	"call-router/internal/webhook"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, hooks *webhook.Handler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Carrier webhooks (public). The handler always returns 200; failures
	// are logged internally.
	r.POST("/webhooks/telnyx", hooks.Handle)

	r.POST("/v1/auth/login", h.Login)

	// protected operator API
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/calls", h.ListCalls)
		v1.POST("/calls", h.PlaceCall)
		v1.GET("/calls/:call_id", h.GetCall)
		v1.PATCH("/calls/:call_id", h.UpdateCall)
		v1.POST("/calls/:call_id/notify", h.NotifyCall)

		v1.GET("/report", h.Report)
		v1.GET("/events", h.RecentEvents)
	}
}
