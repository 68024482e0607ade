package v1

import (
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	bearer := BearerAuthMiddleware(h.authenticator, h.logger)

	incidents := api.Group("/incidents")
	{
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)

		// жизненный цикл инцидента
		incidents.POST("", bearer, h.createIncident)
		incidents.POST("/:id/verify", bearer, RequireRole(models.RoleAdmin), h.verifyIncident)
		incidents.POST("/:id/reject", bearer, RequireRole(models.RoleAdmin), h.rejectIncident)
		incidents.PATCH("/:id/status", bearer, RequireRole(models.RoleResponder, models.RoleAdmin), h.updateStatus)
		incidents.POST("/:id/clear", bearer, RequireRole(models.RoleResponder, models.RoleAdmin), h.clearIncident)
	}

	analytics := api.Group("/analytics")
	{
		analytics.GET("/congestion", h.congestion)
		analytics.GET("/hotspots", h.hotspots)
		analytics.GET("/peak-hours", h.peakHours)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
