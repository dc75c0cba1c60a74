package api

import (
	"net/http"

	"stridecoach/coach-app/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operational triggers normally driven by cron.
type AdminHandler struct {
	engine *service.DeliveryEngine
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(engine *service.DeliveryEngine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

// RunDeliveries godoc
// @Summary Run the due-delivery sweep now
// @Description Processes every schedule whose next delivery date has passed. Individual failures are collected in the report, never aborting the batch.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.BatchReport "Batch report"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden (not an admin)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /admin/deliveries/run [post]
func (h *AdminHandler) RunDeliveries(c *gin.Context) {
	report, err := h.engine.ProcessScheduledDeliveries(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to process scheduled deliveries.")
		return
	}
	c.JSON(http.StatusOK, report)
}

// RunOverdueDeliveries godoc
// @Summary Run the overdue catch-up sweep now
// @Description Processes a bounded batch of schedules that missed their delivery window.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.BatchReport "Batch report"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden (not an admin)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /admin/deliveries/overdue [post]
func (h *AdminHandler) RunOverdueDeliveries(c *gin.Context) {
	report, err := h.engine.ProcessOverdueDeliveries(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to process overdue deliveries.")
		return
	}
	c.JSON(http.StatusOK, report)
}
