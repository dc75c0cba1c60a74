package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/service"

	"github.com/gin-gonic/gin"
)

// PlanHandler exposes plan generation, history, progress and bulk delete.
type PlanHandler struct {
	engine    *service.DeliveryEngine
	schedules service.ScheduleService
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(engine *service.DeliveryEngine, schedules service.ScheduleService) *PlanHandler {
	return &PlanHandler{engine: engine, schedules: schedules}
}

// --- DTOs for API (Data Transfer Objects) ---

// GeneratePlanRequest triggers an immediate generation. When the user has
// no persisted schedule, a profile must be supplied so a one-off plan can
// be produced instead.
type GeneratePlanRequest struct {
	Reset   bool                `json:"reset"`
	Profile *domain.UserProfile `json:"userProfile,omitempty"`
}

// UpdateProgressRequest marks a delivered week completed and optionally rated.
type UpdateProgressRequest struct {
	WasCompleted   bool               `json:"wasCompleted"`
	CompletionRate float64            `json:"completionRate"` // percent, 0-100
	Rating         *domain.PlanRating `json:"ratingData,omitempty"`
}

// PlanResponse is the DTO for returning a weekly plan.
type PlanResponse struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId"`
	ParentSchedule string              `json:"parentSchedule,omitempty"`
	PlanType       string              `json:"planType"`
	WeekNumber     int                 `json:"weekNumber"`
	Metadata       domain.PlanMetadata `json:"metadata"`
	Weeks          []domain.PlanWeek   `json:"plan_weeks"`
	Progress       domain.PlanProgress `json:"progress"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// MapPlanToResponse converts a domain.WeeklyPlan to PlanResponse DTO.
func MapPlanToResponse(plan *domain.WeeklyPlan) PlanResponse {
	if plan == nil {
		return PlanResponse{}
	}
	resp := PlanResponse{
		ID:         plan.ID,
		UserID:     plan.UserID.Hex(),
		PlanType:   plan.PlanType,
		WeekNumber: plan.WeekNumber,
		Metadata:   plan.Metadata,
		Weeks:      plan.Weeks,
		Progress:   plan.Progress,
		CreatedAt:  plan.CreatedAt,
		UpdatedAt:  plan.UpdatedAt,
	}
	if plan.ParentSchedule != nil {
		resp.ParentSchedule = plan.ParentSchedule.Hex()
	}
	return resp
}

// MapPlansToResponse converts a slice of domain.WeeklyPlan to DTOs.
func MapPlansToResponse(plans []domain.WeeklyPlan) []PlanResponse {
	responses := make([]PlanResponse, len(plans))
	for i := range plans {
		responses[i] = MapPlanToResponse(&plans[i])
	}
	return responses
}

// --- Handler Methods ---

// GeneratePlan godoc
// @Summary Generate the next weekly plan now
// @Description Generates and delivers the next weekly plan immediately, advancing progression. With reset=true the progression restarts at week one. Users without a schedule get a one-off plan when a profile is supplied.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GeneratePlanRequest false "Generation options"
// @Success 201 {object} PlanResponse "Generated plan"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No schedule and no profile supplied"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /plans/generate [post]
func (h *PlanHandler) GeneratePlan(c *gin.Context) {
	var req GeneratePlanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	plan, err := h.engine.GenerateForUser(c.Request.Context(), userID, req.Reset)
	if errors.Is(err, service.ErrScheduleNotFound) && req.Profile != nil {
		plan, err = h.engine.GenerateAdHoc(c.Request.Context(), userID, *req.Profile, req.Reset)
	}
	if err != nil {
		if errors.Is(err, service.ErrScheduleNotFound) {
			abortWithError(c, http.StatusNotFound, "No active schedule. Supply a userProfile for a one-off plan.")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to generate plan.")
		}
		return
	}

	c.JSON(http.StatusCreated, MapPlanToResponse(plan))
}

// UpdateProgress godoc
// @Summary Record progress for a delivered week
// @Description Marks a plan completed and optionally rated. The plan is referenced by its ID or by week number. An unknown reference is reported as updated=false, not an error.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan ID or week number"
// @Param progress body UpdateProgressRequest true "Progress payload"
// @Success 200 {object} service.ProgressResult "Progress recorded"
// @Failure 400 {object} gin.H "Invalid payload"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /plans/{planId}/progress [post]
func (h *PlanHandler) UpdateProgress(c *gin.Context) {
	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	result, err := h.engine.UpdateWeeklyProgress(c.Request.Context(), userID, c.Param("planId"), service.ProgressUpdate{
		WasCompleted:   req.WasCompleted,
		CompletionRate: req.CompletionRate,
		Rating:         req.Rating,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidProgress) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to record progress.")
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHistory godoc
// @Summary List delivered plans, newest first
// @Tags Plans
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 50)"
// @Param skip query int false "Offset"
// @Success 200 {array} PlanResponse "Plan history"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /plans [get]
func (h *PlanHandler) GetHistory(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)

	plans, err := h.schedules.History(c.Request.Context(), userID, limit, skip)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve plan history.")
		return
	}

	if plans == nil {
		c.JSON(http.StatusOK, []PlanResponse{})
		return
	}

	c.JSON(http.StatusOK, MapPlansToResponse(plans))
}

// GetPlan godoc
// @Summary Get a single delivered plan
// @Tags Plans
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan ID"
// @Success 200 {object} PlanResponse "Plan"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "Plan not found"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /plans/{planId} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	plan, err := h.schedules.GetPlan(c.Request.Context(), userID, c.Param("planId"))
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to retrieve plan.")
		}
		return
	}

	c.JSON(http.StatusOK, MapPlanToResponse(plan))
}

// DeleteAllPlans godoc
// @Summary Delete all of the user's plans
// @Description Removes every stored plan for the user and resets the schedule's progression to week one. Idempotent.
// @Tags Plans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.DeleteReport "Delete summary"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /plans [delete]
func (h *PlanHandler) DeleteAllPlans(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	report, err := h.engine.DeleteAllPlans(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to delete plans.")
		return
	}

	c.JSON(http.StatusOK, report)
}
