package api

import (
	"errors"
	"net/http"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/service"

	"github.com/gin-gonic/gin"
)

// ScheduleHandler exposes the delivery-schedule configuration surface.
type ScheduleHandler struct {
	engine    *service.DeliveryEngine
	schedules service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(engine *service.DeliveryEngine, schedules service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{engine: engine, schedules: schedules}
}

// --- DTOs for API (Data Transfer Objects) ---

// CreateScheduleRequest defines the expected JSON for creating a schedule.
type CreateScheduleRequest struct {
	Profile      domain.UserProfile         `json:"userProfile" binding:"required"`
	Frequency    domain.DeliveryFrequency   `json:"deliveryFrequency" binding:"omitempty,oneof=weekly biweekly"`
	DeliveryDay  string                     `json:"deliveryDay" binding:"omitempty"`
	DeliveryTime string                     `json:"deliveryTime" binding:"omitempty"` // "HH:MM"
	Timezone     string                     `json:"timezone" binding:"omitempty"`
	LongTermGoal *domain.LongTermGoal       `json:"longTermGoal,omitempty"`
	Adaptation   *domain.AdaptationSettings `json:"adaptationSettings,omitempty"`
}

// UpdateScheduleRequest carries partial schedule settings. Omitted fields
// are left untouched.
type UpdateScheduleRequest struct {
	Profile      *domain.UserProfile        `json:"userProfile,omitempty"`
	Frequency    *domain.DeliveryFrequency  `json:"deliveryFrequency,omitempty" binding:"omitempty,oneof=weekly biweekly"`
	DeliveryDay  *string                    `json:"deliveryDay,omitempty"`
	DeliveryTime *string                    `json:"deliveryTime,omitempty"`
	Timezone     *string                    `json:"timezone,omitempty"`
	LongTermGoal *domain.LongTermGoal       `json:"longTermGoal,omitempty"`
	Adaptation   *domain.AdaptationSettings `json:"adaptationSettings,omitempty"`
}

// PauseScheduleRequest pauses deliveries until a given instant.
type PauseScheduleRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

// ScheduleResponse is the DTO for returning schedule details.
type ScheduleResponse struct {
	ID               string                     `json:"id"`
	UserID           string                     `json:"userId"`
	Profile          domain.UserProfile         `json:"userProfile"`
	Frequency        domain.DeliveryFrequency   `json:"deliveryFrequency"`
	DeliveryDay      string                     `json:"deliveryDay"`
	DeliveryTime     string                     `json:"deliveryTime"`
	Timezone         string                     `json:"timezone"`
	IsActive         bool                       `json:"isActive"`
	PausedUntil      *time.Time                 `json:"pausedUntil,omitempty"`
	LastDeliveryDate *time.Time                 `json:"lastDeliveryDate,omitempty"`
	NextDeliveryDate time.Time                  `json:"nextDeliveryDate"`
	Progress         domain.ProgressTracking    `json:"progressTracking"`
	LongTermGoal     *domain.LongTermGoal       `json:"longTermGoal,omitempty"`
	Adaptation       domain.AdaptationSettings  `json:"adaptationSettings"`
	RecentPlans      []domain.RecentPlanRef     `json:"recentPlans,omitempty"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// MapScheduleToResponse converts a domain.DeliverySchedule to its DTO.
func MapScheduleToResponse(s *domain.DeliverySchedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:               s.ID.Hex(),
		UserID:           s.UserID.Hex(),
		Profile:          s.Profile,
		Frequency:        s.Frequency,
		DeliveryDay:      s.DeliveryDay,
		DeliveryTime:     s.DeliveryTime,
		Timezone:         s.Timezone,
		IsActive:         s.IsActive,
		PausedUntil:      s.PausedUntil,
		LastDeliveryDate: s.LastDeliveryDate,
		NextDeliveryDate: s.NextDeliveryDate,
		Progress:         s.Progress,
		LongTermGoal:     s.LongTermGoal,
		Adaptation:       s.Adaptation,
		RecentPlans:      s.RecentPlans,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// --- Handler Methods ---

// CreateSchedule godoc
// @Summary Create the delivery schedule for the authenticated user
// @Description Creates a recurring weekly-plan delivery schedule. A user can have at most one active schedule.
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param schedule body CreateScheduleRequest true "Schedule settings"
// @Success 201 {object} ScheduleResponse "Schedule created"
// @Failure 400 {object} gin.H "Invalid input (validation error)"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 409 {object} gin.H "Conflict (active schedule already exists)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule [post]
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	schedule := &domain.DeliverySchedule{
		UserID:       userID,
		Profile:      req.Profile,
		Frequency:    req.Frequency,
		DeliveryDay:  req.DeliveryDay,
		DeliveryTime: req.DeliveryTime,
		Timezone:     req.Timezone,
		LongTermGoal: req.LongTermGoal,
	}
	if req.Adaptation != nil {
		schedule.Adaptation = *req.Adaptation
	}

	created, err := h.engine.CreateSchedule(c.Request.Context(), schedule)
	if err != nil {
		if errors.Is(err, service.ErrScheduleConflict) {
			abortWithError(c, http.StatusConflict, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to create schedule.")
		}
		return
	}

	c.JSON(http.StatusCreated, MapScheduleToResponse(created))
}

// GetSchedule godoc
// @Summary Get the active schedule for the authenticated user
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ScheduleResponse "Active schedule"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No active schedule"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule [get]
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	schedule, err := h.schedules.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondScheduleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MapScheduleToResponse(schedule))
}

// UpdateSchedule godoc
// @Summary Update schedule settings
// @Description Applies a partial update to the active schedule's settings. Timing changes recompute the next delivery date.
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param update body UpdateScheduleRequest true "Settings to change"
// @Success 200 {object} ScheduleResponse "Updated schedule"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No active schedule"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule [patch]
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	updated, err := h.schedules.Update(c.Request.Context(), userID, service.ScheduleUpdate{
		Profile:      req.Profile,
		Frequency:    req.Frequency,
		DeliveryDay:  req.DeliveryDay,
		DeliveryTime: req.DeliveryTime,
		Timezone:     req.Timezone,
		LongTermGoal: req.LongTermGoal,
		Adaptation:   req.Adaptation,
	})
	if err != nil {
		h.respondScheduleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MapScheduleToResponse(updated))
}

// PauseSchedule godoc
// @Summary Pause deliveries until a given time
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param pause body PauseScheduleRequest true "Pause deadline"
// @Success 200 {object} ScheduleResponse "Paused schedule"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No active schedule"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule/pause [post]
func (h *ScheduleHandler) PauseSchedule(c *gin.Context) {
	var req PauseScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	schedule, err := h.schedules.Pause(c.Request.Context(), userID, req.Until)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			abortWithError(c, http.StatusBadRequest, "Pause deadline must be in the future.")
			return
		}
		h.respondScheduleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MapScheduleToResponse(schedule))
}

// ResumeSchedule godoc
// @Summary Resume paused deliveries
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ScheduleResponse "Resumed schedule"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No active schedule"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule/resume [post]
func (h *ScheduleHandler) ResumeSchedule(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	schedule, err := h.schedules.Resume(c.Request.Context(), userID)
	if err != nil {
		h.respondScheduleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MapScheduleToResponse(schedule))
}

// DeactivateSchedule godoc
// @Summary Deactivate the active schedule
// @Description Stops recurring deliveries. Progression state is kept so the schedule can be recreated later.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} gin.H "Schedule deactivated"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No active schedule"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /schedule [delete]
func (h *ScheduleHandler) DeactivateSchedule(c *gin.Context) {
	userID, err := getUserObjectID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	if err := h.schedules.Deactivate(c.Request.Context(), userID); err != nil {
		h.respondScheduleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}

func (h *ScheduleHandler) respondScheduleError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrScheduleNotFound) {
		abortWithError(c, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, service.ErrInvalidInput) {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	abortWithError(c, http.StatusInternalServerError, "Failed to process schedule request.")
}
