package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/internal/service"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
	"github.com/classsync/classsync-api/pkg/response"
)

// ScheduleHandler wires schedule-slot management to HTTP routes.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs a new ScheduleHandler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// List godoc
// @Summary List schedule slots
// @Tags Schedules
// @Produce json
// @Param teacher_id query string false "Filter by teacher"
// @Param weekday query int false "Filter by weekday (0=Sunday..6=Saturday)"
// @Param class_section query string false "Filter by class section"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ScheduleSlotFilter{
		SchoolID:     claims.SchoolID,
		TeacherID:    c.Query("teacher_id"),
		ClassSection: strings.TrimSpace(c.Query("class_section")),
	}
	if raw := c.Query("weekday"); raw != "" {
		weekday, err := strconv.Atoi(raw)
		if err != nil || weekday < models.WeekdayMin || weekday > models.WeekdayMax {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "weekday must be an integer between 0 and 6"))
			return
		}
		filter.Weekday = &weekday
	}

	slots, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// MyTimetable godoc
// @Summary Current teacher's timetable with wall-clock times
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedules/mine [get]
func (h *ScheduleHandler) MyTimetable(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.schedules.Timetable(c.Request.Context(), claims.SchoolID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// TeacherTimetable godoc
// @Summary A teacher's timetable with wall-clock times
// @Tags Schedules
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/teacher/{id} [get]
func (h *ScheduleHandler) TeacherTimetable(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.schedules.Timetable(c.Request.Context(), claims.SchoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// SchoolSettings godoc
// @Summary School timetable configuration
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school [get]
func (h *ScheduleHandler) SchoolSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	school, err := h.schedules.School(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// UpdateSchoolSettings godoc
// @Summary Update school timetable configuration
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.UpdateTimetableRequest true "Timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /school [put]
func (h *ScheduleHandler) UpdateSchoolSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	school, err := h.schedules.UpdateTimetable(c.Request.Context(), claims.SchoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// Create godoc
// @Summary Create schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CreateScheduleSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateScheduleSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule slot payload"))
		return
	}
	slot, err := h.schedules.Create(c.Request.Context(), claims.SchoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Update schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.UpdateScheduleSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateScheduleSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule slot payload"))
		return
	}
	slot, err := h.schedules.Update(c.Request.Context(), c.Param("id"), claims.SchoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete schedule slot
// @Tags Schedules
// @Param id path string true "Slot ID"
// @Success 204 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id"), claims.SchoolID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
