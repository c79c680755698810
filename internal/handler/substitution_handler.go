package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/internal/service"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
	"github.com/classsync/classsync-api/pkg/response"
)

const dateLayout = "2006-01-02"

type substitutionService interface {
	GenerateSubstitutions(ctx context.Context, req service.GenerateSubstitutionsRequest) (*models.ExpansionResult, error)
	Override(ctx context.Context, schoolID string, req service.OverrideSubstitutionRequest) error
	ListMine(ctx context.Context, schoolID, teacherID string, from time.Time) ([]models.SubstitutionDetail, error)
	ListBySchool(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, *models.Pagination, error)
	ExportHistory(ctx context.Context, filter models.SubstitutionHistoryFilter, format string) ([]byte, string, error)
}

// SubstitutionHandler wires the substitution engine to HTTP routes.
//
// Generate and Override keep the legacy wire contract consumed by the admin
// front end: flat JSON bodies rather than the envelope used elsewhere.
type SubstitutionHandler struct {
	substitutions substitutionService
	metrics       *service.MetricsService
}

// NewSubstitutionHandler constructs a new SubstitutionHandler.
func NewSubstitutionHandler(substitutions substitutionService, metrics *service.MetricsService) *SubstitutionHandler {
	return &SubstitutionHandler{substitutions: substitutions, metrics: metrics}
}

type generateRequest struct {
	LeaveRequestID string `json:"leaveRequestId"`
	TeacherID      string `json:"teacherId"`
	FromDate       string `json:"fromDate"`
	ToDate         string `json:"toDate"`
	SchoolID       string `json:"schoolId"`
}

type generatedSubstitution struct {
	ID              string `json:"id"`
	OriginalTeacher string `json:"originalTeacher"`
	Substitute      string `json:"substitute"`
	Subject         string `json:"subject"`
	ClassSection    string `json:"classSection"`
	Date            string `json:"date"`
	Period          int    `json:"period"`
}

type reportedConflict struct {
	Message      string `json:"message"`
	Date         string `json:"date"`
	Period       int    `json:"period"`
	Subject      string `json:"subject"`
	ClassSection string `json:"classSection"`
}

// Generate godoc
// @Summary Expand an approved leave into substitution assignments
// @Tags Substitutions
// @Accept json
// @Produce json
// @Param payload body generateRequest true "Leave payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /substitutions/generate [post]
func (h *SubstitutionHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.TeacherID == "" || req.FromDate == "" || req.ToDate == "" || req.SchoolID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "teacherId, fromDate, toDate and schoolId are required"})
		return
	}
	if req.SchoolID != claims.SchoolID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "school does not match caller"))
		return
	}

	started := time.Now()
	result, err := h.substitutions.GenerateSubstitutions(c.Request.Context(), service.GenerateSubstitutionsRequest{
		LeaveRequestID: req.LeaveRequestID,
		TeacherID:      req.TeacherID,
		SchoolID:       req.SchoolID,
		FromDate:       req.FromDate,
		ToDate:         req.ToDate,
	})
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status >= http.StatusInternalServerError {
			c.JSON(appErr.Status, gin.H{"message": "failed to generate substitutions", "error": appErr.Error()})
			return
		}
		c.JSON(appErr.Status, gin.H{"message": appErr.Message})
		return
	}
	h.metrics.ObserveExpansion(len(result.Covered), len(result.Uncovered), time.Since(started))

	substitutions := make([]generatedSubstitution, 0, len(result.Covered))
	for _, covered := range result.Covered {
		substitutions = append(substitutions, generatedSubstitution{
			ID:              covered.Substitution.ID,
			OriginalTeacher: result.OriginalTeacher.FullName,
			Substitute:      covered.Substitute.FullName,
			Subject:         covered.Slot.Subject,
			ClassSection:    covered.Slot.ClassSection,
			Date:            covered.Date.Format(dateLayout),
			Period:          covered.Slot.PeriodIndex + 1,
		})
	}

	conflicts := make([]reportedConflict, 0, len(result.Uncovered))
	for _, uncovered := range result.Uncovered {
		conflicts = append(conflicts, reportedConflict{
			Message: fmt.Sprintf("%s on %s, period %d: %s",
				uncovered.Slot.Subject, uncovered.Date.Format(dateLayout), uncovered.Slot.PeriodIndex+1, uncovered.Reason),
			Date:         uncovered.Date.Format(dateLayout),
			Period:       uncovered.Slot.PeriodIndex + 1,
			Subject:      uncovered.Slot.Subject,
			ClassSection: uncovered.Slot.ClassSection,
		})
	}

	message := fmt.Sprintf("%d substitutions arranged", len(substitutions))
	if len(conflicts) > 0 {
		message = fmt.Sprintf("%d substitutions arranged, %d slots need manual assignment", len(substitutions), len(conflicts))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"substitutions": substitutions,
		"conflicts":     conflicts,
		"message":       message,
	})
}

type overrideRequest struct {
	SubstitutionID  string `json:"substitutionId"`
	NewSubstituteID string `json:"newSubstituteId"`
	Reason          string `json:"reason"`
}

// Override godoc
// @Summary Reassign an existing substitution to a different teacher
// @Tags Substitutions
// @Accept json
// @Produce json
// @Param payload body overrideRequest true "Override payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /substitutions/override [post]
func (h *SubstitutionHandler) Override(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.SubstitutionID == "" || req.NewSubstituteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "substitutionId and newSubstituteId are required"})
		return
	}

	err := h.substitutions.Override(c.Request.Context(), claims.SchoolID, service.OverrideSubstitutionRequest{
		SubstitutionID:  req.SubstitutionID,
		NewSubstituteID: req.NewSubstituteID,
		Reason:          req.Reason,
	})
	if err != nil {
		appErr := appErrors.FromError(err)
		c.JSON(appErr.Status, gin.H{"message": appErr.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "substitution updated"})
}

// ListMine godoc
// @Summary Upcoming substitutions assigned to the current teacher
// @Tags Substitutions
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD, defaults to today)"
// @Success 200 {object} response.Envelope
// @Router /substitutions/mine [get]
func (h *SubstitutionHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD"))
			return
		}
		from = parsed
	}

	subs, err := h.substitutions.ListMine(c.Request.Context(), claims.SchoolID, claims.UserID, from)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// List godoc
// @Summary Substitution history for the school
// @Tags Substitutions
// @Produce json
// @Param teacher_id query string false "Filter by teacher (either side of the assignment)"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /substitutions [get]
func (h *SubstitutionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter, err := h.historyFilterFromQuery(c, claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}

	subs, pagination, err := h.substitutions.ListBySchool(c.Request.Context(), *filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, pagination)
}

// Export godoc
// @Summary Export substitution history as CSV or PDF
// @Tags Substitutions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "Export format (csv or pdf)"
// @Param teacher_id query string false "Filter by teacher"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {string} string "binary"
// @Router /substitutions/export [get]
func (h *SubstitutionHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter, err := h.historyFilterFromQuery(c, claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.substitutions.ExportHistory(c.Request.Context(), *filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("substitutions-%s.%s", time.Now().UTC().Format(dateLayout), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func (h *SubstitutionHandler) historyFilterFromQuery(c *gin.Context, schoolID string) (*models.SubstitutionHistoryFilter, error) {
	filter := models.SubstitutionHistoryFilter{
		SchoolID:  schoolID,
		TeacherID: c.Query("teacher_id"),
	}
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
		}
		filter.FromDate = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
		}
		filter.ToDate = &parsed
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return &filter, nil
}
