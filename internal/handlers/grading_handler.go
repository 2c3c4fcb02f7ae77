package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightclass/assessment-engine/internal/services"
	"github.com/brightclass/assessment-engine/internal/utils"
	"github.com/brightclass/assessment-engine/internal/validator"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	validator      *validator.Validator
}

func NewGradingHandler(
	gradingService services.GradingService,
	validator *validator.Validator,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		validator:      validator,
	}
}

// GradeAttempt records manual grades for an attempt's pending questions
// @Summary Grade attempt
// @Description Applies manual marks to essay and ungraded questions, then recomputes totals
// @Tags grading
// @Accept json
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Param grades body services.GradeAttemptRequest true "Per-question grades"
// @Success 200 {object} services.AttemptGradingResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /grading/attempts/{attempt_id} [post]
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "attempt_id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Grading attempt", "attempt_id", id)

	var req services.GradeAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	result, err := h.gradingService.GradeAttempt(c.Request.Context(), id, &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
