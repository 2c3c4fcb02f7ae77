package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/services"
	"github.com/brightclass/assessment-engine/internal/utils"
	"github.com/brightclass/assessment-engine/internal/validator"
)

type TestHandler struct {
	BaseHandler
	testService   services.TestService
	statsService  services.StatsService
	reportService services.ReportService
	validator     *validator.Validator
}

func NewTestHandler(
	testService services.TestService,
	statsService services.StatsService,
	reportService services.ReportService,
	validator *validator.Validator,
	logger utils.Logger,
) *TestHandler {
	return &TestHandler{
		BaseHandler:   NewBaseHandler(logger),
		testService:   testService,
		statsService:  statsService,
		reportService: reportService,
		validator:     validator,
	}
}

// CreateTest creates a new test definition
// @Summary Create test
// @Description Creates a new test in draft status
// @Tags tests
// @Accept json
// @Produce json
// @Param test body services.CreateTestRequest true "Test data"
// @Success 201 {object} services.TestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	h.LogRequest(c, "Creating test")

	var req services.CreateTestRequest
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

	test, err := h.testService.Create(c.Request.Context(), &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, test)
}

// GetTest retrieves a test by ID
// @Summary Get test
// @Description Retrieves a test; students see a sanitized view without answer keys
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.TestResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	test, err := h.testService.GetByID(c.Request.Context(), id, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// UpdateTest updates an existing test
// @Summary Update test
// @Description Updates a test; content changes are rejected once attempts exist
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param test body services.UpdateTestRequest true "Update data"
// @Success 200 {object} services.TestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating test", "test_id", id)

	var req services.UpdateTestRequest
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

	test, err := h.testService.Update(c.Request.Context(), id, &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// DeleteTest deletes a test
// @Summary Delete test
// @Description Deletes a test; tests with attempts must be archived instead
// @Tags tests
// @Param id path uint true "Test ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /tests/{id} [delete]
func (h *TestHandler) DeleteTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting test", "test_id", id)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := h.testService.Delete(c.Request.Context(), id, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListTests lists tests for the caller
// @Summary List tests
// @Description Students see available tests, teachers their own, admins everything
// @Tags tests
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param query query string false "Title search"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} services.TestListResponse
// @Failure 401 {object} ErrorResponse
// @Router /tests [get]
func (h *TestHandler) ListTests(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	filters := h.parseTestFilters(c)

	tests, err := h.testService.List(c.Request.Context(), filters, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tests)
}

// UpdateTestStatus transitions a test to a new lifecycle status
// @Summary Update test status
// @Description Applies a lifecycle transition (draft, scheduled, active, closed, archived)
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param status body services.UpdateStatusRequest true "Target status"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/status [put]
func (h *TestHandler) UpdateTestStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating test status", "test_id", id, "status", req.Status)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := h.testService.UpdateStatus(c.Request.Context(), id, &req, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: fmt.Sprintf("Test status updated to %s", req.Status),
	})
}

// PublishTest publishes a draft test
// @Summary Publish test
// @Description Publishes a draft; becomes scheduled or active depending on the window
// @Tags tests
// @Param id path uint true "Test ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/publish [post]
func (h *TestHandler) PublishTest(c *gin.Context) {
	h.lifecycleAction(c, "Publishing test", "Test published", h.testService.Publish)
}

// UnpublishTest returns a scheduled test to draft
// @Summary Unpublish test
// @Description Returns a scheduled test to draft; blocked once attempts exist
// @Tags tests
// @Param id path uint true "Test ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/unpublish [post]
func (h *TestHandler) UnpublishTest(c *gin.Context) {
	h.lifecycleAction(c, "Unpublishing test", "Test unpublished", h.testService.Unpublish)
}

// CloseTest closes an active test
// @Summary Close test
// @Description Closes an active test to new attempts
// @Tags tests
// @Param id path uint true "Test ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/close [post]
func (h *TestHandler) CloseTest(c *gin.Context) {
	h.lifecycleAction(c, "Closing test", "Test closed", h.testService.Close)
}

// ArchiveTest archives a closed test
// @Summary Archive test
// @Description Archives a test and its attempts; archived tests are read-only
// @Tags tests
// @Param id path uint true "Test ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/archive [post]
func (h *TestHandler) ArchiveTest(c *gin.Context) {
	h.lifecycleAction(c, "Archiving test", "Test archived", h.testService.Archive)
}

// GetTestStatistics returns aggregate attempt statistics for a test
// @Summary Get test statistics
// @Description Returns attempt counts, average score and pass rate for a test
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.TestStatistics
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{id}/statistics [get]
func (h *TestHandler) GetTestStatistics(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	stats, err := h.statsService.GetTestStatistics(c.Request.Context(), id, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportTestResults streams an xlsx workbook of a test's results
// @Summary Export test results
// @Description Streams an Excel workbook with one row per finished attempt
// @Tags tests
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Test ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{id}/export [get]
func (h *TestHandler) ExportTestResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting test results", "test_id", id)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="test-%d-results.xlsx"`, id))

	if err := h.reportService.ExportResults(c.Request.Context(), id, userID.(string), c.Writer); err != nil {
		// Headers may already be out; only respond with JSON if nothing
		// was written yet.
		if !c.Writer.Written() {
			c.Header("Content-Type", "application/json")
			c.Header("Content-Disposition", "")
			h.handleServiceError(c, err)
			return
		}
		h.LogError(c, err, "Export failed mid-stream", "test_id", id)
	}
}

// GetCreatorStats returns aggregate counts for a creator's tests
// @Summary Get creator statistics
// @Description Returns test and attempt counts for a creator
// @Tags tests
// @Produce json
// @Param creator_id path string true "Creator ID"
// @Success 200 {object} repositories.CreatorStats
// @Failure 403 {object} ErrorResponse
// @Router /tests/creator/{creator_id}/stats [get]
func (h *TestHandler) GetCreatorStats(c *gin.Context) {
	creatorID, ok := ParseStringIDParam(c, "creator_id")
	if !ok {
		return
	}

	stats, err := h.testService.GetCreatorStats(c.Request.Context(), creatorID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTestsByCreator lists a creator's tests
// @Summary List tests by creator
// @Tags tests
// @Produce json
// @Param creator_id path string true "Creator ID"
// @Success 200 {object} services.TestListResponse
// @Router /tests/creator/{creator_id} [get]
func (h *TestHandler) GetTestsByCreator(c *gin.Context) {
	creatorID, ok := ParseStringIDParam(c, "creator_id")
	if !ok {
		return
	}

	filters := h.parseTestFilters(c)

	tests, err := h.testService.GetByCreator(c.Request.Context(), creatorID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tests)
}

// ===== HELPERS =====

// lifecycleAction is the shared shape of the publish/unpublish/close/archive
// endpoints, which differ only in the service call and messages.
func (h *TestHandler) lifecycleAction(
	c *gin.Context,
	logMsg, okMsg string,
	action func(ctx context.Context, id uint, userID string) error,
) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, logMsg, "test_id", id)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := action(c.Request.Context(), id, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: okMsg})
}

func (h *TestHandler) parseTestFilters(c *gin.Context) repositories.TestFilters {
	filters := repositories.TestFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		s := models.TestStatus(status)
		filters.Status = &s
	}
	if testType := c.Query("type"); testType != "" {
		t := models.TestType(testType)
		filters.Type = &t
	}
	if query := c.Query("query"); query != "" {
		filters.Query = &query
	}
	if courseID := h.parseIntQueryPtr(c, "course_id"); courseID != nil {
		id := uint(*courseID)
		filters.CourseID = &id
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	filters.Limit = size
	filters.Offset = (page - 1) * size

	return filters
}
