package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/synth/copilot-review-agent/internal/store"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// statusUpdateRequest is the PATCH body for finding status changes.
type statusUpdateRequest struct {
	Status string `json:"status"`
}

// listRuns handles GET /api/v1/runs
func (s *Server) listRuns(c echo.Context) error {
	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
		}
		limit = parsed
	}

	runs, err := s.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list runs")
	}
	if runs == nil {
		runs = make([]*models.ReviewRun, 0)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
		"meta": map[string]interface{}{"count": len(runs)},
	})
}

// getLatestRun handles GET /api/v1/runs/latest
func (s *Server) getLatestRun(c echo.Context) error {
	run, err := s.store.LatestRun(c.Request().Context())
	if err != nil {
		return storeError(err, "No runs recorded yet")
	}
	return c.JSON(http.StatusOK, run)
}

// getRun handles GET /api/v1/runs/:id
func (s *Server) getRun(c echo.Context) error {
	run, err := s.store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err, "Run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// listRunFindings handles GET /api/v1/runs/:id/findings
func (s *Server) listRunFindings(c echo.Context) error {
	runID := c.Param("id")
	if _, err := s.store.GetRun(c.Request().Context(), runID); err != nil {
		return storeError(err, "Run not found")
	}

	filter, err := findingFilter(c)
	if err != nil {
		return err
	}
	filter.RunID = runID

	return s.respondFindings(c, filter)
}

// listFindings handles GET /api/v1/findings
func (s *Server) listFindings(c echo.Context) error {
	filter, err := findingFilter(c)
	if err != nil {
		return err
	}
	return s.respondFindings(c, filter)
}

func (s *Server) respondFindings(c echo.Context, filter store.FindingFilter) error {
	findings, err := s.store.ListFindings(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list findings")
	}
	if findings == nil {
		findings = make([]*models.Finding, 0)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"findings": findings,
		"meta":     map[string]interface{}{"count": len(findings)},
	})
}

// getFinding handles GET /api/v1/findings/:id
func (s *Server) getFinding(c echo.Context) error {
	finding, err := s.store.GetFinding(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err, "Finding not found")
	}
	return c.JSON(http.StatusOK, finding)
}

// updateFindingStatus handles PATCH /api/v1/findings/:id/status
func (s *Server) updateFindingStatus(c echo.Context) error {
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	status := models.FindingStatus(req.Status)
	if !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
	}

	finding, err := s.store.UpdateFindingStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return storeError(err, "Finding not found")
	}
	return c.JSON(http.StatusOK, finding)
}

// findingFilter builds a filter from severity/status/file query parameters,
// rejecting unknown enum values.
func findingFilter(c echo.Context) (store.FindingFilter, error) {
	var filter store.FindingFilter

	if sev := c.QueryParam("severity"); sev != "" {
		severity := models.FindingSeverity(sev)
		if !severity.Valid() {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid severity")
		}
		filter.Severity = severity
	}
	if st := c.QueryParam("status"); st != "" {
		status := models.FindingStatus(st)
		if !status.Valid() {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
		}
		filter.Status = status
	}
	filter.File = c.QueryParam("file")

	return filter, nil
}

// storeError maps store lookup failures onto HTTP errors.
func storeError(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFoundMsg)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Storage error")
}
