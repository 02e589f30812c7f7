package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/quorum-social/quorum/moderation"

	"github.com/labstack/echo/v4"
)

// mapError translates the moderation package's typed errors into HTTP status
// codes. Anything unrecognized is a 500.
func mapError(err error) error {
	var ve *moderation.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	var nfe *moderation.NotFoundError
	if errors.As(err, &nfe) {
		return echo.NewHTTPError(http.StatusNotFound, nfe.Error())
	}
	var ite *moderation.InvalidTransitionError
	if errors.As(err, &ite) {
		return echo.NewHTTPError(http.StatusConflict, ite.Error())
	}
	var dae *moderation.DuplicateAppealError
	if errors.As(err, &dae) {
		return echo.NewHTTPError(http.StatusConflict, dae.Error())
	}
	var cce *moderation.ConcurrencyConflictError
	if errors.As(err, &cce) {
		return echo.NewHTTPError(http.StatusConflict, cce.Error())
	}
	return err
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid id: %q", c.Param("id")))
	}
	return id, nil
}

// moderatorID pulls the acting moderator from the X-Moderator-Id header. Auth
// itself is terminated upstream; by the time a request reaches this service
// the gateway has verified the identity.
func moderatorID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-Moderator-Id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing X-Moderator-Id header")
	}
	return id, nil
}

func (s *Server) handleSubmitRecommendation(c echo.Context) error {
	var req moderation.SubmitRecommendationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.intake.Submit(c.Request().Context(), &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleListPendingRecommendations(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	views, err := s.intake.ListPending(c.Request().Context(), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": views})
}

func (s *Server) handleIntakeStats(c echo.Context) error {
	stats, err := s.intake.Stats(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCreateAction(c echo.Context) error {
	modID, err := moderatorID(c)
	if err != nil {
		return err
	}
	var req moderation.CreateActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.actions.CreateAction(c.Request().Context(), &req, modID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleApproveAction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	modID, err := moderatorID(c)
	if err != nil {
		return err
	}
	var req struct {
		ModifiedReasoning *string `json:"modifiedReasoning,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.actions.ApproveAction(c.Request().Context(), id, modID, req.ModifiedReasoning)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleRejectAction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	modID, err := moderatorID(c)
	if err != nil {
		return err
	}
	var req moderation.RejectActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.actions.RejectAction(c.Request().Context(), id, modID, &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleListActions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	q := moderation.ListActionsQuery{
		TargetType: c.QueryParam("targetType"),
		Status:     c.QueryParam("status"),
		Severity:   c.QueryParam("severity"),
		Limit:      limit,
		Cursor:     c.QueryParam("cursor"),
	}
	page, err := s.actions.ListActions(c.Request().Context(), &q)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetAction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := s.actions.GetAction(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleGetUserActions(c echo.Context) error {
	views, err := s.actions.GetUserActions(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": views})
}

func (s *Server) handleSendCoolingOffPrompt(c echo.Context) error {
	var req struct {
		UserIDs []string `json:"userIds"`
		TopicID string   `json:"topicId"`
		Message string   `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	delivered, err := s.actions.SendCoolingOffPrompt(c.Request().Context(), req.UserIDs, req.TopicID, req.Message)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"delivered": delivered})
}

func (s *Server) handleCreateAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		AppellantID string `json:"appellantId"`
		Reason      string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.appeals.CreateAppeal(c.Request().Context(), id, req.AppellantID, &moderation.CreateAppealRequest{Reason: req.Reason})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleAssignAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	modID, err := moderatorID(c)
	if err != nil {
		return err
	}
	view, err := s.appeals.AssignAppealToModerator(c.Request().Context(), id, modID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleUnassignAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	view, err := s.appeals.UnassignAppeal(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleReviewAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	modID, err := moderatorID(c)
	if err != nil {
		return err
	}
	var req moderation.ReviewAppealRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.appeals.ReviewAppeal(c.Request().Context(), id, modID, &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetPendingAppeals(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	q := moderation.PendingAppealsQuery{
		Limit:               limit,
		Cursor:              c.QueryParam("cursor"),
		AssignedModeratorID: c.QueryParam("assignedModeratorId"),
	}
	page, err := s.appeals.GetPendingAppeals(c.Request().Context(), &q)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	view, err := s.appeals.GetAppealByID(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleAppealStatistics(c echo.Context) error {
	start, err := queryTime(c, "startDate")
	if err != nil {
		return err
	}
	end, err := queryTime(c, "endDate")
	if err != nil {
		return err
	}
	stats, err := s.appeals.GetAppealStatistics(c.Request().Context(), start, end)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetQueue(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	req := moderation.QueueRequest{
		Type:   c.QueryParam("type"),
		Status: c.QueryParam("status"),
		Limit:  limit,
		Cursor: c.QueryParam("cursor"),
	}
	page, err := s.queue.GetQueue(c.Request().Context(), &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetQueueStats(c echo.Context) error {
	stats, err := s.queue.GetQueueStats(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetAnalytics(c echo.Context) error {
	start, err := queryTime(c, "startDate")
	if err != nil {
		return err
	}
	end, err := queryTime(c, "endDate")
	if err != nil {
		return err
	}
	var since, until time.Time
	if start != nil {
		since = *start
	}
	if end != nil {
		until = *end
	}
	analytics, err := s.queue.GetAnalytics(c.Request().Context(), since, until)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, analytics)
}

func (s *Server) handleCreateReport(c echo.Context) error {
	var req struct {
		moderation.CreateReportRequest
		ReporterID string `json:"reporterId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.reports.Create(c.Request().Context(), &req.CreateReportRequest, req.ReporterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleListOpenReports(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	views, err := s.reports.ListOpen(c.Request().Context(), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reports": views})
}

func (s *Server) handleResolveReport(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		ActionID uint64 `json:"actionId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := s.reports.Resolve(c.Request().Context(), id, req.ActionID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return &t, nil
}
