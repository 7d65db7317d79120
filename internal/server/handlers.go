package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/internal/session"
)

type handlers struct {
	deps Deps
}

type apiError struct {
	Error string `json:"error"`
}

type stageView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Objective        string `json:"objective"`
	TimeLimitSeconds int    `json:"timeLimit"`
	AvatarID         string `json:"avatarId"`
}

func (h *handlers) listStages(c *gin.Context) {
	views := make([]stageView, 0, len(h.deps.Catalog))
	for _, stage := range h.deps.Catalog {
		views = append(views, stageView{
			ID:               stage.ID,
			Name:             stage.Name,
			Objective:        stage.Objective,
			TimeLimitSeconds: stage.LimitSeconds(),
			AvatarID:         stage.AvatarID,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (h *handlers) schema(c *gin.Context) {
	c.JSON(http.StatusOK, scoring.Schemas())
}

func (h *handlers) startSession(c *gin.Context) {
	var req session.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}

	info, err := h.deps.Sessions.Start(c.Request.Context(), req.RunID, req.StageID)
	switch {
	case errors.Is(err, session.ErrMissingStageID):
		c.JSON(http.StatusBadRequest, apiError{Error: session.ErrMissingStageID.Error()})
		return
	case errors.Is(err, session.ErrUnknownStage):
		c.JSON(http.StatusBadRequest, apiError{Error: session.ErrUnknownStage.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, apiError{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// presence tells a missing transcript apart from an empty one.
type presence struct {
	RunID      string           `json:"runId"`
	StageID    string           `json:"stageId"`
	Transcript *json.RawMessage `json:"transcript"`
}

func (h *handlers) completeStage(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}

	var fields presence
	var req scoring.Request
	if err := json.Unmarshal(body, &fields); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	if fields.RunID == "" || fields.StageID == "" || fields.Transcript == nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "runId, stageId, and transcript are required"})
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	result, err := h.deps.Scorer.Score(ctx, req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, apiError{Error: "Internal server error"})
		return
	}

	if h.deps.Ledger != nil {
		total, err := h.deps.Ledger.Record(ctx, req.RunID, req.StageID, result.MoneyRaised)
		if err != nil {
			logger.Warn("failed to record stage in run ledger", "run_id", req.RunID, "stage", req.StageID, "error", err)
		} else {
			result.TotalRaised = total
		}
	}

	logger.Info("stage completed",
		"run_id", req.RunID,
		"stage", req.StageID,
		"stars", result.Stars,
		"money_raised", result.MoneyRaised,
		"total_raised", result.TotalRaised,
		"pass_fail", result.PassFail,
	)
	c.JSON(http.StatusOK, result)
}
