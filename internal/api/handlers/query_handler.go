package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arifwid/docuchat/internal/services"
	"github.com/arifwid/docuchat/internal/utils"
)

type QueryHandler struct {
	queries services.QueryService
}

func NewQueryHandler(queries services.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type QueryRequest struct {
	Query     string   `json:"query" binding:"required"`
	SessionID string   `json:"session_id" binding:"required"`
	UserID    string   `json:"user_id" binding:"required"`
	DocIDs    []string `json:"doc_ids"`
	K         int      `json:"k"`
}

func (h *QueryHandler) Process(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QueryHandler.Process", "invalid request body", err))
		return
	}

	userID, ok := requireMatchingUser(c, req.UserID)
	if !ok {
		return
	}

	result, err := h.queries.Process(c.Request.Context(), services.ProcessRequest{
		UserID:    userID,
		SessionID: req.SessionID,
		Query:     req.Query,
		DocIDs:    req.DocIDs,
		K:         req.K,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Status == "not_ready" {
		// accepted but not answerable yet; the chat log row carries the notice
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
