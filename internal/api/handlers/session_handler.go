package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arifwid/docuchat/internal/services"
	"github.com/arifwid/docuchat/internal/utils"
)

type SessionHandler struct {
	sessions services.SessionService
	chatlogs services.ChatLogService
	docs     services.DocumentService
}

func NewSessionHandler(sessions services.SessionService, chatlogs services.ChatLogService, docs services.DocumentService) *SessionHandler {
	return &SessionHandler{sessions: sessions, chatlogs: chatlogs, docs: docs}
}

type CreateSessionRequest struct {
	UserID string   `json:"user_id" binding:"required"`
	Name   string   `json:"name" binding:"required"`
	DocIDs []string `json:"doc_ids"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	userID, ok := requireMatchingUser(c, req.UserID)
	if !ok {
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), userID, req.Name, req.DocIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListByUser handles GET /sessions/:id where :id is a user id.
func (h *SessionHandler) ListByUser(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Param("id"))
	if !ok {
		return
	}

	sessions, err := h.sessions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":        userID,
		"sessions":       sessions,
		"total_sessions": len(sessions),
	})
}

type UpdateSessionRequest struct {
	Name   *string   `json:"name"`
	DocIDs *[]string `json:"doc_ids"`
}

func (h *SessionHandler) Update(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}

	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Update", "invalid request body", err))
		return
	}

	session, err := h.sessions.Update(c.Request.Context(), sessionID, services.SessionPatch{
		Name:   req.Name,
		DocIDs: req.DocIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *SessionHandler) ChatHistory(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}

	rows, err := h.chatlogs.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     sessionID,
		"user_id":        userID,
		"chat_history":   rows,
		"total_messages": len(rows),
	})
}

// Documents resolves the session's association set. Dangling identifiers are
// filtered out by the lookup rather than reported as an error.
func (h *SessionHandler) Documents(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")

	session, err := h.sessions.Verify(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	docs, err := h.docs.ListByIDs(c.Request.Context(), session.DocIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":      sessionID,
		"user_id":         userID,
		"documents":       docs,
		"total_documents": len(docs),
	})
}

func (h *SessionHandler) LinkDocument(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")
	docID := c.Query("document_id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.LinkDocument(c.Request.Context(), sessionID, docID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document linked to session successfully"})
}

func (h *SessionHandler) UnlinkDocument(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sessionID := c.Param("id")
	docID := c.Query("document_id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.UnlinkDocument(c.Request.Context(), sessionID, docID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document unlinked from session successfully"})
}
