package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arifwid/docuchat/internal/services"
	"github.com/arifwid/docuchat/internal/utils"
)

type DocumentHandler struct {
	docs     services.DocumentService
	sessions services.SessionService
}

func NewDocumentHandler(docs services.DocumentService, sessions services.SessionService) *DocumentHandler {
	return &DocumentHandler{docs: docs, sessions: sessions}
}

// Upload accepts multipart {file, user_id, session_id, doc_id?} and answers
// 202 with status "processing"; the ingest worker finishes the job.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.PostForm("user_id"))
	if !ok {
		return
	}
	sessionID := c.PostForm("session_id")
	docID := c.PostForm("doc_id")

	if _, err := h.sessions.Verify(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "DocumentHandler.Upload", "file is required", err))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "DocumentHandler.Upload", "failed to open uploaded file", err))
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), userID, sessionID, docID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Document uploaded successfully and is being processed",
		"doc_id":     doc.ID,
		"session_id": sessionID,
		"filename":   doc.Filename,
		"status":     doc.Status,
	})
}

// ListByUser handles GET /documents/user/:id — the global document list for a
// user, regardless of session linkage.
func (h *DocumentHandler) ListByUser(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Param("id"))
	if !ok {
		return
	}

	docs, err := h.docs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"documents":       docs,
		"total_documents": len(docs),
	})
}

func (h *DocumentHandler) Status(c *gin.Context) {
	if _, ok := requireMatchingUser(c, c.Query("user_id")); !ok {
		return
	}

	st, err := h.docs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"doc_id":    st.DocID,
		"status":    st.Status,
		"message":   st.Message,
		"timestamp": st.Timestamp,
		"is_ready":  st.Status == "stored",
	})
}

func (h *DocumentHandler) SignedURL(c *gin.Context) {
	if _, ok := requireMatchingUser(c, c.Query("user_id")); !ok {
		return
	}

	url, err := h.docs.SignedURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"doc_id": c.Param("id"),
		"url":    url,
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := requireMatchingUser(c, c.Query("user_id"))
	if !ok {
		return
	}

	if err := h.docs.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}
