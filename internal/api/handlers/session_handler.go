package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/services"
	"github.com/yoockh/medivoice/internal/utils"
)

type SessionHandler struct {
	sessions services.SessionService
	calls    services.CallService
}

func NewSessionHandler(sessions services.SessionService, calls services.CallService) *SessionHandler {
	return &SessionHandler{sessions: sessions, calls: calls}
}

type StartSessionRequest struct {
	DoctorID int    `json:"doctor_id" binding:"required"`
	Notes    string `json:"notes"`
}

type StartSessionResponse struct {
	SessionID string               `json:"session_id"`
	Status    string               `json:"status"`
	Doctor    models.DoctorProfile `json:"doctor"`
	CreatedAt string               `json:"created_at"`
}

type EndSessionResponse struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Report    *models.Report `json:"report"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Start", "invalid request body", err))
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), userID, req.DoctorID, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartSessionResponse{
		SessionID: sess.SessionID,
		Status:    sess.Status,
		Doctor:    sess.Doctor,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	out, err := h.sessions.List(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// End hangs up a live call (or closes an idle session) and returns the
// consultation report when there is one.
func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	rep, err := h.calls.End(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, EndSessionResponse{
		SessionID: sessionID,
		Status:    models.SessionEnded,
		Report:    rep,
	})
}
