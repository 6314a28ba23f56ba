package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	callsvc "secureconnect-client/internal/call"
	"secureconnect-client/internal/domain"
	"secureconnect-client/internal/prefs"
	apperrors "secureconnect-client/pkg/errors"
	"secureconnect-client/pkg/response"
)

// Handler exposes call actions on the local control surface. It is the
// headless client's UI: every endpoint maps to one orchestrator action.
type Handler struct {
	orchestrator *callsvc.Orchestrator
	prefs        *prefs.Store
}

// NewHandler creates a call control handler
func NewHandler(orchestrator *callsvc.Orchestrator, prefsStore *prefs.Store) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		prefs:        prefsStore,
	}
}

// RegisterRoutes mounts the call endpoints on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/call/start", h.StartCall)
	rg.POST("/call/accept", h.AcceptCall)
	rg.POST("/call/reject", h.RejectCall)
	rg.POST("/call/cancel", h.CancelCall)
	rg.POST("/call/end", h.EndCall)
	rg.POST("/call/reset", h.ResetCall)
	rg.GET("/call/status", h.Status)
	rg.POST("/call/microphone", h.ToggleMicrophone)
	rg.POST("/call/camera", h.ToggleCamera)
	rg.POST("/call/camera/switch", h.SwitchCamera)
	rg.GET("/prefs/call-type", h.GetCallType)
	rg.PUT("/prefs/call-type", h.SetCallType)
}

// StartCallRequest represents a call start request
type StartCallRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,uuid"`
	IsGroup        bool   `json:"is_group"`
	CallType       string `json:"call_type" binding:"omitempty,oneof=audio video"`
}

// StartCall begins an outgoing call
// POST /v1/call/start
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	callType := req.CallType
	if callType == "" {
		callType = h.prefs.CallType()
	}
	mode := domain.MediaModeAudio
	if callType == "video" {
		mode = domain.MediaModeVideo
	}

	session, err := h.orchestrator.StartCall(c.Request.Context(), conversationID, req.IsGroup, mode)
	if err != nil {
		writeAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// AcceptCall answers the ringing incoming call
// POST /v1/call/accept
func (h *Handler) AcceptCall(c *gin.Context) {
	if err := h.orchestrator.AcceptCall(c.Request.Context()); err != nil {
		writeAppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.orchestrator.Status())
}

// RejectCall declines the ringing incoming call. Always succeeds: rejecting
// outside RINGING is a tolerated UI race, not an error.
// POST /v1/call/reject
func (h *Handler) RejectCall(c *gin.Context) {
	_ = h.orchestrator.RejectCall()
	response.Success(c, http.StatusOK, h.orchestrator.Status())
}

// CancelCall withdraws the unanswered outgoing call
// POST /v1/call/cancel
func (h *Handler) CancelCall(c *gin.Context) {
	_ = h.orchestrator.CancelCall()
	response.Success(c, http.StatusOK, h.orchestrator.Status())
}

// EndCall hangs up the established call
// POST /v1/call/end
func (h *Handler) EndCall(c *gin.Context) {
	if err := h.orchestrator.EndCall(); err != nil {
		writeAppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.orchestrator.Status())
}

// ResetCall discards a finished session
// POST /v1/call/reset
func (h *Handler) ResetCall(c *gin.Context) {
	if err := h.orchestrator.Reset(); err != nil {
		writeAppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// Status returns the current call session, if any
// GET /v1/call/status
func (h *Handler) Status(c *gin.Context) {
	session := h.orchestrator.Status()
	if session == nil {
		response.NotFound(c, "No call session")
		return
	}
	response.Success(c, http.StatusOK, session)
}

// ToggleRequest represents a microphone/camera toggle
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ToggleMicrophone enables or disables the microphone
// POST /v1/call/microphone
func (h *Handler) ToggleMicrophone(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	h.orchestrator.ToggleMicrophone(*req.Enabled)
	response.Success(c, http.StatusOK, nil)
}

// ToggleCamera enables or disables the camera
// POST /v1/call/camera
func (h *Handler) ToggleCamera(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	h.orchestrator.ToggleCamera(*req.Enabled)
	response.Success(c, http.StatusOK, nil)
}

// SwitchCamera cycles the capture device
// POST /v1/call/camera/switch
func (h *Handler) SwitchCamera(c *gin.Context) {
	h.orchestrator.SwitchCamera()
	response.Success(c, http.StatusOK, nil)
}

// GetCallType returns the persisted default call type
// GET /v1/prefs/call-type
func (h *Handler) GetCallType(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"call_type": h.prefs.CallType()})
}

// SetCallTypeRequest represents a call type preference update
type SetCallTypeRequest struct {
	CallType string `json:"call_type" binding:"required,oneof=audio video"`
}

// SetCallType persists the default call type
// PUT /v1/prefs/call-type
func (h *Handler) SetCallType(c *gin.Context) {
	var req SetCallTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if err := h.prefs.SetCallType(req.CallType); err != nil {
		response.InternalError(c, "Failed to persist call type")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"call_type": req.CallType})
}

// writeAppError maps an AppError to the response envelope
func writeAppError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		response.Error(c, appErr.StatusCode, string(appErr.Code), appErr.Message)
		return
	}
	response.InternalError(c, err.Error())
}
