package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/app/bootstrap"
	apperrors "github.com/solarisops/assistant-go/internal/errors"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/services"
)

// ChatController 问答接口
type ChatController struct {
	BaseController
}

func (c *ChatController) chatService() *services.ChatService {
	app := bootstrap.GetApp()
	if app == nil {
		return nil
	}
	return app.ChatService()
}

// Ask 提交一次提问
// POST /api/v1/chat
func (c *ChatController) Ask() {
	svc := c.chatService()
	if svc == nil {
		c.JSONError(http.StatusServiceUnavailable, "Service is not ready")
		return
	}

	var req services.ChatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSONError(http.StatusBadRequest, "query is required")
		return
	}

	resp, err := svc.Ask(c.Ctx.Request.Context(), &req)
	if err != nil {
		logger.Error("Chat request failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		appErr := apperrors.GetAppError(err)
		c.JSONError(appErr.HTTPCode, appErr.Message)
		return
	}

	c.JSONSuccess(resp)
}

// History 查看某个会话的历史
// GET /api/v1/chat/:session_id
func (c *ChatController) History() {
	svc := c.chatService()
	if svc == nil {
		c.JSONError(http.StatusServiceUnavailable, "Service is not ready")
		return
	}

	sessionID := c.Ctx.Input.Param(":session_id")
	if sessionID == "" {
		c.JSONError(http.StatusBadRequest, "session_id is required")
		return
	}

	turns, err := svc.History(c.Ctx.Request.Context(), sessionID)
	if err != nil {
		logger.Error("Failed to load session history",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Failed to load session history")
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// Clear 清空某个会话
// DELETE /api/v1/chat/:session_id
func (c *ChatController) Clear() {
	svc := c.chatService()
	if svc == nil {
		c.JSONError(http.StatusServiceUnavailable, "Service is not ready")
		return
	}

	sessionID := c.Ctx.Input.Param(":session_id")
	if sessionID == "" {
		c.JSONError(http.StatusBadRequest, "session_id is required")
		return
	}

	if err := svc.ClearSession(c.Ctx.Request.Context(), sessionID); err != nil {
		logger.Error("Failed to clear session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Failed to clear session")
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"session_id": sessionID,
		"cleared":    true,
	})
}
