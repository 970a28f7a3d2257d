package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/common"
)

type chatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.SessionID) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message e sessionId são obrigatórios")
		return
	}

	reply, err := h.Chat.Respond(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	resp := gin.H{"message": reply.Text}
	if reply.Failed {
		resp["failed"] = true
	}
	common.OK(c, resp)
}

type clearChatReq struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) ClearChat(c *gin.Context) {
	var req clearChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		common.Fail(c, http.StatusBadRequest, 10003, "sessionId é obrigatório")
		return
	}
	h.Chat.Clear(req.SessionID)
	common.OK(c, nil)
}
