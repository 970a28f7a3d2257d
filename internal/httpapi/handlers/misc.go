package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/accesslog"
	"github.com/mestreprognosticos/chatbot/internal/common"
	"github.com/mestreprognosticos/chatbot/internal/ranking"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

func (h *Handler) UserInfo(c *gin.Context) {
	common.OK(c, gin.H{"ip": c.ClientIP()})
}

func (h *Handler) Status(c *gin.Context) {
	components := gin.H{}
	for _, chk := range h.Checks {
		if chk.Check == nil {
			components[chk.Name] = "disabled"
			continue
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := chk.Check(ctx)
		cancel()
		if err != nil {
			components[chk.Name] = "down"
			continue
		}
		components[chk.Name] = "up"
	}
	common.OK(c, gin.H{
		"status":         "ok",
		"components":     components,
		"activeSessions": h.Chat.Sessions(),
		"time":           h.now().UTC(),
	})
}

type logConnectionReq struct {
	IP   string `json:"ip"`
	Acao string `json:"acao"`
}

func (h *Handler) LogConnection(c *gin.Context) {
	var req logConnectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	entry, err := accesslog.NewEntry(req.IP, req.Acao, h.Cfg.BotName, h.now())
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10009, "Dados de log incompletos (IP e ação são obrigatórios).")
		return
	}

	if h.AccessLog == nil {
		h.logger().Info("access log (local only)", "ip", entry.IP, "acao", entry.Acao, "data", entry.Data, "hora", entry.Hora)
		common.OK(c, gin.H{"message": "Log registrado localmente"})
		return
	}
	if err := h.AccessLog.Record(c.Request.Context(), entry); err != nil {
		h.logger().Warn("access log not recorded, kept in process log",
			"ip", entry.IP, "acao", entry.Acao, "data", entry.Data, "hora", entry.Hora, "err", err)
		common.OK(c, gin.H{"message": "Log registrado localmente"})
		return
	}
	common.OK(c, gin.H{"message": "Log registrado com sucesso"})
}

type botAccessReq struct {
	BotID           string `json:"botId"`
	NomeBot         string `json:"nomeBot"`
	TimestampAcesso string `json:"timestampAcesso"`
}

func (h *Handler) RegisterBotAccess(c *gin.Context) {
	var req botAccessReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	at := h.now()
	if ts := strings.TrimSpace(req.TimestampAcesso); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			at = t
		}
	}

	board, err := h.Ranking.Register(req.BotID, req.NomeBot, at)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "botId e nomeBot são obrigatórios")
		return
	}
	common.Created(c, gin.H{
		"message": fmt.Sprintf("Acesso ao bot %s registrado para ranking.", req.NomeBot),
		"ranking": board,
	})
}

func (h *Handler) ViewRanking(c *gin.Context) {
	board := h.Ranking.List()
	if board == nil {
		board = []ranking.Entry{}
	}
	c.JSON(http.StatusOK, board)
}
