package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/common"
	"github.com/mestreprognosticos/chatbot/internal/history"
)

func (h *Handler) SaveHistory(c *gin.Context) {
	var req history.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	storage, err := h.History.Save(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, history.ErrInvalid) {
			common.Fail(c, http.StatusBadRequest, 10004, err.Error())
			return
		}
		h.logger().Error("save history failed", "session_id", req.SessionID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "Erro ao salvar histórico")
		return
	}
	common.OK(c, gin.H{"storage": storage})
}

func (h *Handler) ListHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := history.NormalizeQuery(limit, c.Query("sortBy"), c.Query("order"))

	sessions, src, err := h.History.List(c.Request.Context(), q)
	if err != nil {
		h.logger().Error("list history failed", "source", src, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "Erro ao buscar históricos")
		return
	}
	common.OK(c, gin.H{
		"source":   src,
		"total":    len(sessions),
		"sessions": sessions,
	})
}

// historyError maps not-found to 404 and anything else to a logged 500.
func (h *Handler) historyError(c *gin.Context, op string, err error) {
	if errors.Is(err, history.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "Sessão não encontrada")
		return
	}
	h.logger().Error("history operation failed", "op", op, "session_id", c.Param("id"), "err", err)
	common.Fail(c, http.StatusInternalServerError, 50003, "Erro ao acessar histórico")
}

func (h *Handler) GetHistory(c *gin.Context) {
	rec, src, err := h.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.historyError(c, "get", err)
		return
	}
	common.OK(c, gin.H{"source": src, "session": rec})
}

func (h *Handler) DeleteHistory(c *gin.Context) {
	src, err := h.History.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.historyError(c, "delete", err)
		return
	}
	common.OK(c, gin.H{"source": src, "message": "Sessão excluída com sucesso"})
}

type updateTitleReq struct {
	Titulo string `json:"titulo"`
}

func (h *Handler) UpdateHistoryTitle(c *gin.Context) {
	var req updateTitleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	_, err := h.History.UpdateTitle(c.Request.Context(), c.Param("id"), req.Titulo)
	if err != nil {
		if errors.Is(err, history.ErrTitleRequired) {
			common.Fail(c, http.StatusBadRequest, 10005, "Título é obrigatório")
			return
		}
		h.historyError(c, "update_title", err)
		return
	}
	common.OK(c, gin.H{"message": "Título atualizado com sucesso"})
}

func (h *Handler) SuggestHistoryTitle(c *gin.Context) {
	titulo, err := h.History.SuggestTitle(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, history.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "Sessão não encontrada")
		case errors.Is(err, history.ErrInvalid):
			common.Fail(c, http.StatusBadRequest, 10006, "Sessão sem mensagens")
		default:
			h.logger().Error("suggest title failed", "session_id", c.Param("id"), "err", err)
			common.Fail(c, http.StatusBadGateway, 50201, "Erro ao gerar título")
		}
		return
	}
	common.OK(c, gin.H{"tituloSugerido": titulo})
}
