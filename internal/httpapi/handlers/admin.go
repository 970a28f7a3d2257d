package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/common"
	"github.com/mestreprognosticos/chatbot/internal/settings"
)

const minSecretLen = 6

type passwordReq struct {
	Password string `json:"password"`
}

func (h *Handler) AdminLogin(c *gin.Context) {
	ctx := c.Request.Context()
	client := c.ClientIP()

	if h.Throttle != nil && h.Cfg.LoginMaxFailures > 0 {
		n, err := h.Throttle.LoginFailures(ctx, client)
		if err != nil {
			h.logger().Warn("login throttle lookup failed", "ip", client, "err", err)
		} else if n >= h.Cfg.LoginMaxFailures {
			common.Fail(c, http.StatusTooManyRequests, 42901, "Muitas tentativas. Tente novamente mais tarde.")
			return
		}
	}

	var req passwordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	current, err := h.Gate.Lookup(ctx)
	if err != nil {
		h.logger().Error("admin secret lookup failed", "err", err)
		common.Fail(c, http.StatusServiceUnavailable, 50302, "Armazenamento de configuração indisponível")
		return
	}
	if current == "" {
		common.Fail(c, http.StatusForbidden, 40302, "Admin não configurado")
		return
	}
	secret, ok := h.Gate.CheckSecret(ctx, req.Password)
	if !ok {
		if h.Throttle != nil {
			if _, err := h.Throttle.IncrLoginFailure(ctx, client, h.Cfg.LoginFailureWindow); err != nil {
				h.logger().Warn("login throttle update failed", "ip", client, "err", err)
			}
		}
		common.Fail(c, http.StatusForbidden, 40303, "Senha incorreta")
		return
	}
	if h.Throttle != nil {
		_ = h.Throttle.ResetLoginFailures(ctx, client)
	}

	token, err := h.Gate.IssueToken(secret, h.Cfg.AdminTokenTTL)
	if err != nil {
		h.logger().Error("sign admin token failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to sign token")
		return
	}
	common.OK(c, gin.H{"token": token})
}

func (h *Handler) AdminExists(c *gin.Context) {
	secret, err := h.Gate.Lookup(c.Request.Context())
	if err != nil {
		h.logger().Error("admin secret lookup failed", "err", err)
		common.Fail(c, http.StatusServiceUnavailable, 50302, "Armazenamento de configuração indisponível")
		return
	}
	common.OK(c, gin.H{"exists": secret != ""})
}

// bindSecret reads and validates a new admin secret.
func (h *Handler) bindSecret(c *gin.Context) (string, bool) {
	if h.Settings == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "Armazenamento de configuração indisponível")
		return "", false
	}
	var req passwordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return "", false
	}
	if utf8.RuneCountInString(req.Password) < minSecretLen {
		common.Fail(c, http.StatusBadRequest, 10007, "A senha deve ter pelo menos 6 caracteres")
		return "", false
	}
	return req.Password, true
}

func (h *Handler) AdminSetup(c *gin.Context) {
	secret, ok := h.bindSecret(c)
	if !ok {
		return
	}
	if err := h.Settings.SetIfAbsent(c.Request.Context(), settings.KeyAdminSecret, secret); err != nil {
		if errors.Is(err, settings.ErrAlreadySet) {
			common.Fail(c, http.StatusConflict, 40901, "Admin já configurado")
			return
		}
		h.logger().Error("admin setup failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50005, "Erro ao configurar admin")
		return
	}
	h.logger().Info("admin secret configured", "ip", c.ClientIP())
	common.OK(c, gin.H{"message": "Admin configurado com sucesso"})
}

// RotateAdminSecret replaces the secret. Every issued token stops working.
func (h *Handler) RotateAdminSecret(c *gin.Context) {
	secret, ok := h.bindSecret(c)
	if !ok {
		return
	}
	if err := h.Settings.Set(c.Request.Context(), settings.KeyAdminSecret, secret); err != nil {
		h.logger().Error("admin secret rotation failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50006, "Erro ao atualizar senha")
		return
	}
	h.logger().Info("admin secret rotated", "ip", c.ClientIP())
	common.OK(c, gin.H{"message": "Senha atualizada"})
}

func (h *Handler) GetSystemInstruction(c *gin.Context) {
	if h.Settings == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "Armazenamento de configuração indisponível")
		return
	}
	v, err := h.Settings.Get(c.Request.Context(), settings.KeySystemInstruction)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		h.logger().Error("get system instruction failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50007, "Erro ao buscar instrução")
		return
	}
	common.OK(c, gin.H{"instruction": v})
}

type instructionReq struct {
	Instruction string `json:"instruction"`
}

func (h *Handler) SetSystemInstruction(c *gin.Context) {
	if h.Settings == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "Armazenamento de configuração indisponível")
		return
	}
	var req instructionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		common.Fail(c, http.StatusBadRequest, 10008, "Instrução obrigatória")
		return
	}
	if err := h.Settings.Set(c.Request.Context(), settings.KeySystemInstruction, req.Instruction); err != nil {
		h.logger().Error("set system instruction failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50008, "Erro ao atualizar instrução")
		return
	}
	common.OK(c, nil)
}

func (h *Handler) AdminStats(c *gin.Context) {
	st, err := h.History.Stats(c.Request.Context())
	if err != nil {
		h.logger().Error("stats failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50009, "Erro ao buscar estatísticas")
		return
	}
	common.OK(c, gin.H{
		"totalConversas":   st.TotalConversas,
		"totalMensagens":   st.TotalMensagens,
		"ultimasConversas": st.UltimasConversas,
	})
}
