package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/common"
	"github.com/mestreprognosticos/chatbot/internal/httpapi/handlers"
	"github.com/mestreprognosticos/chatbot/internal/httpapi/middleware"
)

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func NewRouter(h *handlers.Handler, gate middleware.Authenticator, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	// nil trusts no proxy, so ClientIP is the peer address and a caller
	// cannot pick its own login throttle key through X-Forwarded-For.
	if err := r.SetTrustedProxies(h.Cfg.TrustedProxies); err != nil {
		log.Warn("invalid TRUSTED_PROXIES, trusting none", "err", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(corsConfig(h.Cfg.CORSOrigins)))
	r.Use(middleware.BodyLimit(h.Cfg.MaxBodyBytes))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.GET("/user-info", h.UserInfo)
	api.GET("/status", h.Status)
	api.POST("/log-connection", h.LogConnection)

	// chat
	api.POST("/chat", h.SendMessage)
	api.POST("/clear-chat", h.ClearChat)
	api.POST("/chat/salvar-historico", h.SaveHistory)

	// ranking
	api.POST("/ranking/registrar-acesso-bot", h.RegisterBotAccess)
	api.GET("/ranking/visualizar", h.ViewRanking)

	// admin bootstrap
	api.POST("/admin/login", h.AdminLogin)
	api.GET("/admin/exists", h.AdminExists)
	api.POST("/admin/setup", h.AdminSetup)

	admin := api.Group("/")
	admin.Use(middleware.AdminRequired(gate))
	admin.GET("/chat/historicos", h.ListHistory)
	admin.GET("/chat/historicos/:id", h.GetHistory)
	admin.DELETE("/chat/historicos/:id", h.DeleteHistory)
	admin.PUT("/chat/historicos/:id/atualizar-titulo", h.UpdateHistoryTitle)
	admin.GET("/chat/historicos/:id/gerar-titulo", h.SuggestHistoryTitle)
	admin.PUT("/admin/secret", h.RotateAdminSecret)
	admin.GET("/admin/system-instruction", h.GetSystemInstruction)
	admin.POST("/admin/system-instruction", h.SetSystemInstruction)
	admin.GET("/admin/stats", h.AdminStats)

	return r
}
