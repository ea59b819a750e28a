package httpapi

import (
	"crypto/subtle"
	"net/http"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/services/social"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler owns the inbound HTTP surface: the Telegram webhook and the
// confirmation callbacks from webhook automations.
type Handler struct {
	social        *social.Service
	webhookSecret string
}

type HandlerParams struct {
	fx.In

	Social *social.Service
	Cfg    *config.Config
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		social:        p.Social,
		webhookSecret: p.Cfg.Telegram.WebhookSecret,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.POST("/webhooks/telegram", h.telegramWebhook)
	r.POST("/webhooks/social/callback", h.socialCallback)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// telegramWebhook accepts bot updates. The secret token set at
// setWebhook time is compared in constant time; a mismatch is a 401.
func (h *Handler) telegramWebhook(c *gin.Context) {
	if h.webhookSecret != "" {
		got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			zap.L().Warn("telegram webhook rejected: bad secret token",
				zap.String("remote", c.ClientIP()))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	var update map[string]any
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed update"})
		return
	}
	// updates are acknowledged; command handling lives in the bot's chat
	// flow, not in the publication pipeline
	c.Status(http.StatusOK)
}

// socialCallback settles posts published through await_callback webhooks.
func (h *Handler) socialCallback(c *gin.Context) {
	var cb social.CallbackResult
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed callback"})
		return
	}
	if cb.TaskID == 0 || cb.Platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id and platform are required"})
		return
	}

	if err := h.social.ResolveCallback(c.Request.Context(), cb); err != nil {
		zap.L().Error("callback resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "callback not applied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
