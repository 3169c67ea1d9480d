package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"juraganbot/internal/entities"
	"juraganbot/internal/infrastructure"
	"juraganbot/internal/interfaces"
	"juraganbot/internal/repository"
	"juraganbot/internal/usecases"
	"juraganbot/pkg/logger"
)

// ConfigWriter publishes a new messages document to the shared store,
// notifying every listening instance.
type ConfigWriter interface {
	SaveMessagesDocument(cfg *entities.MessagesConfig, updatedBy string) error
}

// Handler wires the webhook and admin API endpoints
type Handler struct {
	messageService *usecases.MessageService
	configProvider *usecases.ConfigProvider
	authUsecase    *usecases.AuthUsecase
	wa             interfaces.Messenger
	analytics      *repository.AnalyticsRepository // nil when no database is configured
	configStore    ConfigWriter                    // nil when no database is configured
	cache          *infrastructure.MessageCache
	limiter        *infrastructure.RateLimiter
	verifyToken    string
	appSecret      string
	startedAt      time.Time
}

func NewHandler(
	messageService *usecases.MessageService,
	configProvider *usecases.ConfigProvider,
	authUsecase *usecases.AuthUsecase,
	wa interfaces.Messenger,
	analytics *repository.AnalyticsRepository,
	configStore ConfigWriter,
	cache *infrastructure.MessageCache,
	limiter *infrastructure.RateLimiter,
	verifyToken, appSecret string,
) *Handler {
	return &Handler{
		messageService: messageService,
		configProvider: configProvider,
		authUsecase:    authUsecase,
		wa:             wa,
		analytics:      analytics,
		configStore:    configStore,
		cache:          cache,
		limiter:        limiter,
		verifyToken:    verifyToken,
		appSecret:      appSecret,
		startedAt:      time.Now(),
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, jwtSecret string) {
	m := NewMiddleware(jwtSecret)

	router.Use(SecurityHeaders())
	router.Use(RequestSizeLimiter(10 << 20))
	router.Use(m.CORSMiddleware())

	router.GET("/", h.Root)

	router.GET("/webhook", h.VerifyWebhook)
	router.POST("/webhook", h.ReceiveWebhook)
	router.GET("/webhook/health", h.Health)
	router.GET("/webhook/stats", h.RuntimeStats)

	router.POST("/api/auth/login", h.Login)

	api := router.Group("/api")
	api.Use(m.AuthRequired())
	api.Use(m.RateLimitPerUser(5, 10))
	{
		api.POST("/send-message", h.SendMessage)
		api.GET("/stats", h.AnalyticsStats)
		api.GET("/consultations", h.Consultations)
		api.GET("/users/:id/journey", h.UserJourney)
		api.PUT("/config", h.UpdateConfig)
		api.POST("/config/reload", h.ReloadConfig)
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   "juraganbot",
		"status": "running",
	})
}

// VerifyWebhook handles Meta's subscription handshake
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	logger.Warn("Webhook verification failed", zap.String("mode", mode))
	c.Status(http.StatusForbidden)
}

// ReceiveWebhook accepts Cloud API delivery notifications. The response is
// always 200 so Meta does not retry; processing happens in the background.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}

	if h.appSecret != "" && !h.validSignature(body, c.GetHeader("X-Hub-Signature-256")) {
		logger.Warn("Webhook signature mismatch")
		c.Status(http.StatusForbidden)
		return
	}

	c.Status(http.StatusOK)

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn("Failed to parse webhook payload", zap.Error(err))
		return
	}

	msg, ok := extractMessage(&payload)
	if !ok {
		// status updates and other change types arrive on the same endpoint
		return
	}

	go func() {
		if err := h.messageService.ProcessMessage(msg); err != nil {
			logger.Error("Message processing failed",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}()
}

func (h *Handler) validSignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

func extractMessage(payload *webhookPayload) (entities.InboundMessage, bool) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return entities.InboundMessage{}, false
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return entities.InboundMessage{}, false
	}
	raw := value.Messages[0]

	msg := entities.InboundMessage{
		ID:   raw.ID,
		From: raw.From,
		Type: raw.Type,
	}
	if len(value.Contacts) > 0 {
		msg.ProfileName = value.Contacts[0].Profile.Name
	}

	switch raw.Type {
	case entities.TypeText:
		if raw.Text != nil {
			msg.Body = raw.Text.Body
		}
	case entities.TypeInteractive:
		if raw.Interactive == nil {
			return msg, true
		}
		if reply := raw.Interactive.ButtonReply; reply != nil {
			msg.Body = reply.ID
			msg.IsButtonClick = true
		} else if reply := raw.Interactive.ListReply; reply != nil {
			msg.Body = reply.ID
			msg.IsButtonClick = true
		}
	}
	return msg, true
}

// Health reports liveness plus the state of the in-memory pipeline
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"config_source":  h.configProvider.Source(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// RuntimeStats exposes in-memory counters for quick inspection
func (h *Handler) RuntimeStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cached_messages": h.cache.Size(),
		"active_users":    h.limiter.ActiveUsers(),
		"uptime_seconds":  int(time.Since(h.startedAt).Seconds()),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	if h.authUsecase == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	if !ValidUsername(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username format"})
		return
	}

	token, err := h.authUsecase.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type sendMessageRequest struct {
	To      json.RawMessage `json:"to" binding:"required"`
	Message string          `json:"message" binding:"required"`
}

// SendMessage delivers a text message to one or more recipients. "to"
// accepts either a single number or an array of numbers.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and message are required"})
		return
	}

	recipients, err := parseRecipients(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(recipients) > MaxRecipients {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("too many recipients (max %d)", MaxRecipients),
		})
		return
	}

	message := SanitizeString(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}
	if len(message) > MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("message exceeds %d characters", MaxMessageLength),
		})
		return
	}

	results := make([]gin.H, 0, len(recipients))
	sent := 0
	for i, to := range recipients {
		if i > 0 {
			time.Sleep(500 * time.Millisecond)
		}
		if err := h.wa.SendText(to, message); err != nil {
			logger.Error("Broadcast send failed", zap.String("to", to), zap.Error(err))
			results = append(results, gin.H{"to": to, "status": "failed", "error": err.Error()})
			continue
		}
		sent++
		results = append(results, gin.H{"to": to, "status": "sent"})
	}

	c.JSON(http.StatusOK, gin.H{
		"sent":    sent,
		"failed":  len(recipients) - sent,
		"results": results,
	})
}

func parseRecipients(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if !ValidPhoneNumber(single) {
			return nil, fmt.Errorf("invalid phone number: %s", single)
		}
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("to must be a phone number or an array of phone numbers")
	}
	if len(many) == 0 {
		return nil, fmt.Errorf("recipient list is empty")
	}
	for _, to := range many {
		if !ValidPhoneNumber(to) {
			return nil, fmt.Errorf("invalid phone number: %s", to)
		}
	}
	return many, nil
}

// AnalyticsStats returns aggregate funnel counters from the database
func (h *Handler) AnalyticsStats(c *gin.Context) {
	if h.analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage not configured"})
		return
	}
	stats, err := h.analytics.GetStats()
	if err != nil {
		logger.Error("Failed to load stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Consultations(c *gin.Context) {
	if h.analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage not configured"})
		return
	}
	consultations, err := h.analytics.RecentConsultations(50)
	if err != nil {
		logger.Error("Failed to load consultations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load consultations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultations": consultations})
}

func (h *Handler) UserJourney(c *gin.Context) {
	if h.analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage not configured"})
		return
	}
	userID := c.Param("id")
	if !ValidPhoneNumber(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	journey, err := h.analytics.GetUserJourney(userID, 100)
	if err != nil {
		logger.Error("Failed to load user journey", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load journey"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "journey": journey})
}

// UpdateConfig publishes an edited messages document. The save triggers
// the notify channel, so other instances pick it up too; this instance
// reloads immediately.
func (h *Handler) UpdateConfig(c *gin.Context) {
	if h.configStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config storage not configured"})
		return
	}

	var cfg entities.MessagesConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid messages document"})
		return
	}
	if cfg.Funnel["welcome"].Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "funnel must define a welcome stage"})
		return
	}

	updatedBy := "api"
	if v, ok := c.Get("user_id"); ok {
		updatedBy = fmt.Sprintf("user:%v", v)
	}

	if err := h.configStore.SaveMessagesDocument(&cfg, updatedBy); err != nil {
		logger.Error("Config save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	if err := h.configProvider.Reload(); err != nil {
		logger.Warn("Config reload after save failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"source": h.configProvider.Source(),
	})
}

// ReloadConfig forces a configuration refresh outside the notify channel
func (h *Handler) ReloadConfig(c *gin.Context) {
	if err := h.configProvider.Reload(); err != nil {
		logger.Error("Config reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"source": h.configProvider.Source(),
	})
}
