package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"chat-notifier/internal/event"
	"chat-notifier/internal/trigger"

	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// maxEventSize ограничивает размер тела события. Документ Firestore не больше 1 МиБ,
// а событие обновления несёт две его версии.
const maxEventSize = 2 << 20

// Коды ошибок в ответах webhook.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeEntityTooLarge = "entity_too_large"
)

// EventDispatcher routes decoded events to registered triggers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, env *event.Envelope) error
	DispatchTo(ctx context.Context, name string, env *event.Envelope) error
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler принимает события Firestore, доставленные по HTTP (push-подписка
// Pub/Sub, Eventarc или ручной вызов), и передает их триггерам.
type Handler struct {
	dispatcher EventDispatcher
	logger     *zap.Logger
	timeout    time.Duration
}

// NewHandler creates the webhook handler. timeout bounds one event; zero disables it.
func NewHandler(dispatcher EventDispatcher, logger *zap.Logger, timeout time.Duration) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger.Named("webhook"),
		timeout:    timeout,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	events := router.Group("/events")
	events.POST("", h.handleEvent)
	events.POST("/:trigger", h.handleTriggerEvent)
}

// NewRouter собирает gin.Engine со всеми middleware, /health и /metrics.
func NewRouter(h *Handler, logger *zap.Logger, ginMode string) *gin.Engine {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}

	router := gin.New()
	router.Use(ZapLogger(logger))
	router.Use(gin.Recovery())

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	h.RegisterRoutes(router)

	// После регистрации маршрутов, чтобы метрики видели их шаблоны.
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	return router
}

func (h *Handler) handleEvent(c *gin.Context) {
	env, ok := h.readEnvelope(c)
	if !ok {
		return
	}
	ctx, cancel := h.eventContext(c)
	defer cancel()

	if err := h.dispatcher.Dispatch(ctx, env); err != nil {
		h.handleDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleTriggerEvent(c *gin.Context) {
	name := c.Param("trigger")
	env, ok := h.readEnvelope(c)
	if !ok {
		return
	}
	ctx, cancel := h.eventContext(c)
	defer cancel()

	if err := h.dispatcher.DispatchTo(ctx, name, env); err != nil {
		h.handleDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "trigger": name})
}

func (h *Handler) readEnvelope(c *gin.Context) (*event.Envelope, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Code: ErrCodeEntityTooLarge, Message: "Event body is too large"})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Failed to read request body"})
		return nil, false
	}

	env, err := event.Decode(body)
	if err != nil {
		h.logger.Warn("Rejected malformed event", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()})
		return nil, false
	}
	c.Set(eventIDKey, env.Context.EventID)
	return env, true
}

func (h *Handler) eventContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (h *Handler) handleDispatchError(c *gin.Context, err error) {
	var (
		statusCode int
		errResp    ErrorResponse
	)
	switch {
	case errors.Is(err, trigger.ErrUnknownTrigger), errors.Is(err, trigger.ErrNoTrigger):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, trigger.ErrTriggerMismatch), errors.Is(err, trigger.ErrMalformedEvent):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()}
	default:
		_ = c.Error(err)
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "Event handling failed"}
	}
	c.AbortWithStatusJSON(statusCode, errResp)
}
