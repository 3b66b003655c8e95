// Package server exposes the gateway's HTTP surface: the send route, the
// forward-variant inbound webhook, health and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/metrics"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/store"
)

// JobPublisher enqueues accepted send jobs on the broker.
type JobPublisher interface {
	Publish(ctx context.Context, variant string, job models.OutgoingJob) error
}

// StatusPublisher emits lifecycle events for accepted jobs.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// Listener receives normalized inbound batches, the same contract the
// session layer uses for protocol traffic.
type Listener interface {
	Process(ctx context.Context, phone string, kind models.EventKind, payloads []models.WebhookPayload) error
}

// Dependencies collects the collaborators required by the HTTP server.
type Dependencies struct {
	Tenants   config.Provider
	Stores    *store.Stores
	Publisher JobPublisher
	Listener  Listener
	Status    StatusPublisher
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Server owns the gin engine and route handlers.
type Server struct {
	tenants   config.Provider
	stores    *store.Stores
	publisher JobPublisher
	listener  Listener
	status    StatusPublisher
	logger    zerolog.Logger
	now       func() time.Time

	router *gin.Engine
}

// New validates the dependencies, builds the router and registers all
// routes.
func New(deps Dependencies) (*Server, error) {
	if deps.Tenants == nil {
		return nil, fmt.Errorf("server: tenant provider is required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("server: stores are required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("server: job publisher is required")
	}
	if deps.Listener == nil {
		return nil, fmt.Errorf("server: listener is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		tenants:   deps.Tenants,
		stores:    deps.Stores,
		publisher: deps.Publisher,
		listener:  deps.Listener,
		status:    deps.Status,
		logger:    logger.With().Str("component", "http_server").Logger(),
		now:       nowFunc,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the http.Handler backing the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/:phone/messages", s.handleSend)
	s.router.POST("/webhooks/whatsapp/:phone", s.handleWebhook)
}

// handleSend accepts one send request, assigns ids and enqueues it for the
// tenant's variant queue. The send itself runs asynchronously in a worker.
func (s *Server) handleSend(c *gin.Context) {
	phone := c.Param("phone")

	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": 400, "title": "malformed request body"}})
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	tenant, err := s.tenants.GetTenant(c.Request.Context(), phone)
	if err != nil {
		s.logger.Error().Err(err).Str("phone", phone).Msg("tenant lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": 500, "title": "tenant lookup failed"}})
		return
	}

	job := models.OutgoingJob{
		Phone:     phone,
		Request:   req,
		TraceID:   uuid.NewString(),
		CreatedAt: s.now(),
	}
	if err := s.publisher.Publish(c.Request.Context(), tenant.ConnectionType, job); err != nil {
		s.logger.Error().Err(err).Str("phone", phone).Str("message_id", req.MessageID).Msg("enqueue failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": 503, "title": "send queue unavailable"}})
		return
	}

	metrics.SendsAccepted.Inc()
	s.publishQueued(c.Request.Context(), &job)
	c.JSON(http.StatusAccepted, gin.H{
		"messaging_product": "whatsapp",
		"messages":          []models.MessageID{{ID: req.MessageID}},
		"trace_id":          job.TraceID,
	})
}

// webhookBody is the Cloud-API-shaped inbound body accepted on the forward
// webhook route.
type webhookBody struct {
	Messages []models.Message `json:"messages"`
	Statuses []models.Status  `json:"statuses"`
}

// handleWebhook ingests inbound traffic for forward-variant tenants. Media
// descriptors are persisted so later status operations can reference them,
// then the batch is relayed to the listener in the envelope shape.
func (s *Server) handleWebhook(c *gin.Context) {
	phone := c.Param("phone")

	var body webhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": 400, "title": "malformed request body"}})
		return
	}
	if len(body.Messages) == 0 && len(body.Statuses) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	ctx := c.Request.Context()
	for i := range body.Messages {
		s.storeMediaPayload(ctx, phone, &body.Messages[i])
	}

	var payloads []models.WebhookPayload
	kind := models.EventMessage
	if len(body.Messages) > 0 {
		payloads = append(payloads, models.NewWebhookPayload(phone, models.ChangeValue{Messages: body.Messages}))
	}
	if len(body.Statuses) > 0 {
		payloads = append(payloads, models.NewWebhookPayload(phone, models.ChangeValue{Statuses: body.Statuses}))
		if len(body.Messages) == 0 {
			kind = models.EventUpdate
		}
	}

	if err := s.listener.Process(ctx, phone, kind, payloads); err != nil {
		s.logger.Warn().Err(err).Str("phone", phone).Msg("webhook relay failed")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// storeMediaPayload records the media descriptor of an inbound message under
// the message id. Non-media messages are skipped.
func (s *Server) storeMediaPayload(ctx context.Context, phone string, msg *models.Message) {
	media := mediaOf(msg)
	if media == nil || media.ID == "" {
		return
	}
	payload := store.MediaPayload{
		MessagingProduct: "whatsapp",
		ID:               media.ID,
		MimeType:         media.MimeType,
		SHA256:           media.SHA256,
		Caption:          media.Caption,
		Filename:         media.Filename,
	}
	if err := s.stores.Data.SetMediaPayload(ctx, phone, msg.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("phone", phone).Str("message_id", msg.ID).Msg("media payload store failed")
	}
}

func mediaOf(msg *models.Message) *models.Media {
	switch {
	case msg.Image != nil:
		return msg.Image
	case msg.Audio != nil:
		return msg.Audio
	case msg.Video != nil:
		return msg.Video
	case msg.Document != nil:
		return msg.Document
	case msg.Sticker != nil:
		return msg.Sticker
	}
	return nil
}

func (s *Server) publishQueued(ctx context.Context, job *models.OutgoingJob) {
	if s.status == nil {
		return
	}
	event := models.StatusEvent{
		MessageID: job.Request.MessageID,
		Phone:     job.Phone,
		EventType: models.StatusEventQueued,
		TraceID:   job.TraceID,
		Timestamp: s.now(),
	}
	if err := s.status.PublishStatus(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("message_id", event.MessageID).Msg("queued event publish failed")
	}
}
