package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"riskguard/internal/application/dto"
	"riskguard/internal/interfaces/http/middleware"
)

// WebhookHandler receives deliveries admitted by the webhook gate
type WebhookHandler struct {
	logger *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{logger: logger}
}

type webhookEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Attributes struct {
			Type string `json:"type"`
		} `json:"attributes"`
	} `json:"data"`
}

// Receive handles POST /webhooks/{provider}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	d, ok := middleware.DeliveryFrom(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "", "webhook gate not applied")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		h.logger.Debug("webhook payload is not a JSON envelope",
			zap.String("provider", d.Provider),
			zap.String("transaction_id", d.TransactionID),
			zap.Error(err),
		)
	}
	eventType := env.Type
	if eventType == "" {
		eventType = env.Data.Attributes.Type
	}

	h.logger.Info("webhook accepted",
		zap.String("provider", d.Provider),
		zap.String("transaction_id", d.TransactionID),
		zap.String("event_type", eventType),
		zap.Int("payload_bytes", len(d.Payload)),
	)
	writeJSON(w, http.StatusOK, dto.WebhookAck{Received: true, Status: middleware.StatusProcessed})
}
