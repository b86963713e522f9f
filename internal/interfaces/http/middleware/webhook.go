package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"riskguard/internal/application/dto"
	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/webhook"
)

// Webhook acknowledgement statuses
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
)

// RetryAfterInProgress is the Retry-After value, in seconds, sent while an
// earlier delivery of the same transaction is still running
const RetryAfterInProgress = "30"

// DefaultMaxWebhookBody caps buffered webhook bodies
const DefaultMaxWebhookBody int64 = 1 << 20

// WebhookGate verifies and deduplicates deliveries
type WebhookGate interface {
	Provider(name string) (webhook.Provider, bool)
	Process(ctx context.Context, d webhook.Delivery, fn webhook.Handler) (webhook.Outcome, error)
}

// ProviderFunc resolves the provider name of a request
type ProviderFunc func(r *http.Request) string

// WebhookOptions configures the Webhook middleware
type WebhookOptions struct {
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Webhook runs deliveries through the gate before next. next runs at most
// once per transaction; a 5xx from next releases the idempotency claim so
// the provider's retry is processed again. A retry that arrives while next
// is still running gets a 409 so the provider tries again later.
func Webhook(gate WebhookGate, provider ProviderFunc, opts WebhookOptions) func(http.Handler) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxWebhookBody
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := provider(r)

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, fraud.CodeWebhookPayloadInvalid, "payload too large")
					return
				}
				writeError(w, http.StatusBadRequest, fraud.CodeWebhookPayloadInvalid, "failed to read payload")
				return
			}

			d := webhook.Delivery{
				Provider:      name,
				TransactionID: webhook.ExtractTransactionID(body),
				Payload:       body,
			}
			if p, ok := gate.Provider(name); ok {
				d.Signature = r.Header.Get(p.Header)
			}

			rec := &statusRecorder{ResponseWriter: w}
			outcome, err := gate.Process(r.Context(), d, func(ctx context.Context, d webhook.Delivery) error {
				req := r.WithContext(context.WithValue(ctx, deliveryKey, d))
				req.Body = io.NopCloser(bytes.NewReader(d.Payload))
				next.ServeHTTP(rec, req)
				if rec.status >= http.StatusInternalServerError {
					return fmt.Errorf("webhook handler responded %d", rec.status)
				}
				return nil
			})

			switch outcome {
			case webhook.OutcomeAccepted:
				if !rec.wrote {
					writeJSON(w, http.StatusOK, dto.WebhookAck{Received: true, Status: StatusProcessed})
				}
			case webhook.OutcomeDuplicate:
				writeJSON(w, http.StatusOK, dto.WebhookAck{Received: true, Status: StatusAlreadyProcessed})
			case webhook.OutcomeInProgress:
				w.Header().Set("Retry-After", RetryAfterInProgress)
				writeError(w, http.StatusConflict, fraud.CodeWebhookInProgress, "delivery is still being processed")
			case webhook.OutcomeRejected:
				writeDomainError(w, err)
			default:
				if !rec.wrote {
					logger.Error("webhook processing failed", zap.String("provider", name), zap.Error(err))
					writeError(w, http.StatusInternalServerError, "", "webhook processing failed")
				}
			}
		})
	}
}

// statusRecorder remembers the status written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wrote {
		s.status = http.StatusOK
		s.wrote = true
	}
	return s.ResponseWriter.Write(b)
}
