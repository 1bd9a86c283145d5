package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smileclinic/booking-bot/internal/gate"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// WebhookHandler receives chat-provider callbacks and feeds them into the
// gate. The endpoint always answers 200 so providers never retry; the
// disposition in the body says what actually happened.
type WebhookHandler struct {
	gate   *gate.Gate
	logger *logging.Logger
}

// NewWebhookHandler creates the inbound webhook handler.
func NewWebhookHandler(g *gate.Gate, logger *logging.Logger) *WebhookHandler {
	if g == nil {
		panic("handlers: gate required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{gate: g, logger: logger}
}

type webhookPayload struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

type webhookResponse struct {
	Disposition string `json:"disposition"`
}

// HandleInbound accepts one inbound message.
// Route: POST /webhooks/{provider}
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("malformed webhook payload ignored", "provider", provider, "error", err)
		respondJSON(w, http.StatusOK, webhookResponse{Disposition: "ignored"})
		return
	}
	payload.Sender = strings.TrimSpace(payload.Sender)
	if payload.Sender == "" {
		h.logger.Warn("webhook without sender ignored", "provider", provider)
		respondJSON(w, http.StatusOK, webhookResponse{Disposition: "ignored"})
		return
	}

	d := h.gate.Submit(r.Context(), gate.Event{
		ID:         payload.MessageID,
		Provider:   provider,
		Sender:     payload.Sender,
		Text:       payload.Text,
		ReceivedAt: time.Now(),
	})
	respondJSON(w, http.StatusOK, webhookResponse{Disposition: string(d)})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
