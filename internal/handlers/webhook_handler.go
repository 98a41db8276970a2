package handlers

import (
	"io"
	"net/http"

	"github.com/walletpay/backend/internal/services"
)

const signatureHeader = "X-Razorpay-Signature"

type WebhookHandler struct {
	service *services.WebhookService
}

func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Razorpay receives gateway callbacks. The raw body is kept intact for the
// signature check. Any non-2xx answer makes the gateway redeliver, so only
// failures whose key was released (storage errors, unknown records), events
// another worker is still applying, or requests that never reached the gate
// answer with an error status.
func (h *WebhookHandler) Razorpay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		services.SendCodedError(w, "INVALID_PAYLOAD", "could not read request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.service.AdmitWebhook(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		if outcome != nil && !services.ReleasesGateKey(err) {
			writeJSON(w, http.StatusOK, webhookResponse{WebhookOutcome: outcome, Code: services.ErrorCode(err), Error: err.Error()})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{WebhookOutcome: outcome})
}

type webhookResponse struct {
	*services.WebhookOutcome
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
