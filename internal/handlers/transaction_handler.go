package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/services"
)

type TransactionHandler struct {
	service *services.TransactionService
}

func NewTransactionHandler(service *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// transitionRequest is the body of POST /transactions/{kind}/{id}/events.
// Gateway identifiers, UTR and fees only arrive through signed webhooks.
type transitionRequest struct {
	Event   services.Event  `json:"event"`
	Amount  decimal.Decimal `json:"amount"`
	Partial bool            `json:"partial"`
	Reason  string          `json:"reason,omitempty"`
	Remark  string          `json:"remark,omitempty"`
}

// CreatePayment registers a payment intent in CREATED.
func (h *TransactionHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.CreatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	payment, err := h.service.CreatePayment(r.Context(), req, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// CreatePayout registers a wallet payout and posts the wallet debit.
func (h *TransactionHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.CreatePayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.CreatePayout(r.Context(), req, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RequestTransition applies one event to a payment, its refund, or a payout.
func (h *TransactionHandler) RequestTransition(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	kind := services.TransactionKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if req.Event == "" {
		services.SendCodedError(w, "INVALID_PAYLOAD", "event is required", http.StatusBadRequest)
		return
	}

	in := services.TransitionInput{
		ActorID: actorID,
		Amount:  req.Amount,
		Partial: req.Partial,
		Reason:  req.Reason,
		Remark:  req.Remark,
	}
	result, err := h.service.RequestTransition(r.Context(), kind, id, req.Event, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PendingRefunds lists refunds awaiting approval, newest first.
func (h *TransactionHandler) PendingRefunds(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit <= 0 || limit > 500 {
		services.SendCodedError(w, "INVALID_PAYLOAD", "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		services.SendCodedError(w, "INVALID_PAYLOAD", "offset must not be negative", http.StatusBadRequest)
		return
	}

	payments, err := h.service.PendingRefunds(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refunds": payments,
		"count":   len(payments),
		"limit":   limit,
		"offset":  offset,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
