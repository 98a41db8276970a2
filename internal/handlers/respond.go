package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/walletpay/backend/internal/middleware"
	"github.com/walletpay/backend/internal/services"
)

const maxBodyBytes = 1_048_576

var errTrailingData = errors.New("request body must only contain a single JSON object")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errTrailingData
	}
	return nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := middleware.ActorID(r.Context())
	if !ok {
		services.SendCodedError(w, "UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
	}
	return actorID, ok
}

// statusForCode maps a service error code onto an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "INVALID_AMOUNT", "INVALID_PAYLOAD", "UNKNOWN_STATUS":
		return http.StatusBadRequest
	case "INVALID_SIGNATURE":
		return http.StatusUnauthorized
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_STATE_TRANSITION", "CONFLICT":
		return http.StatusConflict
	case "AMOUNT_MISMATCH":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError reports err with its stable code. Configuration and
// internal failures are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, err error) {
	if services.IsValidationError(err) {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	code := services.ErrorCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s: %v", code, err)
		services.SendCodedError(w, code, "internal server error", status)
		return
	}
	services.SendCodedError(w, code, err.Error(), status)
}
