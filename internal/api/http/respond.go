package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	municipality "wastefee-cloud/internal/municipality/domain"
	simulator "wastefee-cloud/internal/simulator/domain"
	wallet "wastefee-cloud/internal/wallet/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func jsonBytes(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := jsonBytes(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBody(w, code, body)
}

func writeBody(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Success: false, Error: message})
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, municipality.ErrUnknownMunicipality):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrInvalidArgument), errors.Is(err, simulator.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrDuplicateAccount), errors.Is(err, wallet.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientBalance), errors.Is(err, wallet.ErrNoSurplus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(h.retryAfterSeconds))
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, code, "internal server error")
		return
	}
	respondError(w, code, err.Error())
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body too large")
	}
	return body, nil
}

func decodeBody(body []byte, dst any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty request body", wallet.ErrInvalidArgument)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", wallet.ErrInvalidArgument, err)
	}
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := readBody(r)
	if err != nil {
		return fmt.Errorf("%w: %v", wallet.ErrInvalidArgument, err)
	}
	return decodeBody(body, dst)
}
