package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// DefaultTTL is how long a key and its stored response are kept.
const DefaultTTL = 24 * time.Hour

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var (
	// ErrInProgress is returned when the key is reserved by a request that
	// has not finished yet.
	ErrInProgress = errors.New("idempotency: request in progress")
	// ErrMismatch is returned when a key is reused with a different payload.
	ErrMismatch = errors.New("idempotency: key reuse with mismatched payload")
)

// Record is the state of one idempotency key.
type Record struct {
	Key            string          `json:"key"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
}

// Store reserves keys and remembers completed responses.
type Store interface {
	// Reserve claims key for a request with the given payload hash. It
	// returns the completed record when the request was already served,
	// or nil when the caller now owns the key.
	Reserve(ctx context.Context, key, requestHash string) (*Record, error)
	// Complete stores the response served for key.
	Complete(ctx context.Context, key string, status int, body []byte) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// HashRequest fingerprints a request body.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func resolve(existing *Record, requestHash string) (*Record, error) {
	if existing.RequestHash != requestHash {
		return nil, ErrMismatch
	}
	if existing.Status != StatusCompleted {
		return nil, ErrInProgress
	}
	return existing, nil
}
