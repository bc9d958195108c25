package audit

import (
	"context"
	"database/sql"
	"errors"
)

// Repository writes audit logs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry. A redelivered event is ignored.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = normalize(entry)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, event_id, correlation_id, action, resource_type, resource_id,
	metadata, payload_digest, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (event_id) DO NOTHING`, entry.ID, entry.EventID, entry.CorrelationID, entry.Action, entry.ResourceType, entry.ResourceID,
		[]byte(entry.Metadata), entry.PayloadDigest, entry.CreatedAt.UTC())
	return err
}
