package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInteractionInvalid = errors.New("interaction input is invalid")

// InteractionRecord is append-only. The store offers no update or delete.
type InteractionRecord struct {
	ID          string
	RequesterID string
	Query       string
	Answer      string
	Model       string
	CreatedAt   time.Time
}

type CreateInteractionInput struct {
	RequesterID string
	Query       string
	Answer      string
	Model       string
}

type ListInteractionsInput struct {
	RequesterID string
	Limit       int
}

func (s *Store) CreateInteraction(ctx context.Context, input CreateInteractionInput) (InteractionRecord, error) {
	record := InteractionRecord{
		ID:          "ix_" + uuid.NewString(),
		RequesterID: strings.TrimSpace(input.RequesterID),
		Query:       strings.TrimSpace(input.Query),
		Answer:      input.Answer,
		Model:       strings.TrimSpace(input.Model),
		CreatedAt:   time.Now().UTC(),
	}
	if record.RequesterID == "" || record.Query == "" {
		return InteractionRecord{}, ErrInteractionInvalid
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO interaction_records (id, requester_id, query, answer, model, created_at_unix) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.RequesterID,
		record.Query,
		record.Answer,
		nullIfEmpty(record.Model),
		record.CreatedAt.Unix(),
	); err != nil {
		return InteractionRecord{}, fmt.Errorf("insert interaction: %w", err)
	}
	return record, nil
}

// ListInteractions returns the newest records first.
func (s *Store) ListInteractions(ctx context.Context, input ListInteractionsInput) ([]InteractionRecord, error) {
	requesterID := strings.TrimSpace(input.RequesterID)
	if requesterID == "" {
		return nil, ErrInteractionInvalid
	}
	limit := input.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, requester_id, query, answer, model, created_at_unix
		 FROM interaction_records
		 WHERE requester_id = ?
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		requesterID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var records []InteractionRecord
	for rows.Next() {
		var (
			record        InteractionRecord
			model         sql.NullString
			createdAtUnix int64
		)
		if err := rows.Scan(&record.ID, &record.RequesterID, &record.Query, &record.Answer, &model, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		record.Model = model.String
		record.CreatedAt = unixToTime(createdAtUnix)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return records, nil
}
