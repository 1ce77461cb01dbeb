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

var (
	ErrPolicyDocumentNotFound = errors.New("policy document not found")
	ErrPolicyDocumentInvalid  = errors.New("policy document input is invalid")
)

type PolicyDocument struct {
	ID         string
	Title      string
	SourcePath string
	Content    string
	UploaderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SavePolicyDocumentInput struct {
	Title      string
	SourcePath string
	Content    string
	UploaderID string
}

// SavePolicyDocument inserts a document. When SourcePath is set and already
// known, the existing document keeps its id and has its content replaced.
func (s *Store) SavePolicyDocument(ctx context.Context, input SavePolicyDocumentInput) (PolicyDocument, error) {
	title := strings.TrimSpace(input.Title)
	sourcePath := strings.TrimSpace(input.SourcePath)
	if title == "" {
		title = sourcePath
	}
	if title == "" || strings.TrimSpace(input.Content) == "" {
		return PolicyDocument{}, ErrPolicyDocumentInvalid
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PolicyDocument{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	documentID := ""
	if sourcePath != "" {
		err := tx.QueryRowContext(ctx, `SELECT id FROM policy_documents WHERE source_path = ?`, sourcePath).Scan(&documentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return PolicyDocument{}, fmt.Errorf("lookup policy document source: %w", err)
		}
	}
	if documentID == "" {
		documentID = "policy_" + uuid.NewString()
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO policy_documents (id, title, source_path, content, uploader_id, created_at_unix, updated_at_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			documentID,
			title,
			nullIfEmpty(sourcePath),
			input.Content,
			nullIfEmpty(strings.TrimSpace(input.UploaderID)),
			now.Unix(),
			now.Unix(),
		); err != nil {
			return PolicyDocument{}, fmt.Errorf("insert policy document: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE policy_documents SET title = ?, content = ?, uploader_id = COALESCE(?, uploader_id), updated_at_unix = ? WHERE id = ?`,
			title,
			input.Content,
			nullIfEmpty(strings.TrimSpace(input.UploaderID)),
			now.Unix(),
			documentID,
		); err != nil {
			return PolicyDocument{}, fmt.Errorf("update policy document: %w", err)
		}
	}

	document, err := lookupPolicyDocument(ctx, tx, documentID)
	if err != nil {
		return PolicyDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return PolicyDocument{}, fmt.Errorf("commit policy document: %w", err)
	}
	return document, nil
}

func (s *Store) LookupPolicyDocument(ctx context.Context, id string) (PolicyDocument, error) {
	return lookupPolicyDocument(ctx, s.db, id)
}

func (s *Store) LookupPolicyDocumentBySource(ctx context.Context, sourcePath string) (PolicyDocument, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, source_path, content, uploader_id, created_at_unix, updated_at_unix
		 FROM policy_documents WHERE source_path = ?`,
		strings.TrimSpace(sourcePath),
	)
	return scanPolicyDocument(row)
}

func (s *Store) ListPolicyDocuments(ctx context.Context) ([]PolicyDocument, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, source_path, content, uploader_id, created_at_unix, updated_at_unix
		 FROM policy_documents
		 ORDER BY created_at_unix ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list policy documents: %w", err)
	}
	defer rows.Close()

	var documents []PolicyDocument
	for rows.Next() {
		document, err := scanPolicyDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy documents: %w", err)
	}
	return documents, nil
}

func (s *Store) DeletePolicyDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM policy_documents WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete policy document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete policy document rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPolicyDocumentNotFound
	}
	return nil
}

func lookupPolicyDocument(ctx context.Context, db queryRower, id string) (PolicyDocument, error) {
	row := db.QueryRowContext(
		ctx,
		`SELECT id, title, source_path, content, uploader_id, created_at_unix, updated_at_unix
		 FROM policy_documents WHERE id = ?`,
		strings.TrimSpace(id),
	)
	return scanPolicyDocument(row)
}

func scanPolicyDocument(row rowScanner) (PolicyDocument, error) {
	var (
		document      PolicyDocument
		sourcePath    sql.NullString
		uploaderID    sql.NullString
		createdAtUnix int64
		updatedAtUnix int64
	)
	if err := row.Scan(
		&document.ID,
		&document.Title,
		&sourcePath,
		&document.Content,
		&uploaderID,
		&createdAtUnix,
		&updatedAtUnix,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PolicyDocument{}, ErrPolicyDocumentNotFound
		}
		return PolicyDocument{}, fmt.Errorf("scan policy document: %w", err)
	}
	document.SourcePath = sourcePath.String
	document.UploaderID = uploaderID.String
	document.CreatedAt = unixToTime(createdAtUnix)
	document.UpdatedAt = unixToTime(updatedAtUnix)
	return document, nil
}
