package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrStaleTransition means a status update lost the race: the document was
	// no longer in the expected state when the update ran.
	ErrStaleTransition = errors.New("stale status transition")

	ErrDuplicateEmail = errors.New("email already registered")
)

var (
	Documents = &DocumentOperations{}
	Users     = &UserOperations{}
	Settings  = &SettingsOperations{}
)

type DocumentOperations struct{}

func (o *DocumentOperations) CreateDocument(ctx context.Context, d *Document) error {
	sourceFiles, err := json.Marshal(d.SourceFiles)
	if err != nil {
		return fmt.Errorf("failed to encode source files: %w", err)
	}

	var owner interface{}
	if d.OwnerID != "" {
		owner = d.OwnerID
	}

	_, err = GetDB().ExecContext(ctx, InsertDocument,
		d.ID, owner, d.OriginalFilename, d.StoredFilename, d.FilePath,
		d.FileSize, d.FileType, d.Merged, string(sourceFiles), d.PrintPath,
		d.Copies, d.ColorMode, d.Status)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (o *DocumentOperations) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	return scanDocument(GetDB().QueryRowContext(ctx, GetDocumentByID, id))
}

func (o *DocumentOperations) ListIDsByStatus(ctx context.Context, status string, limit int) ([]string, error) {
	rows, err := GetDB().QueryContext(ctx, ListDocumentIDsByStatus, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (o *DocumentOperations) UpdateStatus(ctx context.Context, id, from, to string) error {
	return casExec(ctx, UpdateDocumentStatus, to, id, from)
}

func (o *DocumentOperations) MarkQueued(ctx context.Context, id, from string) error {
	return casExec(ctx, MarkDocumentQueued, id, from)
}

func (o *DocumentOperations) MarkPrinting(ctx context.Context, id string) error {
	return casExec(ctx, MarkDocumentPrinting, id)
}

func (o *DocumentOperations) MarkCompleted(ctx context.Context, id string) error {
	return casExec(ctx, MarkDocumentCompleted, id)
}

func (o *DocumentOperations) MarkFailed(ctx context.Context, id, from, reason string) error {
	return casExec(ctx, MarkDocumentFailed, reason, id, from)
}

func (o *DocumentOperations) SetPrintPath(ctx context.Context, id, path string) error {
	_, err := GetDB().ExecContext(ctx, SetDocumentPrintPath, path, id)
	if err != nil {
		return fmt.Errorf("failed to set print path: %w", err)
	}
	return nil
}

// RequeueForRetry moves a printing document back to queued with its retry
// counter bumped and eligibility deferred by delay.
func (o *DocumentOperations) RequeueForRetry(ctx context.Context, id string, delay time.Duration) error {
	modifier := fmt.Sprintf("+%d seconds", int(delay.Seconds()))
	return casExec(ctx, RequeueDocumentForRetry, modifier, id)
}

func (o *DocumentOperations) Release(ctx context.Context, id string) error {
	_, err := GetDB().ExecContext(ctx, ReleaseDocument, id)
	if err != nil {
		return fmt.Errorf("failed to release document: %w", err)
	}
	return nil
}

// NextPrintable returns the oldest queued document eligible for printing, or
// nil when the queue has no eligible entry.
func (o *DocumentOperations) NextPrintable(ctx context.Context, autoPrint bool, printDelay time.Duration) (*Document, error) {
	auto := 0
	if autoPrint {
		auto = 1
	}
	now := time.Now().UTC()
	doc, err := scanDocument(GetDB().QueryRowContext(ctx, NextPrintable, now, auto, now.Add(-printDelay)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// ResetInFlight puts interrupted work back where the scheduler will pick it
// up again after a restart.
func (o *DocumentOperations) ResetInFlight(ctx context.Context) error {
	if _, err := GetDB().ExecContext(ctx, ResetInFlightDocuments); err != nil {
		return fmt.Errorf("failed to reset downloading documents: %w", err)
	}
	if _, err := GetDB().ExecContext(ctx, ResetPrintingDocuments); err != nil {
		return fmt.Errorf("failed to reset printing documents: %w", err)
	}
	return nil
}

func (o *DocumentOperations) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := GetDB().QueryRowContext(ctx, CountDocuments).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func (o *DocumentOperations) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := GetDB().QueryRowContext(ctx, CountDocumentsByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents by status: %w", err)
	}
	return count, nil
}

func (o *DocumentOperations) RecentDocuments(ctx context.Context, limit int) ([]*Document, error) {
	return queryDocuments(ctx, RecentDocuments, limit)
}

func (o *DocumentOperations) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Document, error) {
	return queryDocuments(ctx, ListDocumentsByOwner, ownerID, limit)
}

func casExec(ctx context.Context, query string, args ...interface{}) error {
	result, err := GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*Document, error) {
	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row *sql.Row) (*Document, error) {
	doc, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return doc, nil
}

func scanDocumentRow(row rowScanner) (*Document, error) {
	d := &Document{}
	var (
		owner       sql.NullString
		sourceFiles string
		merged      int
		released    int
		queuedAt    sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&d.ID, &owner, &d.OriginalFilename, &d.StoredFilename, &d.FilePath,
		&d.FileSize, &d.FileType, &merged, &sourceFiles, &d.PrintPath,
		&d.Copies, &d.ColorMode, &d.Status, &d.FailureReason, &d.RetryCount,
		&released, &d.UploadTime, &queuedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	d.OwnerID = owner.String
	d.Merged = merged == 1
	d.Released = released == 1
	if err := json.Unmarshal([]byte(sourceFiles), &d.SourceFiles); err != nil {
		return nil, fmt.Errorf("failed to decode source files: %w", err)
	}
	if queuedAt.Valid {
		d.QueuedAt = &queuedAt.Time
	}
	if startedAt.Valid {
		d.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}

	return d, nil
}

type UserOperations struct{}

func (o *UserOperations) CreateUser(ctx context.Context, u *User) error {
	_, err := GetDB().ExecContext(ctx, InsertUser, u.ID, u.Name, u.Email, u.PasswordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (o *UserOperations) GetUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(GetDB().QueryRowContext(ctx, GetUserByID, id))
}

func (o *UserOperations) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(GetDB().QueryRowContext(ctx, GetUserByEmail, email))
}

func (o *UserOperations) IncrementPrints(ctx context.Context, id string) error {
	_, err := GetDB().ExecContext(ctx, IncrementUserPrints, id)
	if err != nil {
		return fmt.Errorf("failed to increment user prints: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.TotalPrints, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{}
	err := GetDB().QueryRowContext(ctx, GetSettingQuery, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	_, err := GetDB().ExecContext(ctx, SetSettingQuery, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
