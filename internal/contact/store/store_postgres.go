package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"identity-link/internal/contact/models"
	"identity-link/pkg/platform/sentinel"
)

// Schema provisions the contacts table. Exposed for integration tests and
// first-boot provisioning; migrations own it in real deployments.
const Schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id              BIGSERIAL PRIMARY KEY,
	email           TEXT,
	phone_number    TEXT,
	linked_id       BIGINT REFERENCES contacts(id),
	link_precedence TEXT NOT NULL DEFAULT 'primary',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS contacts_email_idx ON contacts (email);
CREATE INDEX IF NOT EXISTS contacts_phone_number_idx ON contacts (phone_number);
CREATE INDEX IF NOT EXISTS contacts_linked_id_idx ON contacts (linked_id);
`

// maxTxAttempts bounds retries of serializable transactions that abort with a
// serialization failure. The retried fn re-reads all state, so replays are
// safe.
const maxTxAttempts = 3

// PostgresStore persists contacts in PostgreSQL. The same type serves both
// direct access and transactional access: RunInTx hands fn a store bound to
// the open transaction.
type PostgresStore struct {
	db *sql.DB
	ex executor
}

// executor abstracts *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, ex: db}
}

// EnsureSchema creates the contacts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure contacts schema: %w", err)
	}
	return nil
}

const contactColumns = `id, COALESCE(email, ''), COALESCE(phone_number, ''), linked_id, link_precedence, created_at, updated_at, deleted_at`

func (s *PostgresStore) FindMatching(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone_number = $2)
		ORDER BY id
	`
	rows, err := s.ex.QueryContext(ctx, query, email, phone)
	if err != nil {
		return nil, fmt.Errorf("find matching contacts: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	row := s.ex.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact by id: %w", err)
	}
	return contact, nil
}

func (s *PostgresStore) FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error) {
	rows, err := s.ex.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE linked_id = $1 ORDER BY id`, linkedID)
	if err != nil {
		return nil, fmt.Errorf("find contacts by linked id: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (s *PostgresStore) Create(ctx context.Context, draft models.ContactDraft) (*models.Contact, error) {
	query := `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4)
		RETURNING id, created_at, updated_at
	`
	contact := &models.Contact{
		Email:          draft.Email,
		PhoneNumber:    draft.PhoneNumber,
		LinkedID:       draft.LinkedID,
		LinkPrecedence: draft.LinkPrecedence,
	}
	var linkedID sql.NullInt64
	if draft.LinkedID != nil {
		linkedID = sql.NullInt64{Int64: *draft.LinkedID, Valid: true}
	}
	err := s.ex.QueryRowContext(ctx, query, draft.Email, draft.PhoneNumber, linkedID, string(draft.LinkPrecedence)).
		Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return contact, nil
}

func (s *PostgresStore) Save(ctx context.Context, contact *models.Contact) error {
	query := `
		UPDATE contacts
		SET email = NULLIF($2, ''),
		    phone_number = NULLIF($3, ''),
		    linked_id = $4,
		    link_precedence = $5,
		    updated_at = NOW()
		WHERE id = $1
	`
	var linkedID sql.NullInt64
	if contact.LinkedID != nil {
		linkedID = sql.NullInt64{Int64: *contact.LinkedID, Valid: true}
	}
	res, err := s.ex.ExecContext(ctx, query, contact.ID, contact.Email, contact.PhoneNumber, linkedID, string(contact.LinkPrecedence))
	if err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save contact rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Relink points all listed contacts at newLinkedID in one statement instead
// of per-row updates.
func (s *PostgresStore) Relink(ctx context.Context, ids []int64, newLinkedID int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE contacts
		SET linked_id = $1, updated_at = NOW()
		WHERE id = ANY($2::bigint[])
	`
	if _, err := s.ex.ExecContext(ctx, query, newLinkedID, pq.Array(ids)); err != nil {
		return fmt.Errorf("relink contacts: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a serializable transaction. Serialization failures
// are retried a bounded number of times; after that the conflict surfaces as
// sentinel.ErrConflict for the service to translate.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(store Store) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		txStore := &PostgresStore{db: s.db, ex: tx}
		if err := fn(txStore); err != nil {
			_ = tx.Rollback()
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction retries exhausted: %w: %w", sentinel.ErrConflict, lastErr)
}

// isSerializationFailure matches SQLSTATE 40001 (serialization_failure) and
// 40P01 (deadlock_detected).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		contact   models.Contact
		linkedID  sql.NullInt64
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&contact.ID,
		&contact.Email,
		&contact.PhoneNumber,
		&linkedID,
		&contact.LinkPrecedence,
		&contact.CreatedAt,
		&contact.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if linkedID.Valid {
		contact.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		contact.DeletedAt = &t
	}
	return &contact, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}
