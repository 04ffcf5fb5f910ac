package care

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a note or reminder id resolves to no row.
var ErrNotFound = errors.New("care record not found")

const createCareSQL = `
CREATE TABLE IF NOT EXISTS care_notes (
    id TEXT PRIMARY KEY,
    member_id TEXT NOT NULL,
    content TEXT NOT NULL,
    history JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_by_name TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL,
    updated_by TEXT NOT NULL DEFAULT '',
    updated_by_name TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_care_notes_member ON care_notes (member_id, created_at DESC);

CREATE TABLE IF NOT EXISTS care_reminders (
    id TEXT PRIMARY KEY,
    member_id TEXT NOT NULL,
    text TEXT NOT NULL,
    due_date TIMESTAMPTZ,
    is_expired BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_by_name TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_care_reminders_member ON care_reminders (member_id);
CREATE INDEX IF NOT EXISTS idx_care_reminders_due ON care_reminders (due_date) WHERE due_date IS NOT NULL;
`

// Repository is the care note and reminder store used by the service layer.
type Repository interface {
	EnsureSchema(ctx context.Context) error

	ListNotes(ctx context.Context, memberID string) ([]Note, error)
	GetNote(ctx context.Context, id string) (Note, error)
	CreateNote(ctx context.Context, note Note) error
	UpdateNote(ctx context.Context, id, content string, editedAt time.Time, editedBy, editedByName string) (Note, error)
	DeleteNote(ctx context.Context, id string) error

	ListReminders(ctx context.Context, memberID string) ([]Reminder, error)
	ListAllReminders(ctx context.Context) ([]Reminder, error)
	CreateReminder(ctx context.Context, reminder Reminder) error
	DeleteReminder(ctx context.Context, id string) (Reminder, error)
	RefreshExpiry(ctx context.Context, before time.Time) (int64, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createCareSQL); err != nil {
		return fmt.Errorf("ensure care schema: %w", err)
	}
	return nil
}

const noteColumns = `id, member_id, content, history, created_at, created_by, created_by_name,
    updated_at, updated_by, updated_by_name`

func scanNote(row pgx.Row) (Note, error) {
	var (
		n       Note
		history []byte
	)
	err := row.Scan(&n.ID, &n.MemberID, &n.Content, &history,
		&n.CreatedAt, &n.CreatedBy, &n.CreatedByName,
		&n.UpdatedAt, &n.UpdatedBy, &n.UpdatedByName)
	if err != nil {
		return Note{}, err
	}
	if err := json.Unmarshal(history, &n.History); err != nil {
		return Note{}, fmt.Errorf("decode note history: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListNotes(ctx context.Context, memberID string) ([]Note, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM care_notes WHERE member_id = $1 ORDER BY created_at DESC`,
		memberID)
	if err != nil {
		return nil, fmt.Errorf("list care notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *PostgresRepository) GetNote(ctx context.Context, id string) (Note, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM care_notes WHERE id = $1`, id)
	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("get care note: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CreateNote(ctx context.Context, note Note) error {
	history := note.History
	if history == nil {
		history = []HistoryEntry{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode note history: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO care_notes (id, member_id, content, history, created_at, created_by,
            created_by_name, updated_at, updated_by, updated_by_name)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		note.ID, note.MemberID, note.Content, encoded,
		note.CreatedAt, note.CreatedBy, note.CreatedByName,
		note.UpdatedAt, note.UpdatedBy, note.UpdatedByName)
	if err != nil {
		return fmt.Errorf("create care note: %w", err)
	}
	return nil
}

// UpdateNote replaces the note content, pushing the superseded version onto
// the history inside one transaction so concurrent edits cannot lose an
// entry. Creation stamps are never touched.
func (r *PostgresRepository) UpdateNote(ctx context.Context, id, content string, editedAt time.Time, editedBy, editedByName string) (Note, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Note{}, fmt.Errorf("begin note update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM care_notes WHERE id = $1 FOR UPDATE`, id)
	current, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("lock care note: %w", err)
	}

	entry := HistoryEntry{
		Content:      current.Content,
		EditedAt:     editedAt,
		EditedBy:     editedBy,
		EditedByName: editedByName,
	}
	history := append(current.History, entry)
	encoded, err := json.Marshal(history)
	if err != nil {
		return Note{}, fmt.Errorf("encode note history: %w", err)
	}

	_, err = tx.Exec(ctx, `
        UPDATE care_notes SET content = $2, history = $3,
            updated_at = $4, updated_by = $5, updated_by_name = $6
        WHERE id = $1`,
		id, content, encoded, editedAt, editedBy, editedByName)
	if err != nil {
		return Note{}, fmt.Errorf("update care note: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Note{}, fmt.Errorf("commit note update: %w", err)
	}

	current.Content = content
	current.History = history
	current.UpdatedAt = editedAt
	current.UpdatedBy = editedBy
	current.UpdatedByName = editedByName
	return current, nil
}

func (r *PostgresRepository) DeleteNote(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM care_notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete care note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const reminderColumns = `id, member_id, text, due_date, is_expired, created_at, created_by, created_by_name`

func scanReminder(row pgx.Row) (Reminder, error) {
	var rem Reminder
	err := row.Scan(&rem.ID, &rem.MemberID, &rem.Text, &rem.DueDate, &rem.IsExpired,
		&rem.CreatedAt, &rem.CreatedBy, &rem.CreatedByName)
	if err != nil {
		return Reminder{}, err
	}
	return rem, nil
}

func (r *PostgresRepository) ListReminders(ctx context.Context, memberID string) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM care_reminders WHERE member_id = $1`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list care reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (r *PostgresRepository) ListAllReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reminderColumns+` FROM care_reminders`)
	if err != nil {
		return nil, fmt.Errorf("list all care reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func collectReminders(rows pgx.Rows) ([]Reminder, error) {
	var reminders []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func (r *PostgresRepository) CreateReminder(ctx context.Context, reminder Reminder) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO care_reminders (id, member_id, text, due_date, is_expired,
            created_at, created_by, created_by_name)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reminder.ID, reminder.MemberID, reminder.Text, reminder.DueDate, reminder.IsExpired,
		reminder.CreatedAt, reminder.CreatedBy, reminder.CreatedByName)
	if err != nil {
		return fmt.Errorf("create care reminder: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteReminder(ctx context.Context, id string) (Reminder, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM care_reminders WHERE id = $1 RETURNING `+reminderColumns, id)
	rem, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("delete care reminder: %w", err)
	}
	return rem, nil
}

// RefreshExpiry marks reminders whose due date fell before the given cutoff,
// keeping the denormalized flag honest for clients that read rows directly.
func (r *PostgresRepository) RefreshExpiry(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
        UPDATE care_reminders SET is_expired = TRUE
        WHERE due_date IS NOT NULL AND due_date < $1 AND NOT is_expired`, before)
	if err != nil {
		return 0, fmt.Errorf("refresh reminder expiry: %w", err)
	}
	return tag.RowsAffected(), nil
}
