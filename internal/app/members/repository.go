package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a member id resolves to no row.
var ErrNotFound = errors.New("member not found")

const createMembersSQL = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    birthday TIMESTAMPTZ,
    anniversary TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL,
    updated_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_members_last_first ON members (last_name, first_name);
`

// Repository is the member store used by the service layer.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	List(ctx context.Context) ([]Member, error)
	Get(ctx context.Context, id string) (Member, error)
	Create(ctx context.Context, member Member) error
	Update(ctx context.Context, member Member) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepository stores members in Postgres with the name kept split
// for indexing; rows are folded back into the canonical shape on read.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createMembersSQL); err != nil {
		return fmt.Errorf("ensure members schema: %w", err)
	}
	return nil
}

const memberColumns = `id, first_name, last_name, display_name, email, phone, city, notes,
    birthday, anniversary, created_at, created_by, updated_at, updated_by`

func scanMember(row pgx.Row) (Member, error) {
	var (
		m                     Member
		firstName, lastName   string
		displayName           string
		birthday, anniversary *time.Time
	)
	err := row.Scan(&m.ID, &firstName, &lastName, &displayName, &m.Email, &m.Contact,
		&m.Suburb, &m.MemberSince, &birthday, &anniversary,
		&m.CreatedAt, &m.CreatedBy, &m.UpdatedAt, &m.UpdatedBy)
	if err != nil {
		return Member{}, err
	}
	m.Name = CanonicalName(firstName, lastName, displayName)
	m.Birthday = birthday
	m.Anniversary = anniversary
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var list []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	if err != nil {
		return Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Create(ctx context.Context, member Member) error {
	parsed := ParseName(member.Name)
	_, err := r.pool.Exec(ctx, `
        INSERT INTO members (id, first_name, last_name, display_name, email, phone, city, notes,
            birthday, anniversary, created_at, created_by, updated_at, updated_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		member.ID, parsed.FirstName, parsed.LastName, parsed.FullName,
		member.Email, member.Contact, member.Suburb, member.MemberSince,
		member.Birthday, member.Anniversary,
		member.CreatedAt, member.CreatedBy, member.UpdatedAt, member.UpdatedBy)
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, member Member) error {
	parsed := ParseName(member.Name)
	tag, err := r.pool.Exec(ctx, `
        UPDATE members SET first_name = $2, last_name = $3, display_name = $4,
            email = $5, phone = $6, city = $7, notes = $8,
            birthday = $9, anniversary = $10, updated_at = $11, updated_by = $12
        WHERE id = $1`,
		member.ID, parsed.FirstName, parsed.LastName, parsed.FullName,
		member.Email, member.Contact, member.Suburb, member.MemberSince,
		member.Birthday, member.Anniversary, member.UpdatedAt, member.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
