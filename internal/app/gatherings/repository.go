package gatherings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a gathering id resolves to no row.
var ErrNotFound = errors.New("gathering not found")

const createGatheringsSQL = `
CREATE TABLE IF NOT EXISTS gatherings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ,
    all_day BOOLEAN NOT NULL DEFAULT FALSE,
    recurrence JSONB,
    parent_series_id TEXT NOT NULL DEFAULT '',
    original_date TIMESTAMPTZ,
    cancelled BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL,
    updated_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_gatherings_date ON gatherings (date);
CREATE INDEX IF NOT EXISTS idx_gatherings_parent ON gatherings (parent_series_id) WHERE parent_series_id <> '';
`

// Repository is the gathering store used by the service layer.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	List(ctx context.Context) ([]Gathering, error)
	Get(ctx context.Context, id string) (Gathering, error)
	Create(ctx context.Context, g Gathering) error
	Update(ctx context.Context, g Gathering) error
	Delete(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string) error
	FindException(ctx context.Context, seriesID string, originalDate time.Time) (Gathering, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createGatheringsSQL); err != nil {
		return fmt.Errorf("ensure gatherings schema: %w", err)
	}
	return nil
}

const gatheringColumns = `id, title, description, location, date, end_date, all_day, recurrence,
    parent_series_id, original_date, cancelled, created_at, created_by, updated_at, updated_by`

func scanGathering(row pgx.Row) (Gathering, error) {
	var (
		g          Gathering
		recurrence []byte
	)
	err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Location, &g.Date, &g.EndDate,
		&g.AllDay, &recurrence, &g.ParentSeriesID, &g.OriginalDate, &g.Cancelled,
		&g.CreatedAt, &g.CreatedBy, &g.UpdatedAt, &g.UpdatedBy)
	if err != nil {
		return Gathering{}, err
	}
	if len(recurrence) > 0 {
		g.Recurrence = &Recurrence{}
		if err := json.Unmarshal(recurrence, g.Recurrence); err != nil {
			return Gathering{}, fmt.Errorf("decode recurrence: %w", err)
		}
	}
	return g, nil
}

func encodeRecurrence(rec *Recurrence) ([]byte, error) {
	if rec == nil {
		return nil, nil
	}
	return json.Marshal(rec)
}

func (r *PostgresRepository) List(ctx context.Context) ([]Gathering, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gatheringColumns+` FROM gatherings ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list gatherings: %w", err)
	}
	defer rows.Close()

	var list []Gathering
	for rows.Next() {
		g, err := scanGathering(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gathering: %w", err)
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Gathering, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+gatheringColumns+` FROM gatherings WHERE id = $1`, id)
	g, err := scanGathering(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Gathering{}, ErrNotFound
	}
	if err != nil {
		return Gathering{}, fmt.Errorf("get gathering: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Create(ctx context.Context, g Gathering) error {
	recurrence, err := encodeRecurrence(g.Recurrence)
	if err != nil {
		return fmt.Errorf("encode recurrence: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO gatherings (id, title, description, location, date, end_date, all_day, recurrence,
            parent_series_id, original_date, cancelled, created_at, created_by, updated_at, updated_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		g.ID, g.Title, g.Description, g.Location, g.Date, g.EndDate, g.AllDay, recurrence,
		g.ParentSeriesID, g.OriginalDate, g.Cancelled,
		g.CreatedAt, g.CreatedBy, g.UpdatedAt, g.UpdatedBy)
	if err != nil {
		return fmt.Errorf("create gathering: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, g Gathering) error {
	recurrence, err := encodeRecurrence(g.Recurrence)
	if err != nil {
		return fmt.Errorf("encode recurrence: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
        UPDATE gatherings SET title = $2, description = $3, location = $4, date = $5,
            end_date = $6, all_day = $7, recurrence = $8, cancelled = $9,
            updated_at = $10, updated_by = $11
        WHERE id = $1`,
		g.ID, g.Title, g.Description, g.Location, g.Date, g.EndDate, g.AllDay, recurrence,
		g.Cancelled, g.UpdatedAt, g.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update gathering: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM gatherings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete gathering: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSeries removes a series head together with every exception hanging
// off it.
func (r *PostgresRepository) DeleteSeries(ctx context.Context, seriesID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM gatherings WHERE id = $1 OR parent_series_id = $1`, seriesID)
	if err != nil {
		return fmt.Errorf("delete gathering series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindException(ctx context.Context, seriesID string, originalDate time.Time) (Gathering, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+gatheringColumns+` FROM gatherings
         WHERE parent_series_id = $1 AND original_date = $2`, seriesID, originalDate)
	g, err := scanGathering(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Gathering{}, ErrNotFound
	}
	if err != nil {
		return Gathering{}, fmt.Errorf("find gathering exception: %w", err)
	}
	return g, nil
}
