package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// foreignKeyViolation is the SQLSTATE of a missing referenced row.
const foreignKeyViolation = "23503"

// ResponseRepository stores responses in PostgreSQL with the entries as a
// JSONB document.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

const responseColumns = `id, form_id, entries, submitted_at, created_at, updated_at`

// Create inserts resp. A form id that does not exist yields ErrNotFound.
func (r *ResponseRepository) Create(ctx context.Context, resp *model.Response) error {
	id, err := uuid.Parse(resp.ID)
	if err != nil {
		return fmt.Errorf("response id: %w", err)
	}
	formID, err := uuid.Parse(resp.FormID)
	if err != nil {
		return ErrNotFound
	}
	entries, err := json.Marshal(resp.Responses)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO responses (id, form_id, entries, submitted_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		id, formID, entries, resp.SubmittedAt,
	).Scan(&resp.CreatedAt, &resp.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrNotFound
	}
	return err
}

// GetByID retrieves a response by its id.
func (r *ResponseRepository) GetByID(ctx context.Context, id string) (*model.Response, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	resp, err := scanResponse(r.pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE id = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return resp, err
}

// ListByForm returns the responses of a form, newest first.
func (r *ResponseRepository) ListByForm(ctx context.Context, formID string) ([]model.Response, error) {
	uid, err := uuid.Parse(formID)
	if err != nil {
		return []model.Response{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+responseColumns+` FROM responses
		 WHERE form_id = $1
		 ORDER BY submitted_at DESC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Response{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, rows.Err()
}

// CountByForm returns the number of responses a form has received.
func (r *ResponseRepository) CountByForm(ctx context.Context, formID string) (int64, error) {
	uid, err := uuid.Parse(formID)
	if err != nil {
		return 0, nil
	}
	var n int64
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM responses WHERE form_id = $1`, uid).Scan(&n)
	return n, err
}

func scanResponse(row pgx.Row) (*model.Response, error) {
	var (
		resp    model.Response
		id      uuid.UUID
		formID  uuid.UUID
		entries []byte
	)
	if err := row.Scan(&id, &formID, &entries, &resp.SubmittedAt, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		return nil, err
	}
	resp.ID = id.String()
	resp.FormID = formID.String()
	if err := json.Unmarshal(entries, &resp.Responses); err != nil {
		return nil, fmt.Errorf("decode entries of response %s: %w", resp.ID, err)
	}
	return &resp, nil
}
