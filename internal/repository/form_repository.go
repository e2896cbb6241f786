package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("not found")

// FormRepository stores forms in PostgreSQL with the questions as a JSONB
// document.
type FormRepository struct {
	pool *pgxpool.Pool
}

// NewFormRepository creates a new FormRepository.
func NewFormRepository(pool *pgxpool.Pool) *FormRepository {
	return &FormRepository{pool: pool}
}

const formColumns = `id, title, header_image, header_image_public_id, questions, created_at, updated_at`

// Create inserts f. f.ID must already be set; timestamps are filled in.
func (r *FormRepository) Create(ctx context.Context, f *model.Form) error {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return fmt.Errorf("form id: %w", err)
	}
	questions, err := json.Marshal(f.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO forms (id, title, header_image, header_image_public_id, questions)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		id, f.Title, f.HeaderImage, f.HeaderImagePublicID, questions,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

// GetByID retrieves a form by its id.
func (r *FormRepository) GetByID(ctx context.Context, id string) (*model.Form, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := scanForm(r.pool.QueryRow(ctx,
		`SELECT `+formColumns+` FROM forms WHERE id = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// List returns every form, newest first.
func (r *FormRepository) List(ctx context.Context) ([]model.Form, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+formColumns+` FROM forms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *f)
	}
	return forms, rows.Err()
}

// Update overwrites the title, header image and questions of f.
func (r *FormRepository) Update(ctx context.Context, f *model.Form) error {
	uid, err := uuid.Parse(f.ID)
	if err != nil {
		return ErrNotFound
	}
	questions, err := json.Marshal(f.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE forms
		 SET title = $1, header_image = $2, header_image_public_id = $3, questions = $4, updated_at = NOW()
		 WHERE id = $5
		 RETURNING created_at, updated_at`,
		f.Title, f.HeaderImage, f.HeaderImagePublicID, questions, uid,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a form; its responses go with it.
func (r *FormRepository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM forms WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanForm(row pgx.Row) (*model.Form, error) {
	var (
		f         model.Form
		id        uuid.UUID
		questions []byte
	)
	if err := row.Scan(&id, &f.Title, &f.HeaderImage, &f.HeaderImagePublicID,
		&questions, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.ID = id.String()
	if err := json.Unmarshal(questions, &f.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of form %s: %w", f.ID, err)
	}
	return &f, nil
}
