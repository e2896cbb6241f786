package service

import (
	"context"
	"errors"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// Sentinel errors returned by the form and response services.
var (
	ErrFormNotFound     = errors.New("form not found")
	ErrResponseNotFound = errors.New("response not found")
	ErrInvalidQuestions = errors.New("invalid questions format")
	ErrTitleRequired    = errors.New("title is required")

	// ErrInvalidQuestion wraps a question that decoded but failed validation.
	ErrInvalidQuestion = model.ErrInvalidQuestion
)

// FormStore persists forms. Implementations return repository.ErrNotFound for
// unknown ids.
type FormStore interface {
	Create(ctx context.Context, f *model.Form) error
	GetByID(ctx context.Context, id string) (*model.Form, error)
	List(ctx context.Context) ([]model.Form, error)
	Update(ctx context.Context, f *model.Form) error
	Delete(ctx context.Context, id string) error
}

// ResponseStore persists responses.
type ResponseStore interface {
	Create(ctx context.Context, resp *model.Response) error
	GetByID(ctx context.Context, id string) (*model.Response, error)
	ListByForm(ctx context.Context, formID string) ([]model.Response, error)
	CountByForm(ctx context.Context, formID string) (int64, error)
}

// FormCache caches forms and per-form response counters. Misses are
// reported as cache.ErrMiss.
type FormCache interface {
	GetForm(ctx context.Context, id string) (*model.Form, error)
	SetForm(ctx context.Context, f *model.Form) error
	InvalidateForm(ctx context.Context, id string) error
	DropCounter(ctx context.Context, id string) error
	ResponseCount(ctx context.Context, formID string) (int64, error)
	SeedResponseCount(ctx context.Context, formID string, n int64) error
}
