package handler

import (
	"context"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/service"
)

// FormService is the form logic the handlers drive.
type FormService interface {
	Create(ctx context.Context, in service.FormInput) (*model.Form, error)
	Update(ctx context.Context, id string, in service.FormInput) (*model.Form, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Form, error)
	List(ctx context.Context) ([]model.Form, error)
	ResponseCount(ctx context.Context, id string) (int64, error)
}

// ResponseService is the response logic the handlers drive.
type ResponseService interface {
	Submit(ctx context.Context, req model.SubmitResponseRequest) (*model.Response, error)
	Get(ctx context.Context, id string) (*model.Response, error)
	ListByForm(ctx context.Context, formID string) ([]model.Response, error)
}

// Exporter renders a form's responses as a spreadsheet.
type Exporter interface {
	Export(ctx context.Context, formID string) ([]byte, error)
}

// FeedSubscriber opens a form's live feed.
type FeedSubscriber interface {
	SubscribeFeed(ctx context.Context, formID string) (*cache.Feed, error)
}
