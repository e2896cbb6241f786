package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/events"
	ws "github.com/formcraft/formcraft-backend/internal/websocket"
)

// RetryDelay is the pause before a failed event is handed back for redelivery.
const RetryDelay = 5 * time.Second

// Subscriber hands out the messages of the events topic.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// FeedCache is the Redis side of the feed: counters, cache eviction and the
// per-form pub/sub channel.
type FeedCache interface {
	IncrResponseCountOnce(ctx context.Context, formID, eventID string) (int64, error)
	SeedResponseCountOnce(ctx context.Context, formID, eventID string, n int64) (int64, error)
	InvalidateForm(ctx context.Context, id string) error
	PublishFeed(ctx context.Context, formID string, payload []byte) error
}

// ResponseCounter counts stored responses.
type ResponseCounter interface {
	CountByForm(ctx context.Context, formID string) (int64, error)
}

// ResponseFeedWorker consumes lifecycle events. Submissions bump the form's
// response counter and are relayed to the form's live feed; form updates and
// deletions evict the cached form.
type ResponseFeedWorker struct {
	sub       Subscriber
	cache     FeedCache
	responses ResponseCounter
	log       zerolog.Logger
	retry     time.Duration
}

// NewResponseFeedWorker creates a new ResponseFeedWorker.
func NewResponseFeedWorker(sub Subscriber, c FeedCache, responses ResponseCounter, log zerolog.Logger) *ResponseFeedWorker {
	return &ResponseFeedWorker{
		sub:       sub,
		cache:     c,
		responses: responses,
		log:       log.With().Str("component", config.WorkerKey.ResponseFeedHandler).Logger(),
		retry:     RetryDelay,
	}
}

// Start consumes events until ctx is done. Call in a goroutine.
func (w *ResponseFeedWorker) Start(ctx context.Context) {
	msgs, err := w.sub.Subscribe(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Subscribe failed, worker not started")
		return
	}
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.log.Info().Msg("Subscription closed, worker stopped")
				return
			}
			w.process(ctx, msg)
		}
	}
}

func (w *ResponseFeedWorker) process(ctx context.Context, msg *message.Message) {
	e, err := events.Decode(msg)
	if err != nil {
		// undecodable messages would never succeed
		w.log.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed event")
		msg.Ack()
		return
	}

	if err := w.Handle(ctx, e); err != nil {
		w.log.Error().Err(err).
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Str("form_id", e.FormID).
			Dur("retry_in", w.retry).
			Msg("Event handling failed")
		select {
		case <-ctx.Done():
		case <-time.After(w.retry):
		}
		msg.Nack()
		return
	}
	msg.Ack()
}

// Handle applies one event.
func (w *ResponseFeedWorker) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.TypeResponseSubmitted:
		return w.relaySubmission(ctx, e)
	case events.TypeFormUpdated, events.TypeFormDeleted:
		if err := w.cache.InvalidateForm(ctx, e.FormID); err != nil {
			return fmt.Errorf("evict form: %w", err)
		}
		return nil
	default:
		w.log.Debug().Str("event_type", string(e.Type)).Str("form_id", e.FormID).Msg("Ignoring event")
		return nil
	}
}

func (w *ResponseFeedWorker) relaySubmission(ctx context.Context, e events.Event) error {
	n, err := w.count(ctx, e)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ws.ResponseMessage{
		Event:         ws.EventResponse,
		FormID:        e.FormID,
		ResponseID:    e.ResponseID,
		ResponseCount: n,
		SubmittedAt:   e.OccurredAt,
	})
	if err != nil {
		return err
	}
	if err := w.cache.PublishFeed(ctx, e.FormID, payload); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}

	w.log.Debug().Str("form_id", e.FormID).Int64("response_count", n).Msg("Submission relayed")
	return nil
}

// count bumps the form's counter once per event, so a redelivered event
// reports the count without bumping it again. A missing counter is seeded
// from the store, which already holds the new response.
func (w *ResponseFeedWorker) count(ctx context.Context, e events.Event) (int64, error) {
	n, err := w.cache.IncrResponseCountOnce(ctx, e.FormID, e.ID)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return 0, fmt.Errorf("bump counter: %w", err)
	}

	stored, err := w.responses.CountByForm(ctx, e.FormID)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	n, err = w.cache.SeedResponseCountOnce(ctx, e.FormID, e.ID, stored)
	if err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}
	return n, nil
}
