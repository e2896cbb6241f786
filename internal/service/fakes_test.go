package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/events"
	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/repository"
)

type memForms struct {
	mu    sync.Mutex
	forms map[string]model.Form
	err   error
}

func newMemForms() *memForms { return &memForms{forms: map[string]model.Form{}} }

func (m *memForms) Create(_ context.Context, f *model.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	m.forms[f.ID] = *f
	return nil
}

func (m *memForms) GetByID(_ context.Context, id string) (*model.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (m *memForms) List(_ context.Context) ([]model.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Form, 0, len(m.forms))
	for _, f := range m.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memForms) Update(_ context.Context, f *model.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	prev, ok := m.forms[f.ID]
	if !ok {
		return repository.ErrNotFound
	}
	f.CreatedAt = prev.CreatedAt
	f.UpdatedAt = time.Now()
	m.forms[f.ID] = *f
	return nil
}

func (m *memForms) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forms[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.forms, id)
	return nil
}

func (m *memForms) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forms)
}

type memResponses struct {
	mu        sync.Mutex
	forms     *memForms
	responses []model.Response
}

func (m *memResponses) Create(ctx context.Context, r *model.Response) error {
	if _, err := m.forms.GetByID(ctx, r.FormID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, *r)
	return nil
}

func (m *memResponses) GetByID(_ context.Context, id string) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.responses {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memResponses) ListByForm(_ context.Context, formID string) ([]model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Response{}
	for i := len(m.responses) - 1; i >= 0; i-- {
		if m.responses[i].FormID == formID {
			out = append(out, m.responses[i])
		}
	}
	return out, nil
}

func (m *memResponses) CountByForm(ctx context.Context, formID string) (int64, error) {
	list, _ := m.ListByForm(ctx, formID)
	return int64(len(list)), nil
}

type memCache struct {
	mu       sync.Mutex
	forms    map[string]model.Form
	counters map[string]int64
	gets     int
}

func newMemCache() *memCache {
	return &memCache{forms: map[string]model.Form{}, counters: map[string]int64{}}
}

func (c *memCache) GetForm(_ context.Context, id string) (*model.Form, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	f, ok := c.forms[id]
	if !ok {
		return nil, cache.ErrMiss
	}
	return &f, nil
}

func (c *memCache) SetForm(_ context.Context, f *model.Form) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forms[f.ID] = *f
	return nil
}

func (c *memCache) InvalidateForm(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.forms, id)
	return nil
}

func (c *memCache) DropCounter(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, id)
	return nil
}

func (c *memCache) ResponseCount(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counters[id]
	if !ok {
		return 0, cache.ErrMiss
	}
	return n, nil
}

func (c *memCache) SeedResponseCount(_ context.Context, id string, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counters[id]; !ok {
		c.counters[id] = n
	}
	return nil
}

func (c *memCache) cached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.forms[id]
	return ok
}

// fakeUploader fails uploads whose name contains any of failOn.
type fakeUploader struct {
	mu        sync.Mutex
	failOn    []string
	uploaded  map[string]string
	destroyed []string
	seq       int
}

func newFakeUploader(failOn ...string) *fakeUploader {
	return &fakeUploader{failOn: failOn, uploaded: map[string]string{}}
}

func (u *fakeUploader) Upload(_ context.Context, name, _ string, r io.Reader) (media.Uploaded, error) {
	for _, f := range u.failOn {
		if strings.Contains(name, f) {
			return media.Uploaded{}, errors.New("image host unavailable")
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return media.Uploaded{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++
	id := name + "#" + strconv.Itoa(u.seq)
	u.uploaded[id] = string(data)
	return media.Uploaded{URL: "https://img.test/" + id, PublicID: id}, nil
}

func (u *fakeUploader) Destroy(_ context.Context, publicID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.destroyed = append(u.destroyed, publicID)
	return nil
}

func (u *fakeUploader) destroyedIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := append([]string(nil), u.destroyed...)
	sort.Strings(out)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	forms     *memForms
	responses *memResponses
	cache     *memCache
	uploader  *fakeUploader
	pub       *fakePublisher
	svc       *FormService
	resp      *ResponseService
	export    *ExportService
}

func newFixture(failOn ...string) *fixture {
	fx := &fixture{
		forms:    newMemForms(),
		cache:    newMemCache(),
		uploader: newFakeUploader(failOn...),
		pub:      &fakePublisher{},
	}
	fx.responses = &memResponses{forms: fx.forms}
	fx.svc = NewFormService(fx.forms, fx.responses, fx.cache, fx.uploader, fx.pub,
		FormOptions{MaxUploadBytes: 1 << 20, UploadConcurrency: 2}, zerolog.Nop())
	fx.resp = NewResponseService(fx.responses, fx.pub, zerolog.Nop())
	fx.export = NewExportService(fx.svc, fx.responses, zerolog.Nop())
	return fx
}

func image(name string) Upload {
	return Upload{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(len(name)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(name)), nil
		},
	}
}
