package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/response"
	"github.com/formcraft/formcraft-backend/internal/service"
	"github.com/formcraft/formcraft-backend/internal/validator"
)

const (
	formUUID     = "7f9c24e8-3b12-4fef-91e3-2b8a7bd1e0a1"
	responseUUID = "0b6f4c1e-9f57-4c43-9d8e-51a3c1f2aa10"
)

type stubForms struct {
	created *service.FormInput
	updated *service.FormInput
	form    *model.Form
	forms   []model.Form
	count   int64
	err     error
}

func (s *stubForms) Create(_ context.Context, in service.FormInput) (*model.Form, error) {
	s.created = &in
	return s.form, s.err
}

func (s *stubForms) Update(_ context.Context, _ string, in service.FormInput) (*model.Form, error) {
	s.updated = &in
	return s.form, s.err
}

func (s *stubForms) Delete(context.Context, string) error { return s.err }

func (s *stubForms) Get(context.Context, string) (*model.Form, error) { return s.form, s.err }

func (s *stubForms) List(context.Context) ([]model.Form, error) { return s.forms, s.err }

func (s *stubForms) ResponseCount(context.Context, string) (int64, error) { return s.count, s.err }

type stubResponses struct {
	submitted *model.SubmitResponseRequest
	resp      *model.Response
	list      []model.Response
	err       error
}

func (s *stubResponses) Submit(_ context.Context, req model.SubmitResponseRequest) (*model.Response, error) {
	s.submitted = &req
	return s.resp, s.err
}

func (s *stubResponses) Get(context.Context, string) (*model.Response, error) { return s.resp, s.err }

func (s *stubResponses) ListByForm(context.Context, string) ([]model.Response, error) {
	return s.list, s.err
}

type stubExporter struct {
	data []byte
	err  error
}

func (s stubExporter) Export(context.Context, string) ([]byte, error) { return s.data, s.err }

type stubFeeds struct {
	ch     chan string
	closed chan struct{}
}

func (s *stubFeeds) SubscribeFeed(context.Context, string) (*cache.Feed, error) {
	return cache.NewFeed(s.ch, func() error {
		close(s.closed)
		return nil
	}), nil
}

type testServer struct {
	forms     *stubForms
	responses *stubResponses
	exporter  *stubExporter
	feeds     *stubFeeds
	engine    *gin.Engine
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	validator.Setup()

	ts := &testServer{
		forms:     &stubForms{},
		responses: &stubResponses{},
		exporter:  &stubExporter{},
		feeds:     &stubFeeds{ch: make(chan string, 1), closed: make(chan struct{})},
	}
	log := zerolog.Nop()
	fh := NewFormHandler(ts.forms, log)
	rh := NewResponseHandler(ts.responses, ts.exporter, log)
	wh := NewWSHandler(ts.forms, ts.feeds, log, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.POST("/api/forms", fh.CreateForm)
	r.GET("/api/forms", fh.ListForms)
	r.GET("/api/forms/:id", fh.GetForm)
	r.PUT("/api/forms/:id", fh.UpdateForm)
	r.DELETE("/api/forms/:id", fh.DeleteForm)
	r.GET("/api/forms/:id/stats", fh.GetFormStats)
	r.POST("/api/responses", rh.SubmitResponse)
	r.GET("/api/responses/form/:formId", rh.ListFormResponses)
	r.GET("/api/responses/form/:formId/export", rh.ExportFormResponses)
	r.GET("/api/responses/:id", rh.GetResponse)
	r.GET("/ws/forms/:id/responses", wh.ResponseFeed)
	ts.engine = r
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorBody `json:"error"`
	Metadata response.Metadata   `json:"metadata"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
