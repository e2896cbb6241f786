// Package client talks to the forms REST API. Failures are returned to the
// caller unmodified; nothing is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// File is an image attached to a form upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FormPayload is the body of a form create or update.
type FormPayload struct {
	Title       string
	Questions   []model.Question
	Images      []File
	HeaderImage *File
}

// QuestionImageName is the upload file name of the image of the question at
// index, which the server uses to pair the two.
func QuestionImageName(t model.QuestionType, index int) string {
	return fmt.Sprintf("question_%s_%d_image", t, index)
}

// Client is an HTTP client for the forms API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "client").Logger() }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the server's JSON reply.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// CreateForm uploads a new form with its question images.
func (c *Client) CreateForm(ctx context.Context, p FormPayload) (*model.Form, error) {
	return c.sendForm(ctx, http.MethodPost, "/api/forms", p)
}

// UpdateForm replaces the title and questions of a form.
func (c *Client) UpdateForm(ctx context.Context, id string, p FormPayload) (*model.Form, error) {
	return c.sendForm(ctx, http.MethodPut, "/api/forms/"+url.PathEscape(id), p)
}

// GetForm fetches one form.
func (c *Client) GetForm(ctx context.Context, id string) (*model.Form, error) {
	var out struct {
		Form model.Form `json:"form"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/forms/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Form, nil
}

// ListForms fetches every form, newest first.
func (c *Client) ListForms(ctx context.Context) ([]model.Form, error) {
	var out struct {
		Forms []model.Form `json:"forms"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/forms", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Forms, nil
}

// DeleteForm removes a form and its responses.
func (c *Client) DeleteForm(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/forms/"+url.PathEscape(id), nil, "", nil)
}

// FormStats fetches the number of responses a form has received.
func (c *Client) FormStats(ctx context.Context, id string) (int64, error) {
	var out struct {
		ResponseCount int64 `json:"responseCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/forms/"+url.PathEscape(id)+"/stats", nil, "", &out); err != nil {
		return 0, err
	}
	return out.ResponseCount, nil
}

// SubmitResponse submits a respondent's entries for a form.
func (c *Client) SubmitResponse(ctx context.Context, formID string, entries []model.Entry) (*model.Response, error) {
	body, err := json.Marshal(map[string]any{"formId": formID, "responses": entries})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var out struct {
		Response model.Response `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/responses", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out.Response, nil
}

// GetResponse fetches one response.
func (c *Client) GetResponse(ctx context.Context, id string) (*model.Response, error) {
	var out struct {
		Response model.Response `json:"response"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/responses/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Response, nil
}

// ListResponses fetches every response to a form, newest first.
func (c *Client) ListResponses(ctx context.Context, formID string) ([]model.Response, error) {
	var out struct {
		Responses []model.Response `json:"responses"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/responses/form/"+url.PathEscape(formID), nil, "", &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

// ExportResponses downloads the responses of a form as an xlsx workbook.
func (c *Client) ExportResponses(ctx context.Context, formID string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/responses/form/"+url.PathEscape(formID)+"/export", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// WakeUp pings the server so a cold instance starts before it is needed.
func (c *Client) WakeUp(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/wakingup", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) sendForm(ctx context.Context, method, path string, p FormPayload) (*model.Form, error) {
	body, contentType, err := encodeForm(p)
	if err != nil {
		return nil, err
	}
	var out struct {
		Form model.Form `json:"form"`
	}
	if err := c.do(ctx, method, path, body, contentType, &out); err != nil {
		return nil, err
	}
	return &out.Form, nil
}

func encodeForm(p FormPayload) (*bytes.Buffer, string, error) {
	questions, err := json.Marshal(p.Questions)
	if err != nil {
		return nil, "", fmt.Errorf("encode questions: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("title", p.Title); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("questions", string(questions)); err != nil {
		return nil, "", err
	}
	for _, f := range p.Images {
		if err := writeFile(w, "questionImages", f); err != nil {
			return nil, "", err
		}
	}
	if p.HeaderImage != nil {
		if err := writeFile(w, "headerImage", *p.HeaderImage); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field string, f File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("attach %s: %w", f.Name, err)
	}
	_, err = part.Write(f.Data)
	return err
}

// do sends a request and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return nil, err
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Fields = env.Error.Fields
	}
	return apiErr
}
