package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcraft/formcraft-backend/internal/model"
)

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":     data,
		"metadata": map[string]string{"request_id": "r1"},
	})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  nil,
		"error": map[string]string{"code": code, "message": msg},
	})
}

func TestCreateForm_SendsMultipart(t *testing.T) {
	q := model.NewQuestion(model.QuestionTypeCloze)
	q.Content.Sentence = "The [BLANK] sat"
	q.Content.Blanks = []string{"cat"}
	q.Content.Options = []string{"cat"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/forms", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Animals", r.FormValue("title"))
		var got []model.Question
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("questions")), &got))
		require.Len(t, got, 1)
		assert.Equal(t, model.QuestionTypeCloze, got[0].Type)

		files := r.MultipartForm.File["questionImages"]
		require.Len(t, files, 1)
		assert.Equal(t, "question_Cloze_0_image", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

		writeData(w, http.StatusCreated, map[string]any{
			"form": model.Form{ID: "f1", Title: "Animals", Questions: got},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	form, err := c.CreateForm(context.Background(), FormPayload{
		Title:     "Animals",
		Questions: []model.Question{q},
		Images:    []File{{Name: QuestionImageName(model.QuestionTypeCloze, 0), ContentType: "image/png", Data: []byte("png")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", form.ID)
	assert.Len(t, form.Questions, 1)
}

func TestGetForm_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "FORM_NOT_FOUND", "Form not found.")
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetForm(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "FORM_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "Form not found.", apiErr.Message)
}

func TestSubmitResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/responses", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body model.SubmitResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "f1", body.FormID)
		require.Len(t, body.Responses, 1)
		assert.JSONEq(t, `[null,"cat"]`, string(body.Responses[0].Answer))

		writeData(w, http.StatusCreated, map[string]any{
			"response": model.Response{ID: "r1", FormID: body.FormID, Responses: body.Responses},
		})
	}))
	defer srv.Close()

	q := model.NewQuestion(model.QuestionTypeCloze)
	q.ID = "q1"
	e, err := model.NewEntry(q, model.ClozeAnswer{nil, model.StringPtr("cat")})
	require.NoError(t, err)

	resp, err := New(srv.URL).SubmitResponse(context.Background(), "f1", []model.Entry{e})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.ID)
}

func TestListForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{
			"forms": []model.Form{{ID: "f2"}, {ID: "f1"}},
		})
	}))
	defer srv.Close()

	forms, err := New(srv.URL + "/").ListForms(context.Background())
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "f2", forms[0].ID)
}

func TestWakeUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wakingup", r.URL.Path)
		_, _ = io.WriteString(w, "Server is awake")
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL).WakeUp(context.Background()))
}

func TestServerErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).DeleteForm(context.Background(), "f1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
}
