package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/formcraft/formcraft-backend/internal/client"
	"github.com/formcraft/formcraft-backend/internal/cloze"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/reconcile"
	"github.com/formcraft/formcraft-backend/internal/session"
)

// draftFile is a form written by hand. Image paths are relative to the file.
type draftFile struct {
	Title       string          `json:"title"`
	HeaderImage string          `json:"headerImage"`
	Questions   []draftQuestion `json:"questions"`
}

type draftQuestion struct {
	Type    model.QuestionType `json:"type"`
	Content model.Content      `json:"content"`
	Image   string             `json:"image"`
	// Cloze marks blanks by their text instead of a pre-built sentence.
	Cloze *clozeDraft `json:"cloze"`
}

type clozeDraft struct {
	Sentence string   `json:"sentence"`
	Blanks   []string `json:"blanks"`
	Options  []string `json:"options"`
}

// answerFile holds the gestures to replay per question id.
type answerFile map[string]struct {
	Drops   []reconcile.DragEvent `json:"drops"`
	Choices []struct {
		Index  int    `json:"index"`
		Option string `json:"option"`
	} `json:"choices"`
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// loadDraft reads a draft file into s and returns the title and header image.
func loadDraft(path string, s *session.Session) (string, *client.File, error) {
	var d draftFile
	if err := readJSON(path, &d); err != nil {
		return "", nil, err
	}
	dir := filepath.Dir(path)

	// add every question first: adding renumbers the default titles
	base := len(s.Questions())
	for _, dq := range d.Questions {
		if _, err := s.AddQuestion(dq.Type); err != nil {
			return "", nil, err
		}
	}
	qs := s.Questions()

	for n, dq := range d.Questions {
		i := base + n
		q := qs[i]
		if dq.Content.Title == "" {
			dq.Content.Title = q.Content.Title
		}
		q.Content = dq.Content
		if dq.Cloze != nil {
			buildCloze(*dq.Cloze).Apply(&q.Content)
		}
		if err := s.SetQuestionAt(i, q); err != nil {
			return "", nil, err
		}

		if dq.Image != "" {
			f, err := readImage(filepath.Join(dir, dq.Image))
			if err != nil {
				return "", nil, err
			}
			if err := s.SetQuestionImage(i, f); err != nil {
				return "", nil, err
			}
		}
	}

	var header *client.File
	if d.HeaderImage != "" {
		f, err := readImage(filepath.Join(dir, d.HeaderImage))
		if err != nil {
			return "", nil, err
		}
		header = f
	}
	return d.Title, header, nil
}

func buildCloze(c clozeDraft) cloze.Draft {
	var d cloze.Draft
	d.SetSentence(c.Sentence)
	for _, b := range c.Blanks {
		d.AddBlankText(b)
	}
	for _, o := range c.Options {
		d.AddCustomOption(o)
	}
	return d
}

func readImage(path string) (*client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &client.File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

// replay applies recorded gestures to a sheet.
func replay(sh *session.Sheet, answers answerFile) error {
	for qid, a := range answers {
		for _, ev := range a.Drops {
			if err := sh.Drop(qid, ev); err != nil {
				return err
			}
		}
		for _, ch := range a.Choices {
			if err := sh.Choose(qid, ch.Index, ch.Option); err != nil {
				return err
			}
		}
	}
	return nil
}
