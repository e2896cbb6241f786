package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/model"
)

// Upload is an image file received with a form.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// MatchImages pairs question images with questions by filename. It returns,
// for every question, the index of its file in uploads or -1.
//
// A name of the form question_<Type>_<index>_image binds to the question at
// index when the types agree. Questions left without a file then take the
// first unbound file whose name contains their type.
func MatchImages(questions []model.Question, uploads []Upload) []int {
	match := make([]int, len(questions))
	for i := range match {
		match[i] = -1
	}
	bound := make([]bool, len(uploads))

	for fi, u := range uploads {
		t, idx, ok := parseImageName(u.Name)
		if !ok || idx >= len(questions) || match[idx] >= 0 || questions[idx].Type != t {
			continue
		}
		match[idx] = fi
		bound[fi] = true
	}

	for qi, q := range questions {
		if match[qi] >= 0 {
			continue
		}
		for fi, u := range uploads {
			if !bound[fi] && strings.Contains(u.Name, string(q.Type)) {
				match[qi] = fi
				bound[fi] = true
				break
			}
		}
	}
	return match
}

func parseImageName(name string) (model.QuestionType, int, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	rest, ok := strings.CutPrefix(name, "question_")
	if !ok {
		return "", 0, false
	}
	rest, ok = strings.CutSuffix(rest, "_image")
	if !ok {
		return "", 0, false
	}
	sep := strings.LastIndexByte(rest, '_')
	if sep < 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(rest[sep+1:])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return model.QuestionType(rest[:sep]), idx, true
}

func validateUploads(uploads []Upload, header *Upload, maxBytes int64) error {
	for _, u := range uploads {
		if err := media.Validate(u.ContentType, u.Size, maxBytes); err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
	}
	if header != nil {
		if err := media.Validate(header.ContentType, header.Size, maxBytes); err != nil {
			return fmt.Errorf("header image: %w", err)
		}
	}
	return nil
}

// uploadQuestionImages uploads the matched file of every question with at
// most limit uploads in flight. The result is parallel to questions; a
// question whose upload failed, or that has no file, gets a nil entry.
func (s *FormService) uploadQuestionImages(ctx context.Context, questions []model.Question, uploads []Upload) []*media.Uploaded {
	match := MatchImages(questions, uploads)
	out := make([]*media.Uploaded, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for qi, fi := range match {
		if fi < 0 {
			continue
		}
		g.Go(func() error {
			up, err := s.upload(gctx, uploads[fi])
			if err != nil {
				s.log.Warn().Err(err).
					Int("question", qi).
					Str("file", uploads[fi].Name).
					Msg("Question image upload failed, keeping question without image")
				return nil
			}
			out[qi] = &up
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *FormService) upload(ctx context.Context, u Upload) (media.Uploaded, error) {
	r, err := u.Open()
	if err != nil {
		return media.Uploaded{}, fmt.Errorf("open %s: %w", u.Name, err)
	}
	defer r.Close()
	return s.uploader.Upload(ctx, u.Name, u.ContentType, r)
}

// destroyImages removes images from the host. Failures are logged.
func (s *FormService) destroyImages(ctx context.Context, publicIDs []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		g.Go(func() error {
			if err := s.uploader.Destroy(gctx, id); err != nil {
				s.log.Warn().Err(err).Str("public_id", id).Msg("Image destroy failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
