package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// ExportSheet is the sheet name of response exports.
const ExportSheet = "Responses"

// emptyAnswer marks an unanswered slot in an export cell.
const emptyAnswer = "-"

// ExportService renders a form's responses as a spreadsheet.
type ExportService struct {
	forms     *FormService
	responses ResponseStore
	log       zerolog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(forms *FormService, responses ResponseStore, log zerolog.Logger) *ExportService {
	return &ExportService{
		forms:     forms,
		responses: responses,
		log:       log.With().Str("component", "export_service").Logger(),
	}
}

// Export builds an xlsx workbook with one row per response and one column
// per question.
func (s *ExportService) Export(ctx context.Context, formID string) ([]byte, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{"Response ID", "Submitted At"}
	for i, q := range form.Questions {
		title := q.Content.Title
		if title == "" {
			title = model.QuestionTitle(i)
		}
		header = append(header, fmt.Sprintf("%s (%s)", title, q.Type))
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(ExportSheet, 1, 1, style)
	}

	for r, resp := range responses {
		row := []interface{}{resp.ID, resp.SubmittedAt.UTC().Format(time.RFC3339)}
		for _, q := range form.Questions {
			row = append(row, AnswerText(q, findEntry(resp.Responses, q.ID)))
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write response %s: %w", resp.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Debug().Str("form_id", formID).Int("responses", len(responses)).Msg("Responses exported")
	return buf.Bytes(), nil
}

func findEntry(entries []model.Entry, questionID string) *model.Entry {
	for i := range entries {
		if entries[i].QuestionID == questionID {
			return &entries[i]
		}
	}
	return nil
}

// AnswerText renders an entry as readable text: item texts per category for
// Categorize, the placed option per blank for Cloze and the chosen option per
// sub-question for Comprehension. Undecodable answers are shown raw.
func AnswerText(q model.Question, e *model.Entry) string {
	if e == nil || len(e.Answer) == 0 {
		return ""
	}
	switch q.Type {
	case model.QuestionTypeCategorize:
		ans, err := e.Categorize()
		if err != nil {
			return string(e.Answer)
		}
		parts := make([]string, 0, len(q.Content.Categories))
		for _, c := range q.Content.Categories {
			texts := make([]string, 0, len(ans[c]))
			for _, id := range ans[c] {
				if it, ok := q.Item(id); ok {
					texts = append(texts, it.Text)
				} else {
					texts = append(texts, id)
				}
			}
			if len(texts) == 0 {
				texts = append(texts, emptyAnswer)
			}
			parts = append(parts, c+": "+strings.Join(texts, ", "))
		}
		return strings.Join(parts, "; ")

	case model.QuestionTypeCloze:
		ans, err := e.Cloze()
		if err != nil {
			return string(e.Answer)
		}
		return strings.Join(slots(ans), ", ")

	case model.QuestionTypeComprehension:
		ans, err := e.Comprehension()
		if err != nil {
			return string(e.Answer)
		}
		vals := slots(ans)
		for i := range vals {
			vals[i] = fmt.Sprintf("%d. %s", i+1, vals[i])
		}
		return strings.Join(vals, "; ")
	}
	return string(e.Answer)
}

func slots(vals []*string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			out[i] = emptyAnswer
		} else {
			out[i] = *v
		}
	}
	return out
}
