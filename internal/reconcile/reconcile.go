// Package reconcile derives the unassigned pool of a question from a
// respondent's answer and produces new answers when items are dropped onto
// targets. Every function is pure: inputs are never mutated and the same
// inputs always yield the same output.
package reconcile

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/formcraft/formcraft-backend/internal/model"
)

var (
	// ErrInvalidTarget means a Cloze drop target is not of the form blank_<index>.
	ErrInvalidTarget = errors.New("invalid drop target")
	// ErrIndexOutOfRange means a slot index is outside the answer's arity.
	ErrIndexOutOfRange = errors.New("slot index out of range")
	// ErrUnknownOption means a selected option is not offered by the sub-question.
	ErrUnknownOption = errors.New("unknown option")
)

const blankPrefix = "blank_"

// DragEvent is the result of a drag gesture: Active is the dragged item (an
// item id or an option value) and Over is the drop target (a category name
// or a blank target). An empty field means the gesture had no such end.
type DragEvent struct {
	Active string `json:"active"`
	Over   string `json:"over"`
}

func (e DragEvent) complete() bool { return e.Active != "" && e.Over != "" }

// BlankTarget returns the drop-target key of the i-th Cloze placeholder.
func BlankTarget(i int) string { return blankPrefix + strconv.Itoa(i) }

// ParseBlankTarget extracts the placeholder index from a blank_<index> key.
func ParseBlankTarget(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, blankPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, key)
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, key)
	}
	return i, nil
}

// UnassignedItems returns, in question order, the Categorize items whose id
// appears in no category of ans.
func UnassignedItems(q model.Question, ans model.CategorizeAnswer) []model.CategorizeItem {
	assigned := make(map[string]struct{})
	for _, ids := range ans {
		for _, id := range ids {
			assigned[id] = struct{}{}
		}
	}
	out := make([]model.CategorizeItem, 0, len(q.Content.Items))
	for _, it := range q.Content.Items {
		if _, ok := assigned[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// UnusedOptions returns, in option order, the Cloze options whose value
// appears in no slot of ans.
func UnusedOptions(q model.Question, ans model.ClozeAnswer) []string {
	used := make(map[string]struct{}, len(ans))
	for _, v := range ans {
		if v != nil {
			used[*v] = struct{}{}
		}
	}
	out := make([]string, 0, len(q.Content.Options))
	for _, opt := range q.Content.Options {
		if _, ok := used[opt]; !ok {
			out = append(out, opt)
		}
	}
	return out
}

// AssignCategory moves the dragged item into the target category. The item
// is first removed from every category, then appended to the target list. A
// nil ans is treated as empty. The returned answer shares no slices with ans.
func AssignCategory(ans model.CategorizeAnswer, ev DragEvent) model.CategorizeAnswer {
	if !ev.complete() {
		return cloneCategorize(ans)
	}
	out := make(model.CategorizeAnswer, len(ans)+1)
	for cat, ids := range ans {
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != ev.Active {
				kept = append(kept, id)
			}
		}
		out[cat] = kept
	}
	out[ev.Over] = append(out[ev.Over], ev.Active)
	return out
}

// AssignBlank places the dragged option into the placeholder named by the
// drop target, leaving every other slot untouched. A nil ans is first
// initialized to blankCount empty slots.
func AssignBlank(ans model.ClozeAnswer, blankCount int, ev DragEvent) (model.ClozeAnswer, error) {
	if ans == nil {
		ans = make(model.ClozeAnswer, blankCount)
	}
	out := slices.Clone(ans)
	if !ev.complete() {
		return out, nil
	}
	i, err := ParseBlankTarget(ev.Over)
	if err != nil {
		return out, err
	}
	if i >= len(out) {
		return out, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(out))
	}
	v := ev.Active
	out[i] = &v
	return out, nil
}

// Select records option as the choice for the sub-question at index.
func Select(q model.Question, ans model.ComprehensionAnswer, index int, option string) (model.ComprehensionAnswer, error) {
	n := len(q.Content.Questions)
	out := make(model.ComprehensionAnswer, n)
	copy(out, ans)
	if index < 0 || index >= n {
		return out, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, n)
	}
	if !slices.Contains(q.Content.Questions[index].Options, option) {
		return out, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	out[index] = &option
	return out, nil
}

// InitialAnswer returns the empty answer shape for q: every category mapped
// to an empty list, or one empty slot per placeholder or sub-question.
func InitialAnswer(q model.Question) any {
	switch q.Type {
	case model.QuestionTypeCategorize:
		out := make(model.CategorizeAnswer, len(q.Content.Categories))
		for _, c := range q.Content.Categories {
			out[c] = []string{}
		}
		return out
	case model.QuestionTypeCloze:
		return make(model.ClozeAnswer, q.BlankCount())
	case model.QuestionTypeComprehension:
		return make(model.ComprehensionAnswer, len(q.Content.Questions))
	}
	return nil
}

// ReshapeCategorize re-derives ans against the current question definition:
// unknown categories and items are dropped, an item claimed by several
// categories stays with the first in category order, and every current
// category is present.
func ReshapeCategorize(q model.Question, ans model.CategorizeAnswer) model.CategorizeAnswer {
	items := make(map[string]struct{}, len(q.Content.Items))
	for _, it := range q.Content.Items {
		items[it.ID] = struct{}{}
	}
	out := make(model.CategorizeAnswer, len(q.Content.Categories))
	owned := make(map[string]struct{})
	for _, c := range q.Content.Categories {
		kept := []string{}
		for _, id := range ans[c] {
			if _, ok := items[id]; !ok {
				continue
			}
			if _, dup := owned[id]; dup {
				continue
			}
			owned[id] = struct{}{}
			kept = append(kept, id)
		}
		out[c] = kept
	}
	return out
}

// ReshapeCloze resizes ans to the question's placeholder count and clears
// slots holding a value that is no longer an option.
func ReshapeCloze(q model.Question, ans model.ClozeAnswer) model.ClozeAnswer {
	out := make(model.ClozeAnswer, q.BlankCount())
	for i := range out {
		if i < len(ans) && ans[i] != nil && slices.Contains(q.Content.Options, *ans[i]) {
			v := *ans[i]
			out[i] = &v
		}
	}
	return out
}

// ReshapeComprehension resizes ans to the sub-question count and clears
// choices that the sub-question no longer offers.
func ReshapeComprehension(q model.Question, ans model.ComprehensionAnswer) model.ComprehensionAnswer {
	out := make(model.ComprehensionAnswer, len(q.Content.Questions))
	for i, sq := range q.Content.Questions {
		if i < len(ans) && ans[i] != nil && slices.Contains(sq.Options, *ans[i]) {
			v := *ans[i]
			out[i] = &v
		}
	}
	return out
}

// Reshape re-derives an Entry for q, decoding whatever answer e carries. An
// entry of a different type is replaced with the initial answer.
func Reshape(q model.Question, e model.Entry) (model.Entry, error) {
	var answer any
	switch q.Type {
	case model.QuestionTypeCategorize:
		a, err := e.Categorize()
		if err != nil {
			a = nil
		}
		answer = ReshapeCategorize(q, a)
	case model.QuestionTypeCloze:
		a, err := e.Cloze()
		if err != nil {
			a = nil
		}
		answer = ReshapeCloze(q, a)
	case model.QuestionTypeComprehension:
		a, err := e.Comprehension()
		if err != nil {
			a = nil
		}
		answer = ReshapeComprehension(q, a)
	default:
		return model.Entry{}, fmt.Errorf("reshape: %w: unknown type %q", model.ErrInvalidQuestion, q.Type)
	}
	return model.NewEntry(q, answer)
}

func cloneCategorize(ans model.CategorizeAnswer) model.CategorizeAnswer {
	if ans == nil {
		return model.CategorizeAnswer{}
	}
	out := make(model.CategorizeAnswer, len(ans))
	for k, v := range ans {
		out[k] = slices.Clone(v)
	}
	return out
}
