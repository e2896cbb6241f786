package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcraft/formcraft-backend/internal/model"
)

func categorizeQuestion() model.Question {
	q := model.NewQuestion(model.QuestionTypeCategorize)
	q.ID = "q1"
	q.Content.Categories = []string{"Fruit", "Veg"}
	q.Content.Items = []model.CategorizeItem{
		{ID: "i1", Text: "Apple"},
		{ID: "i2", Text: "Carrot"},
		{ID: "i3", Text: "Pear"},
	}
	return q
}

func clozeQuestion() model.Question {
	q := model.NewQuestion(model.QuestionTypeCloze)
	q.ID = "q2"
	q.Content.Sentence = "The [BLANK] sat on the [BLANK]"
	q.Content.Blanks = []string{"cat", "mat"}
	q.Content.Options = []string{"cat", "mat", "optA"}
	return q
}

func comprehensionQuestion() model.Question {
	q := model.NewQuestion(model.QuestionTypeComprehension)
	q.ID = "q3"
	q.Content.Passage = "Bees make honey."
	q.Content.Questions = []model.SubQuestion{
		{Question: "Who makes honey?", Options: []string{"Bees", "Ants"}},
		{Question: "What do bees make?", Options: []string{"Honey", "Silk"}},
	}
	return q
}

func TestCategorize_SingleItemFlow(t *testing.T) {
	q := model.NewQuestion(model.QuestionTypeCategorize)
	q.Content.Categories = []string{"Fruit", "Veg"}
	q.Content.Items = []model.CategorizeItem{{ID: "i1", Text: "Apple"}}

	ans := model.CategorizeAnswer{}
	assert.Equal(t, []model.CategorizeItem{{ID: "i1", Text: "Apple"}}, UnassignedItems(q, ans))

	next := AssignCategory(ans, DragEvent{Active: "i1", Over: "Fruit"})
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {"i1"}}, next)
	assert.Empty(t, UnassignedItems(q, next))
	assert.Empty(t, ans, "input must not be mutated")
}

func TestAssignCategory_SingleOwner(t *testing.T) {
	ans := model.CategorizeAnswer{"Fruit": {"i1", "i2"}, "Veg": {"i3"}}

	next := AssignCategory(ans, DragEvent{Active: "i1", Over: "Veg"})
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {"i2"}, "Veg": {"i3", "i1"}}, next)
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {"i1", "i2"}, "Veg": {"i3"}}, ans)

	owners := 0
	for _, ids := range next {
		for _, id := range ids {
			if id == "i1" {
				owners++
			}
		}
	}
	assert.Equal(t, 1, owners)
}

func TestAssignCategory_SameCategoryMovesToEnd(t *testing.T) {
	ans := model.CategorizeAnswer{"Fruit": {"i1", "i2"}}
	next := AssignCategory(ans, DragEvent{Active: "i1", Over: "Fruit"})
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {"i2", "i1"}}, next)
}

func TestAssignCategory_IncompleteEventIsNoop(t *testing.T) {
	ans := model.CategorizeAnswer{"Fruit": {"i1"}}
	for _, ev := range []DragEvent{{Active: "i2"}, {Over: "Fruit"}, {}} {
		next := AssignCategory(ans, ev)
		assert.Equal(t, ans, next)
	}
	assert.Equal(t, model.CategorizeAnswer{}, AssignCategory(nil, DragEvent{}))
}

func TestUnassignedItems_DisjointFromAssigned(t *testing.T) {
	q := categorizeQuestion()
	ans := model.CategorizeAnswer{"Fruit": {"i1", "i3"}}

	unassigned := UnassignedItems(q, ans)
	assert.Equal(t, []model.CategorizeItem{{ID: "i2", Text: "Carrot"}}, unassigned)
	for _, it := range unassigned {
		assert.NotContains(t, ans["Fruit"], it.ID)
	}
	assert.Equal(t, unassigned, UnassignedItems(q, ans))
}

func TestAssignBlank_OverwritesOnlyTarget(t *testing.T) {
	ans := model.ClozeAnswer{nil, nil}

	next, err := AssignBlank(ans, 2, DragEvent{Active: "optA", Over: "blank_1"})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Nil(t, next[0])
	require.NotNil(t, next[1])
	assert.Equal(t, "optA", *next[1])
	assert.Nil(t, ans[1], "input must not be mutated")

	again, err := AssignBlank(next, 2, DragEvent{Active: "cat", Over: "blank_0"})
	require.NoError(t, err)
	assert.Equal(t, "cat", *again[0])
	assert.Same(t, next[1], again[1])
}

func TestAssignBlank_NilAnswerInitialized(t *testing.T) {
	next, err := AssignBlank(nil, 3, DragEvent{Active: "mat", Over: "blank_2"})
	require.NoError(t, err)
	assert.Equal(t, model.ClozeAnswer{nil, nil, model.StringPtr("mat")}, next)
}

func TestAssignBlank_Errors(t *testing.T) {
	ans := model.ClozeAnswer{nil, nil}

	_, err := AssignBlank(ans, 2, DragEvent{Active: "cat", Over: "blank_5"})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = AssignBlank(ans, 2, DragEvent{Active: "cat", Over: "Fruit"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	next, err := AssignBlank(ans, 2, DragEvent{Active: "cat"})
	require.NoError(t, err)
	assert.Equal(t, ans, next)
}

func TestUnusedOptions(t *testing.T) {
	q := clozeQuestion()
	assert.Equal(t, []string{"cat", "mat", "optA"}, UnusedOptions(q, nil))
	assert.Equal(t, []string{"cat", "mat"}, UnusedOptions(q, model.ClozeAnswer{nil, model.StringPtr("optA")}))
}

func TestBlankTarget(t *testing.T) {
	assert.Equal(t, "blank_3", BlankTarget(3))
	i, err := ParseBlankTarget(BlankTarget(3))
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	for _, bad := range []string{"blank_", "blank_-1", "blank_x", "3"} {
		_, err := ParseBlankTarget(bad)
		assert.ErrorIs(t, err, ErrInvalidTarget, bad)
	}
}

func TestSelect(t *testing.T) {
	q := comprehensionQuestion()

	next, err := Select(q, nil, 1, "Honey")
	require.NoError(t, err)
	assert.Equal(t, model.ComprehensionAnswer{nil, model.StringPtr("Honey")}, next)

	_, err = Select(q, next, 2, "Bees")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = Select(q, next, 0, "Wasps")
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestInitialAnswer(t *testing.T) {
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {}, "Veg": {}}, InitialAnswer(categorizeQuestion()))
	assert.Equal(t, model.ClozeAnswer{nil, nil}, InitialAnswer(clozeQuestion()))
	assert.Equal(t, model.ComprehensionAnswer{nil, nil}, InitialAnswer(comprehensionQuestion()))
}

func TestReshapeCategorize(t *testing.T) {
	q := categorizeQuestion()
	q.Content.Categories = []string{"Fruit"}
	q.Content.Items = q.Content.Items[:2]

	ans := model.CategorizeAnswer{"Fruit": {"i1", "i3"}, "Veg": {"i2"}}
	assert.Equal(t, model.CategorizeAnswer{"Fruit": {"i1"}}, ReshapeCategorize(q, ans))
}

func TestReshapeCloze_FixesArity(t *testing.T) {
	q := clozeQuestion()
	ans := model.ClozeAnswer{model.StringPtr("cat"), model.StringPtr("gone"), model.StringPtr("mat")}

	got := ReshapeCloze(q, ans)
	assert.Equal(t, model.ClozeAnswer{model.StringPtr("cat"), nil}, got)

	q.Content.Sentence += " [BLANK]"
	q.Content.Blanks = append(q.Content.Blanks, "optA")
	assert.Len(t, ReshapeCloze(q, got), 3)
}

func TestReshapeComprehension(t *testing.T) {
	q := comprehensionQuestion()
	ans := model.ComprehensionAnswer{model.StringPtr("Wasps")}
	assert.Equal(t, model.ComprehensionAnswer{nil, nil}, ReshapeComprehension(q, ans))
}

func TestReshape_EntryOfOtherTypeStartsOver(t *testing.T) {
	q := clozeQuestion()
	stale, err := model.NewEntry(categorizeQuestion(), model.CategorizeAnswer{"Fruit": {"i1"}})
	require.NoError(t, err)

	e, err := Reshape(q, stale)
	require.NoError(t, err)
	assert.Equal(t, q.ID, e.QuestionID)
	assert.Equal(t, model.QuestionTypeCloze, e.QuestionType)
	assert.JSONEq(t, `[null,null]`, string(e.Answer))
}

func TestDerivationsAreIdempotent(t *testing.T) {
	q := categorizeQuestion()
	ans := model.CategorizeAnswer{"Veg": {"i2"}}
	ev := DragEvent{Active: "i1", Over: "Fruit"}

	assert.Equal(t, AssignCategory(ans, ev), AssignCategory(ans, ev))
	assert.Equal(t, ReshapeCategorize(q, ans), ReshapeCategorize(q, ReshapeCategorize(q, ans)))
}
