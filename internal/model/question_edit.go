package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrOutOfRange is returned by the editing helpers for a position that does
// not exist.
var ErrOutOfRange = errors.New("position out of range")

// AddCategory appends a Categorize category. Blank and duplicate names are rejected.
func (q *Question) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty category name", ErrInvalidQuestion)
	}
	if slices.Contains(q.Content.Categories, name) {
		return fmt.Errorf("%w: duplicate category %q", ErrInvalidQuestion, name)
	}
	q.Content.Categories = append(q.Content.Categories, name)
	return nil
}

// RemoveCategory removes the category at i and clears item assignments that
// pointed to it.
func (q *Question) RemoveCategory(i int) error {
	if i < 0 || i >= len(q.Content.Categories) {
		return fmt.Errorf("category %d: %w", i, ErrOutOfRange)
	}
	name := q.Content.Categories[i]
	q.Content.Categories = slices.Delete(slices.Clone(q.Content.Categories), i, i+1)
	for j := range q.Content.Items {
		if q.Content.Items[j].Category == name {
			q.Content.Items[j].Category = ""
		}
	}
	return nil
}

// MoveCategory moves the category at from to position to.
func (q *Question) MoveCategory(from, to int) error {
	moved, err := move(q.Content.Categories, from, to)
	if err != nil {
		return fmt.Errorf("category: %w", err)
	}
	q.Content.Categories = moved
	return nil
}

// AddItem appends a draggable item with a fresh id, optionally assigned to
// an existing category, and returns it.
func (q *Question) AddItem(text, category string) (CategorizeItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return CategorizeItem{}, fmt.Errorf("%w: empty item text", ErrInvalidQuestion)
	}
	if category != "" && !slices.Contains(q.Content.Categories, category) {
		return CategorizeItem{}, fmt.Errorf("%w: unknown category %q", ErrInvalidQuestion, category)
	}
	it := CategorizeItem{ID: uuid.NewString(), Text: text, Category: category}
	q.Content.Items = append(q.Content.Items, it)
	return it, nil
}

// RemoveItem removes the item at i.
func (q *Question) RemoveItem(i int) error {
	if i < 0 || i >= len(q.Content.Items) {
		return fmt.Errorf("item %d: %w", i, ErrOutOfRange)
	}
	q.Content.Items = slices.Delete(slices.Clone(q.Content.Items), i, i+1)
	return nil
}

// MoveItem moves the item at from to position to.
func (q *Question) MoveItem(from, to int) error {
	moved, err := move(q.Content.Items, from, to)
	if err != nil {
		return fmt.Errorf("item: %w", err)
	}
	q.Content.Items = moved
	return nil
}

// AddSubQuestion appends a Comprehension sub-question. The prompt and every
// option must be non-blank and there must be at least two options.
func (q *Question) AddSubQuestion(prompt string, options []string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("%w: empty sub-question", ErrInvalidQuestion)
	}
	if len(options) < 2 {
		return fmt.Errorf("%w: sub-question needs at least 2 options", ErrInvalidQuestion)
	}
	opts := make([]string, len(options))
	for i, o := range options {
		opts[i] = strings.TrimSpace(o)
		if opts[i] == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidQuestion, i+1)
		}
	}
	q.Content.Questions = append(q.Content.Questions, SubQuestion{Question: prompt, Options: opts})
	return nil
}

// RemoveSubQuestion removes the sub-question at i.
func (q *Question) RemoveSubQuestion(i int) error {
	if i < 0 || i >= len(q.Content.Questions) {
		return fmt.Errorf("sub-question %d: %w", i, ErrOutOfRange)
	}
	q.Content.Questions = slices.Delete(slices.Clone(q.Content.Questions), i, i+1)
	return nil
}

// MoveSubQuestion moves the sub-question at from to position to.
func (q *Question) MoveSubQuestion(from, to int) error {
	moved, err := move(q.Content.Questions, from, to)
	if err != nil {
		return fmt.Errorf("sub-question: %w", err)
	}
	q.Content.Questions = moved
	return nil
}

// move returns a copy of s with the element at from relocated to to.
func move[T any](s []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) {
		return nil, fmt.Errorf("move %d -> %d: %w", from, to, ErrOutOfRange)
	}
	out := slices.Clone(s)
	v := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, v), nil
}
