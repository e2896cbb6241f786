// Package cloze turns a free-text sentence and the substrings an author marked
// as blanks into a stored Cloze question, and back.
//
// Positions are rune offsets into the raw sentence, matching the character
// offsets a text-selection event reports. A blank's text is its canonical
// identity; its position is a hint captured at selection time that may go
// stale when the sentence is edited, in which case the blank is re-located by
// substring search.
package cloze

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// Mask is the fixed-width stand-in shown for a blank in previews.
const Mask = "_____"

// LiteralPlaceholder replaces a placeholder the author typed into the
// sentence. It has the same rune length, so selection offsets still hold.
const LiteralPlaceholder = "[blank]"

var (
	// ErrPlaceholderMismatch means a stored sentence and its blanks list disagree.
	ErrPlaceholderMismatch = errors.New("placeholder count does not match blanks")
	// ErrIndexOutOfRange is returned when removing a non-existent record.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Blank is a substring of the sentence to be replaced by a fill-in slot.
// Start < 0 marks a value-based blank located by searching for Text.
type Blank struct {
	Text  string `json:"text"`
	Start int    `json:"selectionStart"`
	End   int    `json:"selectionEnd"`
}

// ValueBlank returns a blank without a tracked position.
func ValueBlank(text string) Blank {
	return Blank{Text: text, Start: -1, End: -1}
}

func (b Blank) positioned() bool { return b.Start >= 0 && b.End > b.Start }

// Draft is the in-progress authoring state of a Cloze question.
type Draft struct {
	Sentence string   `json:"sentence"`
	Blanks   []Blank  `json:"blanks"`
	Customs  []string `json:"customs"`
}

// Result is the canonical form of a Draft.
type Result struct {
	Sentence string
	Blanks   []string
	Options  []string
}

// SetSentence replaces the raw sentence. Existing blank positions are kept as
// hints and re-validated on the next Normalize.
func (d *Draft) SetSentence(s string) { d.Sentence = s }

// SelectBlank records the selection [start,end) of the raw sentence as a
// blank. Surrounding whitespace is trimmed from the selection, which must
// contain at least one letter or digit. A selection whose trimmed text and
// start both match an existing blank is ignored. It reports whether a blank
// was added.
func (d *Draft) SelectBlank(start, end int) bool {
	raw := []rune(d.Sentence)
	if start < 0 || end > len(raw) || start >= end {
		return false
	}
	for start < end && unicode.IsSpace(raw[start]) {
		start++
	}
	for end > start && unicode.IsSpace(raw[end-1]) {
		end--
	}
	text := string(raw[start:end])
	if !hasWordRune(text) {
		return false
	}
	for _, b := range d.Blanks {
		if b.Text == text && b.Start == start {
			return false
		}
	}
	d.Blanks = append(d.Blanks, Blank{Text: text, Start: start, End: end})
	return true
}

// AddBlankText records a value-based blank.
func (d *Draft) AddBlankText(text string) bool {
	text = strings.TrimSpace(text)
	if !hasWordRune(text) {
		return false
	}
	d.Blanks = append(d.Blanks, ValueBlank(text))
	return true
}

// RemoveBlank drops the i-th blank record.
func (d *Draft) RemoveBlank(i int) error {
	if i < 0 || i >= len(d.Blanks) {
		return fmt.Errorf("blank %d: %w", i, ErrIndexOutOfRange)
	}
	d.Blanks = append(d.Blanks[:i:i], d.Blanks[i+1:]...)
	return nil
}

// AddCustomOption adds a distractor option that fills no blank.
func (d *Draft) AddCustomOption(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	d.Customs = append(d.Customs, text)
	return true
}

// RemoveCustomOption drops the i-th custom option.
func (d *Draft) RemoveCustomOption(i int) error {
	if i < 0 || i >= len(d.Customs) {
		return fmt.Errorf("custom option %d: %w", i, ErrIndexOutOfRange)
	}
	d.Customs = append(d.Customs[:i:i], d.Customs[i+1:]...)
	return nil
}

// Normalize substitutes a placeholder for every valid blank and returns the
// stored sentence, the blank texts in left-to-right order, and the options
// (blanks followed by customs). Overlapping blanks and blanks that cannot be
// located in the current sentence are left out. A placeholder typed literally
// into the sentence is stored as LiteralPlaceholder, so the stored sentence
// always holds exactly one placeholder per blank.
func (d Draft) Normalize() Result {
	raw := []rune(escape(d.Sentence))
	spans := resolve(raw, escapeBlanks(d.Blanks))

	res := Result{
		Sentence: substitute(raw, spans, model.Placeholder),
		Blanks:   make([]string, 0, len(spans)),
		Options:  make([]string, 0, len(spans)+len(d.Customs)),
	}
	for _, s := range spans {
		res.Blanks = append(res.Blanks, s.text)
	}
	res.Options = append(res.Options, res.Blanks...)
	res.Options = append(res.Options, d.Customs...)
	return res
}

// Preview renders the sentence with each valid blank masked.
func (d Draft) Preview() string {
	raw := []rune(escape(d.Sentence))
	return substitute(raw, resolve(raw, escapeBlanks(d.Blanks)), Mask)
}

// Apply writes the normalized draft into a Cloze question's content.
func (d Draft) Apply(c *model.Content) {
	res := d.Normalize()
	c.Sentence = res.Sentence
	c.Blanks = res.Blanks
	c.Options = res.Options
}

// Display renders a stored sentence for respondents, masking each placeholder.
func Display(sentence string, blanks []string) (string, error) {
	if n := strings.Count(sentence, model.Placeholder); n != len(blanks) {
		return "", fmt.Errorf("%w: %d placeholders, %d blanks", ErrPlaceholderMismatch, n, len(blanks))
	}
	return strings.ReplaceAll(sentence, model.Placeholder, Mask), nil
}

// Splice puts each blank back at its placeholder, recovering the raw sentence.
func Splice(sentence string, blanks []string) (string, error) {
	parts := strings.Split(sentence, model.Placeholder)
	if len(parts)-1 != len(blanks) {
		return "", fmt.Errorf("%w: %d placeholders, %d blanks", ErrPlaceholderMismatch, len(parts)-1, len(blanks))
	}
	var b strings.Builder
	for i, p := range parts {
		b.WriteString(p)
		if i < len(blanks) {
			b.WriteString(blanks[i])
		}
	}
	return b.String(), nil
}

// Load rebuilds an authoring draft from a stored Cloze question. Blank
// positions are recomputed from the placeholders; options that are not blanks
// become custom options.
func Load(c model.Content) (*Draft, error) {
	parts := strings.Split(c.Sentence, model.Placeholder)
	if c.Sentence == "" {
		parts = []string{""}
	}
	if len(parts)-1 != len(c.Blanks) {
		return nil, fmt.Errorf("%w: %d placeholders, %d blanks", ErrPlaceholderMismatch, len(parts)-1, len(c.Blanks))
	}

	d := &Draft{Blanks: make([]Blank, 0, len(c.Blanks))}
	var raw []rune
	for i, p := range parts {
		raw = append(raw, []rune(p)...)
		if i < len(c.Blanks) {
			text := []rune(c.Blanks[i])
			d.Blanks = append(d.Blanks, Blank{Text: c.Blanks[i], Start: len(raw), End: len(raw) + len(text)})
			raw = append(raw, text...)
		}
	}
	d.Sentence = string(raw)

	remaining := make(map[string]int, len(c.Blanks))
	for _, b := range c.Blanks {
		remaining[b]++
	}
	for _, opt := range c.Options {
		if remaining[opt] > 0 {
			remaining[opt]--
			continue
		}
		d.Customs = append(d.Customs, opt)
	}
	return d, nil
}

func escape(s string) string {
	return strings.ReplaceAll(s, model.Placeholder, LiteralPlaceholder)
}

func escapeBlanks(blanks []Blank) []Blank {
	out := make([]Blank, len(blanks))
	for i, b := range blanks {
		b.Text = escape(b.Text)
		out[i] = b
	}
	return out
}

type span struct {
	start, end int
	text       string
}

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// resolve maps blank records to non-overlapping spans of raw, ordered by
// start. Positioned blanks whose text still sits at their recorded position
// are placed first, in ascending start order, and one that overlaps an
// earlier span is dropped. The remaining blanks are located by searching for
// their text in the first free occurrence.
func resolve(raw []rune, blanks []Blank) []span {
	var positioned, byValue []Blank
	for _, b := range blanks {
		if b.Text == "" {
			continue
		}
		if b.positioned() && b.End <= len(raw) && string(raw[b.Start:b.End]) == b.Text {
			positioned = append(positioned, b)
		} else {
			byValue = append(byValue, b)
		}
	}
	sort.SliceStable(positioned, func(i, j int) bool { return positioned[i].Start < positioned[j].Start })

	var spans []span
	for _, b := range positioned {
		s := span{start: b.Start, end: b.End, text: b.Text}
		if len(spans) > 0 && spans[len(spans)-1].overlaps(s) {
			continue
		}
		spans = append(spans, s)
	}

	for _, b := range byValue {
		if s, ok := findFree(raw, []rune(b.Text), spans); ok {
			spans = append(spans, s)
			sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		}
	}
	return spans
}

func findFree(raw, needle []rune, taken []span) (span, bool) {
	for i := 0; i+len(needle) <= len(raw); i++ {
		if !runesEqual(raw[i:i+len(needle)], needle) {
			continue
		}
		s := span{start: i, end: i + len(needle), text: string(needle)}
		free := true
		for _, t := range taken {
			if t.overlaps(s) {
				free = false
				break
			}
		}
		if free {
			return s, true
		}
	}
	return span{}, false
}

// substitute replaces each span with token. Spans are in original-sentence
// coordinates; offset carries the cumulative length change so that later
// spans land in the right place of the partially rewritten sentence.
func substitute(raw []rune, spans []span, token string) string {
	out := append([]rune(nil), raw...)
	tok := []rune(token)
	offset := 0
	prevEnd := 0
	for _, s := range spans {
		start, end := s.start+offset, s.end+offset
		if s.start < prevEnd || start < 0 || end > len(out) || start >= end {
			continue
		}
		rewritten := make([]rune, 0, len(out)-(end-start)+len(tok))
		rewritten = append(rewritten, out[:start]...)
		rewritten = append(rewritten, tok...)
		rewritten = append(rewritten, out[end:]...)
		out = rewritten

		offset += len(tok) - (s.end - s.start)
		prevEnd = s.end
	}
	return string(out)
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return true
		}
	}
	return false
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
