package encoder

import (
	"encoding/json"
	"fmt"
	"sort"

	"doc-classifier/domain"
	"doc-classifier/errors"

	"github.com/samber/lo"
)

// DefaultNegativeCategory is reserved at code 0 unless configured otherwise.
const DefaultNegativeCategory = "OTHER"

// AnswerMap is the bidirectional category name <-> code mapping. Code 0 is
// the negative category; the other categories follow in sorted order.
type AnswerMap struct {
	names []string
	codes map[string]int
}

// NewAnswerMap maps the observed labels. At least two distinct labels must
// have been observed.
func NewAnswerMap(negative string, labels []string) (*AnswerMap, error) {
	observed := lo.Uniq(lo.Filter(labels, func(l string, _ int) bool { return l != "" }))
	if len(observed) < 2 {
		return nil, fmt.Errorf("%w: observed %d", errors.ErrTooFewCategories, len(observed))
	}
	others := lo.Without(observed, negative)
	sort.Strings(others)
	return newAnswerMap(append([]string{negative}, others...)), nil
}

func newAnswerMap(names []string) *AnswerMap {
	codes := make(map[string]int, len(names))
	for i, n := range names {
		codes[n] = i
	}
	return &AnswerMap{names: names, codes: codes}
}

func (m *AnswerMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Code returns the code of name.
func (m *AnswerMap) Code(name string) (int, bool) {
	c, ok := m.codes[name]
	return c, ok
}

// Name returns the category of code, or the negative category when code is unknown.
func (m *AnswerMap) Name(code int) string {
	if code < 0 || code >= len(m.names) {
		return m.names[0]
	}
	return m.names[code]
}

func (m *AnswerMap) Names() []string {
	return append([]string(nil), m.names...)
}

func (m *AnswerMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.names)
}

func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*m = *newAnswerMap(names)
	return nil
}

// ExpandPageRanges turns declared document boundaries into one label per
// page after the first: element i is true when page i+2 starts a new
// document. Every page defaults to false; each range marks its start page and
// the page following its end.
func ExpandPageRanges(pageCount int, ranges []domain.PageRange) ([]bool, error) {
	if pageCount < 2 {
		return nil, nil
	}
	firsts := make([]bool, pageCount+2)
	for _, r := range ranges {
		if r.Start < 1 || r.End < r.Start || r.Start > pageCount {
			return nil, fmt.Errorf("%w: %s for %d pages", errors.ErrInvalidPageRange, r, pageCount)
		}
		firsts[r.Start] = true
		if r.End+1 <= pageCount {
			firsts[r.End+1] = true
		}
	}
	return firsts[2 : pageCount+1], nil
}

func pageLabel(first bool) string {
	if first {
		return domain.FirstPage
	}
	return domain.NotFirstPage
}
