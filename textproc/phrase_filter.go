package textproc

import (
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
)

// PhraseFilter blanks configured phrases (headers, footers, boilerplate) out
// of upper-cased text. A nil filter leaves text unchanged.
type PhraseFilter struct {
	matcher *goahocorasick.Machine
}

// NewPhraseFilter builds the automaton over the upper-cased phrases.
// It returns a nil filter when there is nothing to match.
func NewPhraseFilter(phrases []string) (*PhraseFilter, error) {
	patterns := make([][]rune, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		patterns = append(patterns, []rune(strings.ToUpper(p)))
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &PhraseFilter{matcher: m}, nil
}

// Apply replaces every matched phrase with spaces so word boundaries survive.
func (f *PhraseFilter) Apply(text string) string {
	if f == nil || text == "" {
		return text
	}
	runes := []rune(text)
	spans := f.matcher.MultiPatternSearch(runes, false)
	if len(spans) == 0 {
		return text
	}
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		for i := start; i < end; i++ {
			runes[i] = ' '
		}
	}
	return string(runes)
}
