// Package vocabulary selects the terms used for bag-of-words text encoding.
package vocabulary

import (
	"encoding/json"
	"math"
)

// Entry is one selected term with its score and document frequency.
type Entry struct {
	Term              string  `json:"term"`
	Score             float64 `json:"score"`
	DocumentFrequency int     `json:"df"`
}

// Vocabulary is the ranked, size-bounded term list. It is immutable once built:
// the position of a term is its feature index.
type Vocabulary struct {
	entries []Entry
	index   map[string]int
}

// FromEntries builds a vocabulary from already ranked entries.
func FromEntries(entries []Entry) *Vocabulary {
	return newVocabulary(append([]Entry(nil), entries...))
}

func newVocabulary(entries []Entry) *Vocabulary {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Term] = i
	}
	return &Vocabulary{entries: entries, index: index}
}

func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// Index returns the feature index of term.
func (v *Vocabulary) Index(term string) (int, bool) {
	i, ok := v.index[term]
	return i, ok
}

// Entries returns a copy of the ranked entries.
func (v *Vocabulary) Entries() []Entry {
	return append([]Entry(nil), v.entries...)
}

// Terms returns the ranked terms.
func (v *Vocabulary) Terms() []string {
	terms := make([]string, len(v.entries))
	for i, e := range v.entries {
		terms[i] = e.Term
	}
	return terms
}

func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.entries)
}

func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*v = *newVocabulary(entries)
	return nil
}

// TermStats are the corpus-level counts of one term.
type TermStats struct {
	// AugmentedTF sums, over categories, the number of examples of the category
	// containing the term divided by the size of the category.
	AugmentedTF float64
	// DocumentFrequency counts the examples containing the term.
	DocumentFrequency int
	// CategoryFrequency counts the categories containing the term.
	CategoryFrequency int
}

// Score computes augmented_tf * harmonic_mean(idf, icf) with
// idf = ln(N/df) and icf = ln((C+0.5)/cf).
func Score(s TermStats, examples, categories int) float64 {
	if s.DocumentFrequency == 0 || s.CategoryFrequency == 0 {
		return 0
	}
	idf := math.Log(float64(examples) / float64(s.DocumentFrequency))
	icf := math.Log((float64(categories) + 0.5) / float64(s.CategoryFrequency))
	return s.AugmentedTF * harmonicMean(idf, icf)
}

func harmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}
