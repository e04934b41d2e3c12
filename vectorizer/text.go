// Package vectorizer encodes document text and named fields as fixed-length
// numeric vectors.
package vectorizer

import (
	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/textproc"
	"doc-classifier/vocabulary"
)

// TextVectorizer produces term-presence vectors over a computed vocabulary.
type TextVectorizer struct {
	vocab *vocabulary.Vocabulary
	pages []int
}

// NewTextVectorizer restricts the text to the given 1-based pages, or keeps
// every page when pages is empty.
func NewTextVectorizer(vocab *vocabulary.Vocabulary, pages []int) *TextVectorizer {
	return &TextVectorizer{vocab: vocab, pages: pages}
}

func (v *TextVectorizer) FeatureVectorLength() int {
	if v == nil {
		return 0
	}
	return v.vocab.Len()
}

// Vocabulary returns the vocabulary the vectors are indexed by.
func (v *TextVectorizer) Vocabulary() *vocabulary.Vocabulary {
	if v == nil {
		return nil
	}
	return v.vocab
}

// Document vectorizes the selected pages of doc.
func (v *TextVectorizer) Document(tok *textproc.Tokenizer, doc domain.Document) ([]float64, error) {
	return v.Text(tok, doc.Text(v.pages))
}

// Text returns a vector whose i-th entry is 1 when vocabulary term i occurs in text.
func (v *TextVectorizer) Text(tok *textproc.Tokenizer, text string) ([]float64, error) {
	if v == nil || v.vocab == nil {
		return nil, errors.ErrVocabularyNotComputed
	}
	vec := make([]float64, v.vocab.Len())
	if len(vec) == 0 {
		return vec, nil
	}
	for _, term := range tok.Terms(text) {
		if i, ok := v.vocab.Index(term); ok {
			vec[i] = 1
		}
	}
	return vec, nil
}

// Pages returns one vector per page after the first, each built from that page alone.
func (v *TextVectorizer) Pages(tok *textproc.Tokenizer, doc domain.Document) ([][]float64, error) {
	if v == nil || v.vocab == nil {
		return nil, errors.ErrVocabularyNotComputed
	}
	if doc.PageCount() < 2 {
		return nil, nil
	}
	out := make([][]float64, 0, doc.PageCount()-1)
	for _, page := range doc.Pages[1:] {
		vec, err := v.Text(tok, page.Text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
