package vectorizer

import (
	"encoding/json"
	"testing"

	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/textproc"
	"doc-classifier/vocabulary"

	"github.com/stretchr/testify/require"
)

func newTokenizer(t *testing.T) *textproc.Tokenizer {
	tok, err := textproc.NewTokenizer(textproc.Options{})
	require.NoError(t, err)
	return tok
}

func observe(f *FieldVectorizer, tok *textproc.Tokenizer, examples ...[]string) *FieldVectorizer {
	for _, values := range examples {
		f.Observe(tok, values)
	}
	return f
}

func TestFieldVectorizer_ModeInference(t *testing.T) {
	tok := newTokenizer(t)

	tests := []struct {
		name     string
		examples [][]string
		mode     FieldMode
		length   int
	}{
		{
			name:     "Two numeric values give numeric",
			examples: [][]string{{"3"}, {"4.5"}},
			mode:     Numeric,
			length:   2,
		},
		{
			name:     "Numeric then word gives discrete terms",
			examples: [][]string{{"3"}, {"red"}},
			mode:     DiscreteTerms,
			length:   3,
		},
		{
			name:     "Same value every time stays exists",
			examples: [][]string{{"ACME"}, {"acme"}, {"Acme"}},
			mode:     Exists,
			length:   1,
		},
		{
			name:     "Several values in one example force discrete terms",
			examples: [][]string{{"1", "2"}},
			mode:     DiscreteTerms,
			length:   3,
		},
		{
			name:     "Discrete terms is sticky",
			examples: [][]string{{"A"}, {"B"}, {"1"}, {"2"}},
			mode:     DiscreteTerms,
			length:   5,
		},
		{
			name:     "NaN is not numeric",
			examples: [][]string{{"1"}, {"NaN"}},
			mode:     DiscreteTerms,
			length:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := observe(NewFieldVectorizer(FieldOptions{Name: "F"}), tok, tt.examples...)
			req.Equal(tt.mode, f.Mode())
			req.Equal(tt.length, f.FeatureVectorLength())
		})
	}
}

func TestFieldVectorizer_Encode(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)

	// Given one field of each mode
	exists := observe(NewFieldVectorizer(FieldOptions{Name: "E"}), tok, []string{"x"})
	numeric := observe(NewFieldVectorizer(FieldOptions{Name: "N"}), tok, []string{"3"}, []string{"4.5"})
	discrete := observe(NewFieldVectorizer(FieldOptions{Name: "D"}), tok, []string{"red"}, []string{"blue"})

	// Then each encodes to its documented layout
	req.Equal([]float64{1}, exists.Encode(tok, []string{"y"}))
	req.Equal([]float64{0}, exists.Encode(tok, nil))
	req.Equal([]float64{12.5, 1}, numeric.Encode(tok, []string{"n/a", "12.5"}))
	req.Equal([]float64{0, 1}, numeric.Encode(tok, []string{"n/a"}))
	req.Equal([]float64{0, 0}, numeric.Encode(tok, nil))
	req.Equal([]float64{0, 1, 1}, discrete.Encode(tok, []string{"Blue"}))
	req.Equal([]float64{0, 0, 1}, discrete.Encode(tok, []string{"green"}))
	req.Equal([]float64{0, 0, 0}, discrete.Encode(tok, nil))
}

func TestFieldVectorizer_PinnedAndDisabled(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)
	mode := Numeric

	// Given a field pinned to numeric that sees words
	pinned := observe(NewFieldVectorizer(FieldOptions{Name: "P", Mode: &mode}), tok, []string{"a"}, []string{"b"})
	req.Equal(Numeric, pinned.Mode())

	// And a disabled discrete field
	disabled := observe(NewFieldVectorizer(FieldOptions{Name: "D", Disabled: true}), tok, []string{"a"}, []string{"b"})

	// Then the disabled field keeps its nominal length but encodes nothing
	req.Equal(3, disabled.FeatureVectorLength())
	req.Zero(disabled.EncodedLength())
	req.Empty(disabled.Encode(tok, []string{"a"}))
}

func TestFieldVectorizer_TokenizedValues(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)

	f := observe(NewFieldVectorizer(FieldOptions{Name: "Address", Tokenize: true}), tok,
		[]string{"12 Main Street"}, []string{"Main Road"})

	req.Equal(DiscreteTerms, f.Mode())
	req.Equal([]string{"12", "MAIN", "STREET", "ROAD"}, f.Values())
	req.Equal([]float64{0, 1, 0, 1, 1}, f.Encode(tok, []string{"main road"}))
}

func TestFieldVectorizer_LimitToTopN(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)

	f := observe(NewFieldVectorizer(FieldOptions{Name: "F"}), tok, []string{"c"}, []string{"a"}, []string{"b"})
	f.LimitToTopN(2)

	req.Equal([]string{"C", "A"}, f.Values())
	req.Equal(3, f.FeatureVectorLength())
	req.Equal([]float64{0, 0, 1}, f.Encode(tok, []string{"b"}))
}

func TestFieldVectorizer_JSONRoundTrip(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)
	f := observe(NewFieldVectorizer(FieldOptions{Name: "F"}), tok, []string{"x"}, []string{"y"})

	data, err := json.Marshal(f)
	req.NoError(err)
	var restored FieldVectorizer
	req.NoError(json.Unmarshal(data, &restored))

	req.Equal(f.Mode(), restored.Mode())
	req.Equal(f.Values(), restored.Values())
	req.Equal(f.Encode(tok, []string{"y"}), restored.Encode(tok, []string{"y"}))
}

func TestTextVectorizer(t *testing.T) {
	req := require.New(t)
	tok := newTokenizer(t)
	vocab := vocabulary.FromEntries([]vocabulary.Entry{{Term: "TOTAL"}, {Term: "INVOICE"}, {Term: "RECEIPT"}})
	doc := domain.Document{Pages: []domain.Page{
		{Text: "Invoice"},
		{Text: "total total"},
		{Text: "receipt"},
	}}

	tests := []struct {
		name     string
		pages    []int
		expected []float64
	}{
		{name: "Whole document", expected: []float64{1, 1, 1}},
		{name: "Page subset", pages: []int{2}, expected: []float64{1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := NewTextVectorizer(vocab, tt.pages).Document(tok, doc)
			req.NoError(err)
			req.Equal(tt.expected, vec)
		})
	}

	pages, err := NewTextVectorizer(vocab, nil).Pages(tok, doc)
	req.NoError(err)
	req.Equal([][]float64{{1, 0, 0}, {0, 0, 1}}, pages)
}

func TestTextVectorizer_VocabularyNotComputed(t *testing.T) {
	_, err := NewTextVectorizer(nil, nil).Text(newTokenizer(t), "anything")
	require.ErrorIs(t, err, errors.ErrVocabularyNotComputed)
}
