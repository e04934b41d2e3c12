package vectorizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"doc-classifier/textproc"

	"github.com/samber/lo"
)

// FieldMode is the discriminant of a field encoding.
type FieldMode int

const (
	// Exists encodes presence only: [exists].
	Exists FieldMode = iota
	// Numeric encodes [first numeric value, exists].
	Numeric
	// DiscreteTerms encodes presence of each distinct value seen in training, then [exists].
	DiscreteTerms
)

func (m FieldMode) String() string {
	switch m {
	case Numeric:
		return "numeric"
	case DiscreteTerms:
		return "discrete"
	default:
		return "exists"
	}
}

func (m FieldMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *FieldMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "exists":
		*m = Exists
	case "numeric":
		*m = Numeric
	case "discrete", "discreteterms":
		*m = DiscreteTerms
	default:
		return fmt.Errorf("unknown field mode %q", text)
	}
	return nil
}

// FieldOptions configures one named field. A nil Mode lets the mode be inferred.
type FieldOptions struct {
	Name     string     `yaml:"name" json:"name" validate:"required"`
	Mode     *FieldMode `yaml:"mode" json:"mode,omitempty"`
	Tokenize bool       `yaml:"tokenize" json:"tokenize,omitempty"`
	Disabled bool       `yaml:"disabled" json:"disabled,omitempty"`
}

// FieldVectorizer infers and applies the encoding of one named field.
// Observe is called once per training example, sequentially and in example
// order, so that first-seen order of the distinct values is reproducible.
// After scanning the vectorizer is read-only.
type FieldVectorizer struct {
	name     string
	mode     FieldMode
	pinned   bool
	tokenize bool
	disabled bool

	values []string
	index  map[string]int

	numericCount    int
	nonNumericCount int
	multipleCount   int
}

func NewFieldVectorizer(opts FieldOptions) *FieldVectorizer {
	f := &FieldVectorizer{
		name:     opts.Name,
		tokenize: opts.Tokenize,
		disabled: opts.Disabled,
		index:    make(map[string]int),
	}
	if opts.Mode != nil {
		f.mode = *opts.Mode
		f.pinned = true
	}
	return f
}

func (f *FieldVectorizer) Name() string     { return f.name }
func (f *FieldVectorizer) Mode() FieldMode  { return f.mode }
func (f *FieldVectorizer) Disabled() bool   { return f.disabled }
func (f *FieldVectorizer) Values() []string { return append([]string(nil), f.values...) }

// Counts returns the numeric, non-numeric and multiple-value occurrence counts.
func (f *FieldVectorizer) Counts() (numeric, nonNumeric, multiple int) {
	return f.numericCount, f.nonNumericCount, f.multipleCount
}

// Observe records the values presented for this field by one example.
func (f *FieldVectorizer) Observe(tok *textproc.Tokenizer, values []string) {
	distinct := f.normalize(tok, values)
	if len(distinct) > 1 {
		f.multipleCount++
		f.promote(DiscreteTerms)
	}
	for _, v := range distinct {
		if isNumeric(v) {
			f.numericCount++
		} else {
			f.nonNumericCount++
		}
		if _, seen := f.index[v]; seen {
			continue
		}
		f.index[v] = len(f.values)
		f.values = append(f.values, v)
		if len(f.values) < 2 {
			continue
		}
		if f.nonNumericCount > 0 {
			f.promote(DiscreteTerms)
		} else {
			f.promote(Numeric)
		}
	}
}

// promote moves the inferred mode forward. DiscreteTerms is sticky and a
// pinned mode never changes.
func (f *FieldVectorizer) promote(mode FieldMode) {
	if f.pinned || f.mode == DiscreteTerms {
		return
	}
	if mode > f.mode {
		f.mode = mode
	}
}

// LimitToTopN keeps at most n distinct values, in first-seen order.
func (f *FieldVectorizer) LimitToTopN(n int) {
	if n < 0 || len(f.values) <= n {
		return
	}
	f.values = f.values[:n]
	f.index = make(map[string]int, n)
	for i, v := range f.values {
		f.index[v] = i
	}
}

// FeatureVectorLength is the nominal length for the current mode, whether or
// not the vectorizer is disabled.
func (f *FieldVectorizer) FeatureVectorLength() int {
	switch f.mode {
	case Numeric:
		return 2
	case DiscreteTerms:
		return len(f.values) + 1
	default:
		return 1
	}
}

// EncodedLength is the number of entries Encode actually produces.
func (f *FieldVectorizer) EncodedLength() int {
	if f.disabled {
		return 0
	}
	return f.FeatureVectorLength()
}

// Encode turns the values of one example into the field's feature vector.
func (f *FieldVectorizer) Encode(tok *textproc.Tokenizer, values []string) []float64 {
	if f.disabled {
		return []float64{}
	}
	exists := 0.0
	if len(values) > 0 {
		exists = 1
	}
	switch f.mode {
	case Numeric:
		number := 0.0
		for _, v := range values {
			if n, ok := parseNumber(v); ok {
				number = n
				break
			}
		}
		return []float64{number, exists}
	case DiscreteTerms:
		vec := make([]float64, len(f.values)+1)
		for _, v := range f.normalize(tok, values) {
			if i, ok := f.index[v]; ok {
				vec[i] = 1
			}
		}
		vec[len(f.values)] = exists
		return vec
	default:
		return []float64{exists}
	}
}

// normalize upper-cases values (or splits them into words for tokenized
// fields) and removes duplicates.
func (f *FieldVectorizer) normalize(tok *textproc.Tokenizer, values []string) []string {
	if f.tokenize && tok != nil {
		var words []string
		for _, v := range values {
			words = append(words, tok.Words(v)...)
		}
		return lo.Uniq(words)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return lo.Uniq(out)
}

func isNumeric(v string) bool {
	_, ok := parseNumber(v)
	return ok
}

func parseNumber(v string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

type fieldState struct {
	Name            string    `json:"name"`
	Mode            FieldMode `json:"mode"`
	Pinned          bool      `json:"pinned,omitempty"`
	Tokenize        bool      `json:"tokenize,omitempty"`
	Disabled        bool      `json:"disabled,omitempty"`
	Values          []string  `json:"values,omitempty"`
	NumericCount    int       `json:"numeric_count"`
	NonNumericCount int       `json:"non_numeric_count"`
	MultipleCount   int       `json:"multiple_count"`
}

func (f *FieldVectorizer) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldState{
		Name:            f.name,
		Mode:            f.mode,
		Pinned:          f.pinned,
		Tokenize:        f.tokenize,
		Disabled:        f.disabled,
		Values:          f.values,
		NumericCount:    f.numericCount,
		NonNumericCount: f.nonNumericCount,
		MultipleCount:   f.multipleCount,
	})
}

func (f *FieldVectorizer) UnmarshalJSON(data []byte) error {
	var s fieldState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = FieldVectorizer{
		name:            s.Name,
		mode:            s.Mode,
		pinned:          s.Pinned,
		tokenize:        s.Tokenize,
		disabled:        s.Disabled,
		index:           make(map[string]int, len(s.Values)),
		numericCount:    s.NumericCount,
		nonNumericCount: s.NonNumericCount,
		multipleCount:   s.MultipleCount,
	}
	for _, v := range s.Values {
		f.index[v] = len(f.values)
		f.values = append(f.values, v)
	}
	return nil
}
