// Package encoder turns documents into fixed-length feature vectors and
// integer answer codes, according to the usage mode.
package encoder

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"doc-classifier/contract"
	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/runtime"
	"doc-classifier/textproc"
	"doc-classifier/vectorizer"
	"doc-classifier/vocabulary"

	"github.com/samber/lo"
)

// Encoder owns the vocabulary, the field vectorizers and the answer map.
// Once encodings are computed that state is read-only and the encoding
// methods may be called from several goroutines, each with its own Scratch.
type Encoder struct {
	log      *slog.Logger
	opts     Options
	progress contract.ProgressSink

	computed bool
	text     *vectorizer.TextVectorizer
	fields   []*vectorizer.FieldVectorizer
	answers  *AnswerMap
	length   int
	examples []Example
}

func New(log *slog.Logger, opts Options, progress contract.ProgressSink) (*Encoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = contract.NopProgress{}
	}
	return &Encoder{log: log, opts: opts, progress: progress}, nil
}

func (e *Encoder) Options() Options { return e.opts }

func (e *Encoder) AreEncodingsComputed() bool { return e.computed }

// Clear drops every computed state: vocabulary, field vectorizers, answer map
// and retained training examples.
func (e *Encoder) Clear() {
	e.computed = false
	e.text = nil
	e.fields = nil
	e.answers = nil
	e.length = 0
	e.examples = nil
}

func (e *Encoder) FeatureVectorLength() int { return e.length }

func (e *Encoder) Answers() *AnswerMap { return e.answers }

// Vocabulary is nil when text encoding is disabled or nothing is computed.
func (e *Encoder) Vocabulary() *vocabulary.Vocabulary {
	if e.text == nil {
		return nil
	}
	return e.text.Vocabulary()
}

func (e *Encoder) FieldVectorizers() []*vectorizer.FieldVectorizer {
	return append([]*vectorizer.FieldVectorizer(nil), e.fields...)
}

// ComputeEncodings resets the encoder, then derives the vocabulary, the field
// vectorizers and the answer map from the given corpus. On any error,
// cancellation included, the encoder is left cleared.
func (e *Encoder) ComputeEncodings(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer) error {
	e.Clear()
	examples, err := e.Load(ctx, src, ids, answers)
	if err != nil {
		return err
	}
	return e.computeFromExamples(ctx, examples)
}

func (e *Encoder) computeFromExamples(ctx context.Context, examples []Example) error {
	if len(examples) == 0 {
		return errors.ErrNoExamples
	}
	labels := lo.Map(examples, func(ex Example, _ int) string { return ex.Label })
	answerMap, err := NewAnswerMap(e.opts.negative(), labels)
	if err != nil {
		return err
	}

	var text *vectorizer.TextVectorizer
	if e.opts.Text.Enabled {
		builder := vocabulary.NewBuilder(e.log, vocabulary.Options{
			MaxFeatures: e.opts.Text.MaxFeatures,
			Tokenizer:   e.opts.Text.Tokenizer,
			Workers:     e.opts.Workers,
		})
		vocab, err := builder.Build(ctx, lo.Map(examples, func(ex Example, _ int) vocabulary.LabeledText {
			return vocabulary.LabeledText{Text: ex.Text, Category: ex.Label}
		}))
		if err != nil {
			return fmt.Errorf("build vocabulary: %w", err)
		}
		text = vectorizer.NewTextVectorizer(vocab, e.opts.Text.Pages)
		e.progress.Report(domain.Status{Message: "Vocabulary has %d terms", Indent: 1, Args: []any{vocab.Len()}})
	}

	fields, err := e.scanFields(ctx, examples)
	if err != nil {
		return err
	}

	length := text.FeatureVectorLength()
	for _, f := range fields {
		length += f.EncodedLength()
	}
	if length == 0 {
		return errors.ErrNoFeatures
	}

	e.text, e.fields, e.answers, e.length = text, fields, answerMap, length
	e.examples = examples
	e.computed = true
	e.log.Info("Encodings computed",
		"mode", e.opts.Mode,
		"examples", len(examples),
		"categories", answerMap.Len(),
		"features", length)
	return nil
}

// scanFields observes every example sequentially so that distinct values
// keep their first-seen order.
func (e *Encoder) scanFields(ctx context.Context, examples []Example) ([]*vectorizer.FieldVectorizer, error) {
	if !e.opts.UseFields && !e.opts.DetectLanguage {
		return nil, nil
	}
	names := make(map[string]struct{})
	for _, f := range e.opts.Fields {
		names[f.Name] = struct{}{}
	}
	for _, ex := range examples {
		for name := range ex.Fields {
			names[name] = struct{}{}
		}
	}
	ordered := lo.Keys(names)
	sort.Strings(ordered)

	tok, err := textproc.NewTokenizer(textproc.Options{})
	if err != nil {
		return nil, err
	}
	fields := lo.Map(ordered, func(name string, _ int) *vectorizer.FieldVectorizer {
		return vectorizer.NewFieldVectorizer(e.opts.fieldOptions(name))
	})
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, f := range fields {
			if values := ex.Fields[f.Name()]; len(values) > 0 {
				f.Observe(tok, values)
			}
		}
	}
	if e.opts.MaxDiscreteValues > 0 {
		for _, f := range fields {
			f.LimitToTopN(e.opts.MaxDiscreteValues)
		}
	}
	return fields, nil
}

// Load fetches documents in parallel and cuts them into labeled examples, in
// input order. Missing documents are logged and dropped; any other error
// aborts the batch. answers may be nil in candidate mode, where labels live
// in the value tree.
func (e *Encoder) Load(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer) ([]Example, error) {
	if answers != nil && len(answers) != len(ids) {
		return nil, fmt.Errorf("%w: %d documents, %d answers", errors.ErrLengthMismatch, len(ids), len(answers))
	}
	if answers == nil && e.opts.Mode != domain.CandidateCategorization {
		return nil, fmt.Errorf("%w: answers are required in %s mode", errors.ErrLengthMismatch, e.opts.Mode)
	}

	var counter runtime.Counter
	slots := make([][]Example, len(ids))
	err := runtime.ParallelFor(ctx, len(ids), e.opts.Workers, runtime.NoScratch,
		func(ctx context.Context, i int, _ struct{}) error {
			doc, err := src.Document(ctx, ids[i])
			if stderrors.Is(err, errors.ErrDocumentNotFound) {
				counter.IncrSkipped()
				e.log.Warn("Skipping missing document", "path", ids[i], "error", err)
				e.progress.Report(domain.Status{Message: "Skipped %s", Indent: 1, Args: []any{ids[i]}})
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", ids[i], err)
			}
			answer := &domain.Answer{}
			if answers != nil {
				answer = &answers[i]
			}
			if slots[i], err = e.extract(doc, answer); err != nil {
				return err
			}
			counter.IncrProcessed()
			e.progress.Report(domain.Status{Message: "Loading documents", Delta: 1})
			return nil
		})
	if err != nil {
		return nil, err
	}
	stats := counter.Snapshot()
	e.log.Debug("Documents loaded", "processed", stats.Processed, "skipped", stats.Skipped)
	return lo.Flatten(slots), nil
}

// Scratch holds the per-worker tokenizers.
type Scratch struct {
	text  *textproc.Tokenizer
	field *textproc.Tokenizer
}

func (e *Encoder) NewScratch() (*Scratch, error) {
	text, err := textproc.NewTokenizer(e.opts.Text.Tokenizer)
	if err != nil {
		return nil, err
	}
	field, err := textproc.NewTokenizer(textproc.Options{})
	if err != nil {
		return nil, err
	}
	return &Scratch{text: text, field: field}, nil
}

// Vectorize encodes one example: text features first, then field features
// in field-name order.
func (e *Encoder) Vectorize(s *Scratch, ex Example) ([]float64, error) {
	if !e.computed {
		return nil, errors.ErrEncodingsNotComputed
	}
	var textVec []float64
	if e.text != nil {
		var err error
		if textVec, err = e.text.Text(s.text, ex.Text); err != nil {
			return nil, err
		}
	}
	return e.assemble(s, textVec, ex.Fields)
}

func (e *Encoder) assemble(s *Scratch, textVec []float64, fields domain.FieldValues) ([]float64, error) {
	vec := make([]float64, 0, e.length)
	vec = append(vec, textVec...)
	for _, f := range e.fields {
		vec = append(vec, f.Encode(s.field, fields[f.Name()])...)
	}
	if len(vec) != e.length {
		return nil, fmt.Errorf("%w: got %d, want %d", errors.ErrFeatureLength, len(vec), e.length)
	}
	return vec, nil
}

// FeatureVectors encodes an unlabeled document: one vector per example the
// mode cuts out of it.
func (e *Encoder) FeatureVectors(s *Scratch, doc domain.Document) ([]Example, [][]float64, error) {
	if !e.computed {
		return nil, nil, errors.ErrEncodingsNotComputed
	}
	examples, err := e.extract(doc, nil)
	if err != nil {
		return nil, nil, err
	}
	var pages [][]float64
	if e.opts.Mode == domain.Pagination && e.text != nil {
		if pages, err = e.text.Pages(s.text, doc); err != nil {
			return nil, nil, err
		}
	}
	vectors := make([][]float64, len(examples))
	for i, ex := range examples {
		if pages != nil {
			vectors[i], err = e.assemble(s, pages[i], ex.Fields)
		} else {
			vectors[i], err = e.Vectorize(s, ex)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return examples, vectors, nil
}

// Dataset is an encoded, labeled batch in example order.
type Dataset struct {
	Sources  []string
	Features [][]float64
	Codes    []int
}

func (d *Dataset) Len() int { return len(d.Codes) }

// Subset returns the examples at the given indices.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Sources:  make([]string, len(indices)),
		Features: make([][]float64, len(indices)),
		Codes:    make([]int, len(indices)),
	}
	for j, i := range indices {
		out.Sources[j], out.Features[j], out.Codes[j] = d.Sources[i], d.Features[i], d.Codes[i]
	}
	return out
}

// TrainingData encodes the examples retained by ComputeEncodings.
func (e *Encoder) TrainingData(ctx context.Context) (*Dataset, error) {
	if !e.computed {
		return nil, errors.ErrEncodingsNotComputed
	}
	return e.Encode(ctx, e.examples)
}

// Encode vectorizes labeled examples in parallel. Labels missing from the
// answer map are encoded as the negative category.
func (e *Encoder) Encode(ctx context.Context, examples []Example) (*Dataset, error) {
	if !e.computed {
		return nil, errors.ErrEncodingsNotComputed
	}
	ds := &Dataset{
		Sources:  make([]string, len(examples)),
		Features: make([][]float64, len(examples)),
		Codes:    make([]int, len(examples)),
	}
	err := runtime.ParallelFor(ctx, len(examples), e.opts.Workers, e.NewScratch,
		func(_ context.Context, i int, s *Scratch) error {
			ex := examples[i]
			vec, err := e.Vectorize(s, ex)
			if err != nil {
				return fmt.Errorf("encode %s: %w", ex.Source, err)
			}
			code, ok := e.answers.Code(ex.Label)
			if !ok {
				e.log.Warn("Unknown category mapped to negative", "path", ex.Source, "category", ex.Label)
			}
			ds.Sources[i], ds.Features[i], ds.Codes[i] = ex.Source, vec, code
			return nil
		})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

type state struct {
	Options    Options                       `json:"options"`
	Vocabulary *vocabulary.Vocabulary        `json:"vocabulary,omitempty"`
	Fields     []*vectorizer.FieldVectorizer `json:"fields,omitempty"`
	Answers    *AnswerMap                    `json:"answers"`
	Length     int                           `json:"length"`
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	if !e.computed {
		return nil, errors.ErrEncodingsNotComputed
	}
	return json.Marshal(state{
		Options:    e.opts,
		Vocabulary: e.Vocabulary(),
		Fields:     e.fields,
		Answers:    e.answers,
		Length:     e.length,
	})
}

// Unmarshal restores a computed encoder. Training examples are not persisted.
func Unmarshal(log *slog.Logger, data []byte) (*Encoder, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: encoder: %v", errors.ErrCorruptModel, err)
	}
	if s.Answers == nil {
		return nil, fmt.Errorf("%w: encoder has no answer map", errors.ErrCorruptModel)
	}
	e := &Encoder{
		log:      log,
		opts:     s.Options,
		progress: contract.NopProgress{},
		computed: true,
		fields:   s.Fields,
		answers:  s.Answers,
		length:   s.Length,
	}
	if s.Options.Text.Enabled {
		e.text = vectorizer.NewTextVectorizer(s.Vocabulary, s.Options.Text.Pages)
	}
	return e, nil
}
