package encoder

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"doc-classifier/corpus"
	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/mocks"
	"doc-classifier/vectorizer"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func invoice(id, text, total string) domain.Document {
	return domain.Document{
		ID:    id,
		Pages: []domain.Page{{Text: text}},
		Fields: []domain.Field{
			{Name: "Total", Value: total},
			{Name: "Vendor", Value: "ACME"},
		},
	}
}

func documentCorpus() (*corpus.MemorySource, []string, []domain.Answer) {
	docs := []domain.Document{
		invoice("1", "invoice total due", "10"),
		invoice("2", "invoice amount due", "12.5"),
		invoice("3", "receipt thank you", "red"),
		invoice("4", "receipt paid thank", "7"),
	}
	answers := []domain.Answer{{Category: "Invoice"}, {Category: "Invoice"}, {Category: "Receipt"}, {Category: "Receipt"}}
	return corpus.NewMemorySource(docs...), []string{"1", "2", "3", "4"}, answers
}

func newEncoder(t *testing.T, opts Options) *Encoder {
	enc, err := New(logs.GetLoggerFromLevel(slog.LevelDebug), opts, nil)
	require.NoError(t, err)
	return enc
}

func TestNew_InvalidOptions(t *testing.T) {
	noInput := DefaultOptions()
	noInput.Text.Enabled = false
	noInput.UseFields = false
	unknownMode := DefaultOptions()
	unknownMode.Mode = domain.UsageMode("chapters")

	tests := []struct {
		name string
		opts Options
	}{
		{name: "Unknown mode", opts: unknownMode},
		{name: "Neither text nor fields", opts: noInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(logs.GetLoggerFromLevel(slog.LevelDebug), tt.opts, nil)
			require.ErrorIs(t, err, errors.ErrInvalidOptions)
		})
	}
}

func TestExpandPageRanges(t *testing.T) {
	tests := []struct {
		name     string
		pages    int
		ranges   string
		expected []bool
	}{
		{name: "Range in the middle", pages: 5, ranges: "2-3", expected: []bool{true, false, true, false}},
		{name: "Single document", pages: 5, ranges: "1-5", expected: []bool{false, false, false, false}},
		{name: "Adjacent ranges", pages: 5, ranges: "1-2,3-5", expected: []bool{false, true, false, false}},
		{name: "Gap between ranges", pages: 5, ranges: "1,4-5", expected: []bool{true, false, true, false}},
		{name: "Range ending on the last page", pages: 3, ranges: "3", expected: []bool{false, true}},
		{name: "Single page", pages: 1, ranges: "1", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ranges, err := domain.ParsePageRanges(tt.ranges)
			req.NoError(err)
			got, err := ExpandPageRanges(tt.pages, ranges)
			req.NoError(err)
			req.Equal(tt.expected, got)
		})
	}
}

func TestExpandPageRanges_StartBeyondLastPage(t *testing.T) {
	_, err := ExpandPageRanges(2, []domain.PageRange{{Start: 3, End: 3}})
	require.ErrorIs(t, err, errors.ErrInvalidPageRange)
}

func TestAnswerMap(t *testing.T) {
	req := require.New(t)

	m, err := NewAnswerMap("OTHER", []string{"Receipt", "Invoice", "OTHER", "Invoice"})
	req.NoError(err)
	req.Equal([]string{"OTHER", "Invoice", "Receipt"}, m.Names())
	code, ok := m.Code("Receipt")
	req.True(ok)
	req.Equal(2, code)
	req.Equal("OTHER", m.Name(42))

	_, err = NewAnswerMap("OTHER", []string{"Invoice", "Invoice"})
	req.ErrorIs(err, errors.ErrTooFewCategories)
}

func TestEncoder_DocumentMode(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := documentCorpus()
	enc := newEncoder(t, DefaultOptions())

	// Given encodings computed from four invoices and receipts
	req.NoError(enc.ComputeEncodings(ctx, src, ids, answers))
	req.True(enc.AreEncodingsComputed())

	// Then every field got a vectorizer in name order with its inferred mode
	fields := enc.FieldVectorizers()
	req.Len(fields, 2)
	req.Equal("Total", fields[0].Name())
	req.Equal(vectorizer.DiscreteTerms, fields[0].Mode())
	req.Equal("Vendor", fields[1].Name())
	req.Equal(vectorizer.Exists, fields[1].Mode())
	req.Equal(enc.Vocabulary().Len()+5+1, enc.FeatureVectorLength())

	// And every training vector has the announced length
	ds, err := enc.TrainingData(ctx)
	req.NoError(err)
	req.Equal([]int{1, 1, 2, 2}, ds.Codes)
	for _, vec := range ds.Features {
		req.Len(vec, enc.FeatureVectorLength())
	}

	// And encoding a fresh document is stable across calls
	s, err := enc.NewScratch()
	req.NoError(err)
	doc := invoice("5", "invoice due", "10")
	_, first, err := enc.FeatureVectors(s, doc)
	req.NoError(err)
	_, second, err := enc.FeatureVectors(s, doc)
	req.NoError(err)
	req.Equal(first, second)
	req.Len(first, 1)
	req.Len(first[0], enc.FeatureVectorLength())
}

func TestEncoder_ClearThenComputeIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := documentCorpus()
	enc := newEncoder(t, DefaultOptions())

	req.NoError(enc.ComputeEncodings(ctx, src, ids, answers))
	terms := enc.Vocabulary().Terms()
	modes := []vectorizer.FieldMode{}
	for _, f := range enc.FieldVectorizers() {
		modes = append(modes, f.Mode())
	}

	enc.Clear()
	req.False(enc.AreEncodingsComputed())
	req.NoError(enc.ComputeEncodings(ctx, src, ids, answers))

	req.Equal(terms, enc.Vocabulary().Terms())
	for i, f := range enc.FieldVectorizers() {
		req.Equal(modes[i], f.Mode())
	}
}

func TestEncoder_NotComputed(t *testing.T) {
	req := require.New(t)
	enc := newEncoder(t, DefaultOptions())
	s, err := enc.NewScratch()
	req.NoError(err)

	_, _, err = enc.FeatureVectors(s, invoice("1", "text", "1"))
	req.ErrorIs(err, errors.ErrEncodingsNotComputed)
	_, err = enc.TrainingData(context.Background())
	req.ErrorIs(err, errors.ErrEncodingsNotComputed)
	_, err = json.Marshal(enc)
	req.ErrorIs(err, errors.ErrEncodingsNotComputed)
}

func TestEncoder_InputErrors(t *testing.T) {
	ctx := context.Background()
	src, ids, answers := documentCorpus()

	tests := []struct {
		name    string
		ids     []string
		answers []domain.Answer
		err     error
	}{
		{name: "Mismatched lengths", ids: ids, answers: answers[:2], err: errors.ErrLengthMismatch},
		{name: "Single category", ids: ids[:2], answers: answers[:2], err: errors.ErrTooFewCategories},
		{name: "No documents", ids: []string{}, answers: []domain.Answer{}, err: errors.ErrNoExamples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			enc := newEncoder(t, DefaultOptions())
			req.ErrorIs(enc.ComputeEncodings(ctx, src, tt.ids, tt.answers), tt.err)
			req.False(enc.AreEncodingsComputed())
		})
	}
}

func TestEncoder_SkipsMissingDocuments(t *testing.T) {
	req := require.New(t)
	src, ids, answers := documentCorpus()
	enc := newEncoder(t, DefaultOptions())

	ids = append(ids, "missing")
	answers = append(answers, domain.Answer{Category: "Invoice"})
	req.NoError(enc.ComputeEncodings(context.Background(), src, ids, answers))

	ds, err := enc.TrainingData(context.Background())
	req.NoError(err)
	req.Equal(4, ds.Len())
}

func TestEncoder_PaginationMode(t *testing.T) {
	req := require.New(t)
	opts := DefaultOptions()
	opts.Mode = domain.Pagination
	enc := newEncoder(t, opts)

	pages := func(texts ...string) []domain.Page {
		out := make([]domain.Page, len(texts))
		for i, text := range texts {
			out[i] = domain.Page{Text: text}
		}
		return out
	}
	src := corpus.NewMemorySource(
		domain.Document{ID: "a", Pages: pages("invoice page one", "invoice page one", "continued two", "invoice page one", "continued two")},
	)
	ranges, err := domain.ParsePageRanges("2-3")
	req.NoError(err)

	req.NoError(enc.ComputeEncodings(context.Background(), src, []string{"a"}, []domain.Answer{{Ranges: ranges}}))
	ds, err := enc.TrainingData(context.Background())
	req.NoError(err)

	req.Equal([]string{domain.NotFirstPage, domain.FirstPage}, enc.Answers().Names())
	req.Equal([]int{1, 0, 1, 0}, ds.Codes)
	req.Equal([]string{"a#page=2", "a#page=3", "a#page=4", "a#page=5"}, ds.Sources)
}

func TestEncoder_CandidateMode(t *testing.T) {
	req := require.New(t)
	opts := DefaultOptions()
	opts.Mode = domain.CandidateCategorization
	enc := newEncoder(t, opts)

	candidate := func(value, label string) domain.Field {
		f := domain.Field{Name: "Amount", Value: value, Children: []domain.Field{{Name: "Currency", Value: "EUR"}}}
		if label != "" {
			f.Children = append(f.Children, domain.Field{Name: "label", Value: label})
		}
		return f
	}
	src := corpus.NewMemorySource(domain.Document{ID: "d", Fields: []domain.Field{
		candidate("total 10", "Total"),
		candidate("tax 2", "Tax"),
		candidate("page 1", ""),
	}})

	// Given candidates without answers, the labels come from the value tree
	req.NoError(enc.ComputeEncodings(context.Background(), src, []string{"d"}, nil))
	ds, err := enc.TrainingData(context.Background())
	req.NoError(err)
	req.Equal([]int{2, 1}, ds.Codes)
	for _, f := range enc.FieldVectorizers() {
		req.NotEqual("label", f.Name())
	}

	// And a candidate with two labels is a data error naming the document and field
	bad := candidate("x", "Total")
	bad.Children = append(bad.Children, domain.Field{Name: "label", Value: "Tax"})
	src.Add(domain.Document{ID: "bad", Fields: []domain.Field{bad}})
	err = enc.ComputeEncodings(context.Background(), src, []string{"d", "bad"}, nil)
	req.ErrorIs(err, errors.ErrMultipleLabels)
	var dataErr *errors.DataError
	req.True(stderrors.As(err, &dataErr))
	req.Equal("bad", dataErr.Path)
	req.Equal("Amount", dataErr.Field)
}

func TestEncoder_CancellationMidBatch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	src := mocks.NewMockDocumentSource(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 1000
	ids := make([]string, total)
	answers := make([]domain.Answer, total)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%d", i)
		answers[i] = domain.Answer{Category: fmt.Sprintf("C%d", i%2)}
	}

	// Given a source that cancels the run after 100 documents
	var calls atomic.Int64
	src.EXPECT().Document(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (domain.Document, error) {
			if calls.Add(1) == 100 {
				cancel()
			}
			return invoice(id, "some text", "1"), nil
		}).AnyTimes()

	opts := DefaultOptions()
	opts.Workers = 4
	enc := newEncoder(t, opts)

	// When encodings are computed
	err := enc.ComputeEncodings(ctx, src, ids, answers)

	// Then dispatch stops early and nothing is committed
	req.ErrorIs(err, context.Canceled)
	req.True(errors.IsCancellation(err))
	req.False(enc.AreEncodingsComputed())
	req.Less(calls.Load(), int64(total))
}

func TestEncoder_JSONRoundTrip(t *testing.T) {
	req := require.New(t)
	src, ids, answers := documentCorpus()
	opts := DefaultOptions()
	opts.DetectLanguage = true
	enc := newEncoder(t, opts)
	req.NoError(enc.ComputeEncodings(context.Background(), src, ids, answers))

	data, err := json.Marshal(enc)
	req.NoError(err)
	restored, err := Unmarshal(logs.GetLoggerFromLevel(slog.LevelDebug), data)
	req.NoError(err)

	req.Equal(enc.FeatureVectorLength(), restored.FeatureVectorLength())
	req.Equal(enc.Answers().Names(), restored.Answers().Names())

	doc := invoice("x", "invoice thank you", "12.5")
	s, err := enc.NewScratch()
	req.NoError(err)
	_, want, err := enc.FeatureVectors(s, doc)
	req.NoError(err)
	_, got, err := restored.FeatureVectors(s, doc)
	req.NoError(err)
	req.Equal(want, got)
}
