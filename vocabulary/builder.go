package vocabulary

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"doc-classifier/runtime"
	"doc-classifier/textproc"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
)

const (
	termsField    = "terms"
	categoryField = "cat."
)

// LabeledText is one training example seen by the term scorer.
type LabeledText struct {
	Text     string
	Category string
}

type Options struct {
	MaxFeatures int              `yaml:"max_features" json:"max_features" validate:"gte=0"`
	Tokenizer   textproc.Options `yaml:"tokenizer" json:"tokenizer"`
	Workers     int              `yaml:"workers" json:"-"`
}

// Builder indexes labeled texts in an in-memory bluge index, one index
// document per example with its distinct terms stored twice: once under the
// shared "terms" field and once under its category field. Dictionary counts
// then give document and per-category frequencies directly.
type Builder struct {
	log  *slog.Logger
	opts Options
}

func NewBuilder(log *slog.Logger, opts Options) *Builder {
	return &Builder{log: log, opts: opts}
}

// Build returns the top MaxFeatures terms by descending score, ties broken by
// lexical order. Nothing is kept when ctx is cancelled.
func (b *Builder) Build(ctx context.Context, texts []LabeledText) (*Vocabulary, error) {
	categories := lo.Uniq(lo.Map(texts, func(t LabeledText, _ int) string { return t.Category }))
	sort.Strings(categories)
	categoryIndex := make(map[string]int, len(categories))
	for i, c := range categories {
		categoryIndex[c] = i
	}

	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("open term index: %w", err)
	}
	defer func() { _ = writer.Close() }()

	var mu sync.Mutex
	batch := bluge.NewBatch()
	err = runtime.ParallelFor(ctx, len(texts), b.opts.Workers,
		func() (*textproc.Tokenizer, error) { return textproc.NewTokenizer(b.opts.Tokenizer) },
		func(_ context.Context, i int, tok *textproc.Tokenizer) error {
			terms := tok.Terms(texts[i].Text)
			field := categoryField + strconv.Itoa(categoryIndex[texts[i].Category])
			doc := bluge.NewDocument(strconv.Itoa(i))
			for _, term := range terms {
				doc.AddField(bluge.NewKeywordField(termsField, term))
				doc.AddField(bluge.NewKeywordField(field, term))
			}
			mu.Lock()
			batch.Update(doc.ID(), doc)
			mu.Unlock()
			return nil
		})
	if err != nil {
		return nil, err
	}
	if err := writer.Batch(batch); err != nil {
		return nil, fmt.Errorf("index terms: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open term index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	sizes := lo.CountValues(lo.Map(texts, func(t LabeledText, _ int) string { return t.Category }))
	stats := make(map[string]*TermStats)
	for i, category := range categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		counts, err := dictionary(reader, categoryField+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		for term, count := range counts {
			s, ok := stats[term]
			if !ok {
				s = &TermStats{}
				stats[term] = s
			}
			s.AugmentedTF += float64(count) / float64(sizes[category])
			s.CategoryFrequency++
		}
	}
	frequencies, err := dictionary(reader, termsField)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(stats))
	for term, s := range stats {
		s.DocumentFrequency = frequencies[term]
		entries = append(entries, Entry{
			Term:              term,
			Score:             Score(*s, len(texts), len(categories)),
			DocumentFrequency: s.DocumentFrequency,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Term < entries[j].Term
	})
	if b.opts.MaxFeatures > 0 && len(entries) > b.opts.MaxFeatures {
		entries = entries[:b.opts.MaxFeatures]
	}

	b.log.Debug("Vocabulary built",
		"examples", len(texts),
		"categories", len(categories),
		"candidates", len(stats),
		"selected", len(entries))
	return newVocabulary(entries), nil
}

// dictionary reads term -> number of documents for one field.
func dictionary(reader *bluge.Reader, field string) (map[string]int, error) {
	it, err := reader.DictionaryIterator(field, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", field, err)
	}
	defer func() { _ = it.Close() }()

	counts := make(map[string]int)
	entry, err := it.Next()
	for err == nil && entry != nil {
		counts[entry.Term()] = int(entry.Count())
		entry, err = it.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate dictionary %s: %w", field, err)
	}
	return counts, nil
}
