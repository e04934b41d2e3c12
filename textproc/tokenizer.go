// Package textproc turns recognized text into the terms used for bag-of-words encoding.
package textproc

import (
	"strings"
	"unicode/utf8"

	"github.com/blugelabs/bluge/analysis/tokenizer"
	"github.com/samber/lo"
)

const (
	MinTokenLength = 2
	MaxTokenLength = 500
)

// Options controls tokenization. StopPhrases are blanked out of the text
// before tokenizing.
type Options struct {
	ShingleSize int      `yaml:"shingle_size" json:"shingle_size" validate:"gte=0,lte=5"`
	StopPhrases []string `yaml:"stop_phrases" json:"stop_phrases,omitempty"`
}

// Tokenizer is not safe for concurrent use; build one per worker.
type Tokenizer struct {
	words       *tokenizer.UnicodeTokenizer
	filter      *PhraseFilter
	shingleSize int
}

func NewTokenizer(opts Options) (*Tokenizer, error) {
	filter, err := NewPhraseFilter(opts.StopPhrases)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{
		words:       tokenizer.NewUnicodeTokenizer(),
		filter:      filter,
		shingleSize: opts.ShingleSize,
	}, nil
}

// Words returns the upper-cased word tokens of text in order, dropping tokens
// shorter than MinTokenLength or longer than MaxTokenLength runes.
func (t *Tokenizer) Words(text string) []string {
	text = t.filter.Apply(strings.ToUpper(text))
	stream := t.words.Tokenize([]byte(text))
	words := make([]string, 0, len(stream))
	for _, token := range stream {
		n := utf8.RuneCount(token.Term)
		if n < MinTokenLength || n > MaxTokenLength {
			continue
		}
		words = append(words, string(token.Term))
	}
	return words
}

// Terms returns the distinct terms of text in first-seen order: every word,
// followed by contiguous word n-grams up to the configured shingle size.
func (t *Tokenizer) Terms(text string) []string {
	return lo.Uniq(Shingles(t.Words(text), t.shingleSize))
}

// Shingles appends to words every contiguous n-gram of 2..size words joined by a space.
func Shingles(words []string, size int) []string {
	out := append([]string(nil), words...)
	for n := 2; n <= size; n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}
