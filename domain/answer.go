package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// UsageMode selects how documents are cut into examples.
type UsageMode string

const (
	DocumentCategorization  UsageMode = "document"
	Pagination              UsageMode = "pagination"
	CandidateCategorization UsageMode = "candidate"
)

func (m UsageMode) Valid() bool {
	switch m {
	case DocumentCategorization, Pagination, CandidateCategorization:
		return true
	}
	return false
}

// Category names used by the pagination mode.
const (
	FirstPage    = "FirstPage"
	NotFirstPage = "NotFirstPage"
)

// PageRange is an inclusive, 1-based range of pages forming one logical document.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParsePageRanges reads "1-3,4,5-9" style declarations.
func ParsePageRanges(s string) ([]PageRange, error) {
	var ranges []PageRange
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("page range %q: %w", part, err)
		}
		end := start
		if len(bounds) == 2 {
			if end, err = strconv.Atoi(strings.TrimSpace(bounds[1])); err != nil {
				return nil, fmt.Errorf("page range %q: %w", part, err)
			}
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("page range %q: start must be >= 1 and <= end", part)
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
	}
	return ranges, nil
}

func (r PageRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Answer is the expected outcome for one input document: a category for
// document categorization, page ranges for pagination. Candidate
// categorization reads its labels from the value tree instead.
type Answer struct {
	Category string      `json:"category,omitempty"`
	Ranges   []PageRange `json:"ranges,omitempty"`
}

// Prediction is the classifier verdict for one example.
type Prediction struct {
	Category string
	Code     int
	Score    float64
	HasScore bool
}
