// Package evaluation tallies predictions into confusion matrices and derives
// agreement, precision, recall and F1 from them.
package evaluation

import (
	"encoding/json"
	"fmt"

	"doc-classifier/errors"

	"github.com/samber/lo"
)

// ConfusionMatrix is an immutable tally of expected (rows) against predicted
// (columns) codes. The positive set selects the classes counted by the micro
// averaged precision, recall and F1.
type ConfusionMatrix struct {
	labels   []string
	counts   [][]int
	rows     []int
	cols     []int
	total    int
	positive []bool
}

// Metrics are precision, recall and F1 for a class or a set of classes.
type Metrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Tally counts expected against predicted codes. Every label not named in
// negatives is positive; with no negatives, the first label (code 0) is the
// only negative one.
func Tally(labels []string, expected, predicted []int, negatives []string) (*ConfusionMatrix, error) {
	if len(expected) != len(predicted) {
		return nil, fmt.Errorf("%w: %d expected, %d predicted", errors.ErrLengthMismatch, len(expected), len(predicted))
	}
	n := len(labels)
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}
	for k := range expected {
		e, p := expected[k], predicted[k]
		if e < 0 || e >= n || p < 0 || p >= n {
			return nil, fmt.Errorf("%w: code out of range (%d, %d) for %d labels", errors.ErrInvalidOptions, e, p, n)
		}
		counts[e][p]++
	}
	if len(negatives) == 0 && n > 0 {
		negatives = labels[:1]
	}
	positive := lo.Map(labels, func(l string, _ int) bool { return !lo.Contains(negatives, l) })
	return newMatrix(labels, counts, positive), nil
}

func newMatrix(labels []string, counts [][]int, positive []bool) *ConfusionMatrix {
	m := &ConfusionMatrix{
		labels:   labels,
		counts:   counts,
		rows:     make([]int, len(labels)),
		cols:     make([]int, len(labels)),
		positive: positive,
	}
	for i, row := range counts {
		for j, c := range row {
			m.rows[i] += c
			m.cols[j] += c
			m.total += c
		}
	}
	return m
}

// Relabel returns a copy whose positive set is the given class indices.
func (m *ConfusionMatrix) Relabel(positive []int) *ConfusionMatrix {
	flags := make([]bool, len(m.labels))
	for _, i := range positive {
		if i >= 0 && i < len(flags) {
			flags[i] = true
		}
	}
	return newMatrix(m.labels, m.counts, flags)
}

func (m *ConfusionMatrix) Labels() []string   { return append([]string(nil), m.labels...) }
func (m *ConfusionMatrix) Size() int          { return len(m.labels) }
func (m *ConfusionMatrix) Count(i, j int) int { return m.counts[i][j] }
func (m *ConfusionMatrix) RowTotal(i int) int { return m.rows[i] }
func (m *ConfusionMatrix) ColTotal(j int) int { return m.cols[j] }
func (m *ConfusionMatrix) Total() int         { return m.total }

// Positive reports whether class i belongs to the positive set.
func (m *ConfusionMatrix) Positive(i int) bool { return m.positive[i] }

// Agreement is the fraction of examples on the diagonal.
func (m *ConfusionMatrix) Agreement() float64 {
	if m.total == 0 {
		return 0
	}
	diagonal := 0
	for i := range m.counts {
		diagonal += m.counts[i][i]
	}
	return float64(diagonal) / float64(m.total)
}

// Micro averages precision, recall and F1 over the positive classes.
func (m *ConfusionMatrix) Micro() Metrics {
	var tp, predicted, actual int
	for i := range m.labels {
		if !m.positive[i] {
			continue
		}
		tp += m.counts[i][i]
		predicted += m.cols[i]
		actual += m.rows[i]
	}
	return metrics(tp, predicted, actual)
}

// Class returns the metrics of class i alone.
func (m *ConfusionMatrix) Class(i int) Metrics {
	return metrics(m.counts[i][i], m.cols[i], m.rows[i])
}

func metrics(tp, predicted, actual int) Metrics {
	var out Metrics
	if predicted > 0 {
		out.Precision = float64(tp) / float64(predicted)
	}
	if actual > 0 {
		out.Recall = float64(tp) / float64(actual)
	}
	if out.Precision+out.Recall > 0 {
		out.F1 = 2 * out.Precision * out.Recall / (out.Precision + out.Recall)
	}
	return out
}

type snapshot struct {
	Labels   []string `json:"labels"`
	Counts   [][]int  `json:"counts"`
	Positive []bool   `json:"positive"`
}

func (m *ConfusionMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{Labels: m.labels, Counts: m.counts, Positive: m.positive})
}

func (m *ConfusionMatrix) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s.Counts) != len(s.Labels) || len(s.Positive) != len(s.Labels) {
		return fmt.Errorf("%w: confusion matrix shape", errors.ErrCorruptModel)
	}
	*m = *newMatrix(s.Labels, s.Counts, s.Positive)
	return nil
}
