package classifier

import (
	"fmt"

	"doc-classifier/errors"

	"gonum.org/v1/gonum/stat"
)

// Epsilon is added to every standard deviation so that constant features
// do not divide by zero.
const Epsilon = 1e-6

// Standardizer centers and scales features with statistics fixed at training time.
type Standardizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func FitStandardizer(features [][]float64) *Standardizer {
	width := len(features[0])
	s := &Standardizer{Mean: make([]float64, width), Scale: make([]float64, width)}
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, x := range features {
			column[i] = x[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		s.Mean[j] = mean
		s.Scale[j] = std + Epsilon
	}
	return s
}

func (s *Standardizer) Apply(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", errors.ErrFeatureLength, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

func (s *Standardizer) ApplyAll(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, x := range features {
		var err error
		if out[i], err = s.Apply(x); err != nil {
			return nil, err
		}
	}
	return out, nil
}
