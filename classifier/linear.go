package classifier

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// FitResult tells whether the solver met its stopping tolerance.
type FitResult int

const (
	Converged FitResult = iota
	Diverged
)

func (r FitResult) String() string {
	if r == Converged {
		return "converged"
	}
	return "diverged"
}

// linearModel is a binary decision function w.x + bias.
type linearModel struct {
	W    []float64 `json:"w"`
	Bias float64   `json:"bias"`
}

func (m *linearModel) decision(x []float64) float64 {
	return floats.Dot(m.W, x) + m.Bias
}

type solverParams struct {
	positiveC     float64
	negativeC     float64
	maxIterations int
	tolerance     float64
}

// fitLinear solves the dual of the L2-regularized hinge loss problem by
// coordinate descent. The bias is learned as the weight of a constant
// feature of value 1. labels are +1 or -1.
func fitLinear(ctx context.Context, features [][]float64, labels []float64, p solverParams, rng *rand.Rand) (*linearModel, FitResult, error) {
	n := len(features)
	width := len(features[0])
	w := make([]float64, width)
	bias := 0.0
	alpha := make([]float64, n)
	diag := make([]float64, n)
	upper := make([]float64, n)
	for i, x := range features {
		diag[i] = floats.Dot(x, x) + 1
		upper[i] = p.negativeC
		if labels[i] > 0 {
			upper[i] = p.positiveC
		}
	}
	order := rng.Perm(n)

	for iter := 0; iter < p.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, Diverged, err
		}
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		maxPG, minPG := math.Inf(-1), math.Inf(1)
		for _, i := range order {
			x, y := features[i], labels[i]
			g := y*(floats.Dot(w, x)+bias) - 1
			pg := g
			switch {
			case alpha[i] == 0:
				pg = math.Min(g, 0)
			case alpha[i] == upper[i]:
				pg = math.Max(g, 0)
			}
			maxPG = math.Max(maxPG, pg)
			minPG = math.Min(minPG, pg)
			if math.Abs(pg) < 1e-12 {
				continue
			}
			old := alpha[i]
			alpha[i] = math.Min(math.Max(old-g/diag[i], 0), upper[i])
			d := (alpha[i] - old) * y
			floats.AddScaled(w, d, x)
			bias += d
		}
		if math.IsNaN(maxPG) || math.IsNaN(minPG) || math.IsNaN(bias) {
			return nil, Diverged, nil
		}
		if maxPG-minPG <= p.tolerance {
			return &linearModel{W: w, Bias: bias}, Converged, nil
		}
	}
	return nil, Diverged, nil
}
