package classifier

import (
	"context"
	"math"
	"math/rand"
	"strconv"

	"doc-classifier/evaluation"
	"doc-classifier/sampling"

	"github.com/samber/lo"
)

const (
	searchTrainFraction = 0.8
	searchRadius        = 10
	searchPatience      = 3
	refineRadius        = 1.0
	refineStep          = 0.25
	tieTolerance        = 1e-12
)

// searchComplexity picks the error cost on a stratified 80/20 split. Phase
// one scans base-2 exponents in unit steps around the initial guess, phase
// two refines around its choice in quarter steps. A diverging trial ends the
// round: larger costs would not converge either.
func (s *SVM) searchComplexity(ctx context.Context, features [][]float64, codes []int, rng *rand.Rand) (float64, error) {
	trainIdx, validIdx := sampling.StratifiedSplit(codes, searchTrainFraction, rng)
	pick := func(indices []int) ([][]float64, []int) {
		return lo.Map(indices, func(i int, _ int) []float64 { return features[i] }),
			lo.Map(indices, func(i int, _ int) int { return codes[i] })
	}
	trainX, trainY := pick(trainIdx)
	validX, validY := pick(validIdx)
	seed := rng.Int63()

	evaluate := func(exponent float64) (float64, FitResult, error) {
		machines, result, err := s.fitMachines(ctx, trainX, trainY, math.Exp2(exponent), seed)
		if err != nil || result == Diverged {
			return 0, result, err
		}
		predicted := lo.Map(validX, func(x []float64, _ int) int { return s.answer(machines, x).Code })
		return validationScore(validY, predicted), Converged, nil
	}

	initial := math.Log2(s.opts.Complexity)
	coarse, err := scanExponents(ctx, exponentRange(initial-searchRadius, initial+searchRadius, 1), evaluate)
	if err != nil {
		return 0, err
	}
	if len(coarse) == 0 {
		return math.Exp2(initial - searchRadius), nil
	}
	chosen := middle(coarse)

	fine, err := scanExponents(ctx, exponentRange(chosen-refineRadius, chosen+refineRadius, refineStep), evaluate)
	if err != nil {
		return 0, err
	}
	if len(fine) > 0 {
		chosen = middle(fine)
	}
	return math.Exp2(chosen), nil
}

// scanExponents evaluates exponents in increasing order and returns those
// tied for the best score. It stops after searchPatience non-improving steps
// or at the first divergence.
func scanExponents(
	ctx context.Context,
	exponents []float64,
	evaluate func(float64) (float64, FitResult, error),
) ([]float64, error) {
	var ties []float64
	best := math.Inf(-1)
	stale := 0
	for _, e := range exponents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, result, err := evaluate(e)
		if err != nil {
			return nil, err
		}
		if result == Diverged {
			break
		}
		switch {
		case score > best+tieTolerance:
			best, ties, stale = score, []float64{e}, 0
		case math.Abs(score-best) <= tieTolerance:
			ties = append(ties, e)
			stale++
		default:
			stale++
		}
		if stale >= searchPatience {
			break
		}
	}
	return ties, nil
}

func exponentRange(from, to, step float64) []float64 {
	var out []float64
	for i := 0; ; i++ {
		e := from + float64(i)*step
		if e > to+tieTolerance {
			return out
		}
		out = append(out, e)
	}
}

func middle(values []float64) float64 {
	return values[(len(values)-1)/2]
}

// validationScore is F1 on the higher code when exactly two classes are
// present, agreement otherwise.
func validationScore(expected, predicted []int) float64 {
	classes := 0
	for _, c := range append(append([]int(nil), expected...), predicted...) {
		classes = max(classes, c+1)
	}
	labels := lo.Map(lo.Range(classes), func(i int, _ int) string { return strconv.Itoa(i) })
	m, err := evaluation.Tally(labels, expected, predicted, nil)
	if err != nil {
		return 0
	}
	observed := lo.Uniq(expected)
	if len(observed) == 2 {
		return m.Relabel([]int{lo.Max(observed)}).Micro().F1
	}
	return m.Agreement()
}
