package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"

	"doc-classifier/errors"
	"doc-classifier/runtime"
	"doc-classifier/sampling"

	"github.com/samber/lo"
)

// retryFactor shrinks the complexity after a final fit fails to converge.
const retryFactor = 0.75

type SVMOptions struct {
	// Complexity is the error cost C, and the initial guess of the search.
	Complexity       float64 `yaml:"complexity" json:"complexity" validate:"gt=0"`
	SearchComplexity bool    `yaml:"search_complexity" json:"search_complexity"`
	// Calibrate and Reweight only apply to one-vs-rest machines.
	Calibrate     bool    `yaml:"calibrate" json:"calibrate"`
	Reweight      bool    `yaml:"reweight" json:"reweight"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance" validate:"gt=0"`
	MaxRetries    int     `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	Workers       int     `yaml:"workers" json:"-" validate:"gte=0"`
}

func DefaultSVMOptions() SVMOptions {
	return SVMOptions{
		Complexity:    1,
		MaxIterations: 1000,
		Tolerance:     0.1,
		MaxRetries:    30,
	}
}

// machine is one binary sub-problem. Negative is -1 for the rest of the classes.
type machine struct {
	Positive int          `json:"positive"`
	Negative int          `json:"negative"`
	Model    *linearModel `json:"model"`
	Platt    *platt       `json:"platt,omitempty"`
}

// SVM combines binary linear machines one-vs-one or one-vs-rest over
// standardized features.
type SVM struct {
	kind       Kind
	opts       SVMOptions
	std        *Standardizer
	classes    int
	complexity float64
	machines   []machine
	trained    bool
}

func NewSVM(kind Kind, opts SVMOptions) *SVM {
	return &SVM{kind: kind, opts: opts}
}

func (s *SVM) Kind() Kind           { return s.kind }
func (s *SVM) IsTrained() bool      { return s.trained }
func (s *SVM) NumberOfClasses() int { return s.classes }

// Complexity returns the error cost the machines were finally trained with.
func (s *SVM) Complexity() float64 { return s.complexity }

func (s *SVM) Train(ctx context.Context, features [][]float64, codes []int, seed *int64) error {
	classes, err := checkInput(features, codes)
	if err != nil {
		return err
	}
	std := FitStandardizer(features)
	z, err := std.ApplyAll(features)
	if err != nil {
		return err
	}
	rng := sampling.NewRand(seed)

	complexity := s.opts.Complexity
	if s.opts.SearchComplexity {
		if complexity, err = s.searchComplexity(ctx, z, codes, rng); err != nil {
			return err
		}
	}

	var machines []machine
	for attempt := 0; ; attempt++ {
		var result FitResult
		machines, result, err = s.fitMachines(ctx, z, codes, complexity, rng.Int63())
		if err != nil {
			return err
		}
		if result == Converged {
			break
		}
		if attempt >= s.opts.MaxRetries {
			return fmt.Errorf("%w: complexity %g after %d retries", errors.ErrDiverged, complexity, attempt)
		}
		complexity *= retryFactor
	}

	s.std, s.classes, s.complexity, s.machines = std, classes, complexity, machines
	s.trained = true
	return nil
}

type problem struct {
	positive, negative int
	indices            []int
}

func (s *SVM) problems(codes []int) []problem {
	observed := lo.Uniq(codes)
	sort.Ints(observed)
	all := lo.Range(len(codes))
	var out []problem
	if s.kind == OneVsOne {
		for a := 0; a < len(observed); a++ {
			for b := a + 1; b < len(observed); b++ {
				pos, neg := observed[a], observed[b]
				out = append(out, problem{
					positive: pos,
					negative: neg,
					indices:  lo.Filter(all, func(i int, _ int) bool { return codes[i] == pos || codes[i] == neg }),
				})
			}
		}
		return out
	}
	for _, c := range observed {
		out = append(out, problem{positive: c, negative: -1, indices: all})
	}
	return out
}

// fitMachines trains every binary machine in parallel. The whole set is
// Diverged as soon as one machine is.
func (s *SVM) fitMachines(ctx context.Context, features [][]float64, codes []int, complexity float64, seed int64) ([]machine, FitResult, error) {
	problems := s.problems(codes)
	machines := make([]machine, len(problems))
	var diverged atomic.Bool

	err := runtime.ParallelFor(ctx, len(problems), s.opts.Workers, runtime.NoScratch,
		func(ctx context.Context, k int, _ struct{}) error {
			if diverged.Load() {
				return nil
			}
			p := problems[k]
			x := make([][]float64, len(p.indices))
			y := make([]float64, len(p.indices))
			positives := 0
			for j, i := range p.indices {
				x[j] = features[i]
				y[j] = -1
				if codes[i] == p.positive {
					y[j] = 1
					positives++
				}
			}
			params := solverParams{
				positiveC:     complexity,
				negativeC:     complexity,
				maxIterations: s.opts.MaxIterations,
				tolerance:     s.opts.Tolerance,
			}
			if s.kind == OneVsRest && s.opts.Reweight {
				n := float64(len(y))
				params.positiveC = complexity * n / (2 * float64(positives))
				params.negativeC = complexity * n / (2 * float64(len(y)-positives))
			}
			model, result, err := fitLinear(ctx, x, y, params, rand.New(rand.NewSource(seed+int64(k))))
			if err != nil {
				return err
			}
			if result == Diverged {
				diverged.Store(true)
				return nil
			}
			m := machine{Positive: p.positive, Negative: p.negative, Model: model}
			if s.kind == OneVsRest && s.opts.Calibrate {
				decisions := lo.Map(x, func(v []float64, _ int) float64 { return model.decision(v) })
				cal := fitPlatt(decisions, y)
				m.Platt = &cal
			}
			machines[k] = m
			return nil
		})
	if err != nil {
		return nil, Diverged, err
	}
	if diverged.Load() {
		return nil, Diverged, nil
	}
	return machines, Converged, nil
}

func (s *SVM) ComputeAnswer(features []float64) (Answer, error) {
	if !s.trained {
		return Answer{}, errors.ErrNotTrained
	}
	z, err := s.std.Apply(features)
	if err != nil {
		return Answer{}, err
	}
	return s.answer(s.machines, z), nil
}

func (s *SVM) answer(machines []machine, z []float64) Answer {
	if s.kind == OneVsOne {
		votes := make(map[int]int)
		for _, m := range machines {
			if m.Model.decision(z) > 0 {
				votes[m.Positive]++
			} else {
				votes[m.Negative]++
			}
		}
		best, bestVotes := 0, -1
		for _, m := range machines {
			for _, c := range []int{m.Positive, m.Negative} {
				if v := votes[c]; v > bestVotes || (v == bestVotes && c < best) {
					best, bestVotes = c, v
				}
			}
		}
		return Answer{Code: best}
	}

	best := Answer{Code: machines[0].Positive}
	bestScore := 0.0
	for i, m := range machines {
		score := m.Model.decision(z)
		if m.Platt != nil {
			score = m.Platt.probability(score)
		}
		if i == 0 || score > bestScore {
			best, bestScore = Answer{Code: m.Positive}, score
		}
	}
	if s.opts.Calibrate {
		best.Score, best.HasScore = bestScore, true
	}
	return best
}

type svmState struct {
	Options      SVMOptions    `json:"options"`
	Standardizer *Standardizer `json:"standardizer"`
	Classes      int           `json:"classes"`
	Complexity   float64       `json:"complexity"`
	Machines     []machine     `json:"machines"`
}

func (s *SVM) MarshalJSON() ([]byte, error) {
	return json.Marshal(svmState{
		Options:      s.opts,
		Standardizer: s.std,
		Classes:      s.classes,
		Complexity:   s.complexity,
		Machines:     s.machines,
	})
}

func (s *SVM) UnmarshalJSON(data []byte) error {
	var st svmState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Standardizer == nil || len(st.Machines) == 0 {
		return fmt.Errorf("%w: svm state is incomplete", errors.ErrCorruptModel)
	}
	s.opts, s.std, s.classes, s.complexity, s.machines = st.Options, st.Standardizer, st.Classes, st.Complexity, st.Machines
	s.trained = true
	return nil
}
