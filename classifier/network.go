package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"doc-classifier/errors"
	"doc-classifier/sampling"

	"gonum.org/v1/gonum/floats"
)

// Alpha is the steepness of the bipolar sigmoid 2/(1+exp(-alpha*x)) - 1.
const Alpha = 2.0

type NetworkOptions struct {
	Hidden        int     `yaml:"hidden" json:"hidden" validate:"gte=1"`
	LearningRate  float64 `yaml:"learning_rate" json:"learning_rate" validate:"gt=0"`
	Momentum      float64 `yaml:"momentum" json:"momentum" validate:"gte=0,lt=1"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`
	EarlyStopping bool    `yaml:"early_stopping" json:"early_stopping"`
	// Candidates networks are trained on their own stratified split when
	// early stopping; the one with the lowest validation error wins.
	Candidates         int     `yaml:"candidates" json:"candidates" validate:"gte=1"`
	Window             int     `yaml:"window" json:"window" validate:"gte=2"`
	ValidationFraction float64 `yaml:"validation_fraction" json:"validation_fraction" validate:"gt=0,lt=1"`
}

func DefaultNetworkOptions() NetworkOptions {
	return NetworkOptions{
		Hidden:             20,
		LearningRate:       0.05,
		Momentum:           0.5,
		MaxIterations:      200,
		Candidates:         3,
		Window:             10,
		ValidationFraction: 0.2,
	}
}

// layer holds one weight row per unit; the last column of each row is the bias.
type layer [][]float64

func newLayer(units, inputs int, rng *rand.Rand) layer {
	l := make(layer, units)
	limit := 1 / math.Sqrt(float64(inputs+1))
	for u := range l {
		l[u] = make([]float64, inputs+1)
		for i := range l[u] {
			l[u][i] = (2*rng.Float64() - 1) * limit
		}
	}
	return l
}

func (l layer) forward(in, out []float64) {
	n := len(in)
	for u, w := range l {
		out[u] = bipolar(floats.Dot(w[:n], in) + w[n])
	}
}

func (l layer) clone() layer {
	c := make(layer, len(l))
	for u := range l {
		c[u] = append([]float64(nil), l[u]...)
	}
	return c
}

func bipolar(x float64) float64 {
	return 2/(1+math.Exp(-Alpha*x)) - 1
}

// bipolarSlope is the derivative expressed from the activation y.
func bipolarSlope(y float64) float64 {
	return Alpha / 2 * (1 - y*y)
}

// Network is a feed-forward network with one hidden layer, trained by
// back-propagation with momentum against bipolar targets (+1 for the
// expected class, -1 for the others).
type Network struct {
	opts    NetworkOptions
	std     *Standardizer
	classes int
	hidden  layer
	output  layer
	trained bool
}

func NewNetwork(opts NetworkOptions) *Network {
	return &Network{opts: opts}
}

func (n *Network) Kind() Kind           { return NeuralNetwork }
func (n *Network) IsTrained() bool      { return n.trained }
func (n *Network) NumberOfClasses() int { return n.classes }

type trainer struct {
	net          *Network
	hidden       layer
	output       layer
	dHidden      layer
	dOutput      layer
	hiddenOut    []float64
	outputOut    []float64
	hiddenDelta  []float64
	outputDelta  []float64
	outputTarget []float64
}

func (n *Network) newTrainer(hidden, output layer) *trainer {
	zero := func(l layer) layer {
		z := make(layer, len(l))
		for u := range l {
			z[u] = make([]float64, len(l[u]))
		}
		return z
	}
	return &trainer{
		net:          n,
		hidden:       hidden,
		output:       output,
		dHidden:      zero(hidden),
		dOutput:      zero(output),
		hiddenOut:    make([]float64, len(hidden)),
		outputOut:    make([]float64, len(output)),
		hiddenDelta:  make([]float64, len(hidden)),
		outputDelta:  make([]float64, len(output)),
		outputTarget: make([]float64, len(output)),
	}
}

// step runs one online update and returns the squared error before it.
func (t *trainer) step(x []float64, code int) float64 {
	t.hidden.forward(x, t.hiddenOut)
	t.output.forward(t.hiddenOut, t.outputOut)

	sse := 0.0
	for k, y := range t.outputOut {
		target := -1.0
		if k == code {
			target = 1
		}
		err := target - y
		sse += err * err
		t.outputDelta[k] = err * bipolarSlope(y)
	}
	for h, y := range t.hiddenOut {
		sum := 0.0
		for k := range t.output {
			sum += t.outputDelta[k] * t.output[k][h]
		}
		t.hiddenDelta[h] = sum * bipolarSlope(y)
	}

	rate, momentum := t.net.opts.LearningRate, t.net.opts.Momentum
	update := func(l, d layer, delta, in []float64) {
		n := len(in)
		for u := range l {
			for i := 0; i <= n; i++ {
				input := 1.0
				if i < n {
					input = in[i]
				}
				d[u][i] = rate*delta[u]*input + momentum*d[u][i]
				l[u][i] += d[u][i]
			}
		}
	}
	update(t.output, t.dOutput, t.outputDelta, t.hiddenOut)
	update(t.hidden, t.dHidden, t.hiddenDelta, x)
	return sse
}

func (t *trainer) epoch(ctx context.Context, features [][]float64, codes []int, rng *rand.Rand) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sse := 0.0
	for _, i := range rng.Perm(len(features)) {
		sse += t.step(features[i], codes[i])
	}
	return sse / float64(len(features)), nil
}

// meanError is the mean squared error of the current weights, without learning.
func (t *trainer) meanError(features [][]float64, codes []int) float64 {
	sse := 0.0
	for i, x := range features {
		t.hidden.forward(x, t.hiddenOut)
		t.output.forward(t.hiddenOut, t.outputOut)
		for k, y := range t.outputOut {
			target := -1.0
			if k == codes[i] {
				target = 1
			}
			sse += (target - y) * (target - y)
		}
	}
	return sse / float64(len(features))
}

func (n *Network) Train(ctx context.Context, features [][]float64, codes []int, seed *int64) error {
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
	width := len(z[0])

	var hidden, output layer
	if n.opts.EarlyStopping {
		if hidden, output, err = n.trainWithEarlyStopping(ctx, z, codes, classes, rng); err != nil {
			return err
		}
	} else {
		t := n.newTrainer(newLayer(n.opts.Hidden, width, rng), newLayer(classes, n.opts.Hidden, rng))
		for it := 0; it < n.opts.MaxIterations; it++ {
			if _, err := t.epoch(ctx, z, codes, rng); err != nil {
				return err
			}
		}
		hidden, output = t.hidden, t.output
	}
	if hasNaN(hidden) || hasNaN(output) {
		return fmt.Errorf("%w: network weights are not finite", errors.ErrDiverged)
	}

	n.std, n.classes, n.hidden, n.output = std, classes, hidden, output
	n.trained = true
	return nil
}

// trainWithEarlyStopping trains Candidates networks on their own stratified
// splits. Each keeps the snapshot with the lowest validation error and stops
// once the average of the latest half window exceeds the one before it.
func (n *Network) trainWithEarlyStopping(ctx context.Context, features [][]float64, codes []int, classes int, rng *rand.Rand) (layer, layer, error) {
	var bestHidden, bestOutput layer
	bestError := math.Inf(1)
	width := len(features[0])
	half := n.opts.Window / 2

	for c := 0; c < n.opts.Candidates; c++ {
		trainIdx, validIdx := sampling.StratifiedSplit(codes, 1-n.opts.ValidationFraction, rng)
		trainX, trainY := subset(features, codes, trainIdx)
		validX, validY := subset(features, codes, validIdx)

		t := n.newTrainer(newLayer(n.opts.Hidden, width, rng), newLayer(classes, n.opts.Hidden, rng))
		var history []float64
		candidateError := math.Inf(1)
		var candidateHidden, candidateOutput layer
		for it := 0; it < n.opts.MaxIterations; it++ {
			if _, err := t.epoch(ctx, trainX, trainY, rng); err != nil {
				return nil, nil, err
			}
			e := t.meanError(validX, validY)
			history = append(history, e)
			if e < candidateError {
				candidateError, candidateHidden, candidateOutput = e, t.hidden.clone(), t.output.clone()
			}
			if len(history) >= 2*half && mean(history[len(history)-half:]) > mean(history[len(history)-2*half:len(history)-half]) {
				break
			}
		}
		if candidateError < bestError {
			bestError, bestHidden, bestOutput = candidateError, candidateHidden, candidateOutput
		}
	}
	if bestHidden == nil {
		return nil, nil, fmt.Errorf("%w: no candidate network produced a finite validation error", errors.ErrDiverged)
	}
	return bestHidden, bestOutput, nil
}

// IncrementalTrain keeps training the current weights on new examples. The
// standardization statistics stay those of the first fit.
func (n *Network) IncrementalTrain(ctx context.Context, features [][]float64, codes []int) error {
	if !n.trained {
		return n.Train(ctx, features, codes, nil)
	}
	if len(features) != len(codes) {
		return fmt.Errorf("%w: %d vectors, %d codes", errors.ErrLengthMismatch, len(features), len(codes))
	}
	if len(features) == 0 {
		return errors.ErrNoExamples
	}
	z, err := n.std.ApplyAll(features)
	if err != nil {
		return err
	}
	for _, c := range codes {
		if c < 0 || c >= n.classes {
			return fmt.Errorf("%w: code %d outside the %d trained classes", errors.ErrInvalidOptions, c, n.classes)
		}
	}
	t := n.newTrainer(n.hidden.clone(), n.output.clone())
	rng := sampling.NewRand(nil)
	for it := 0; it < n.opts.MaxIterations; it++ {
		if _, err := t.epoch(ctx, z, codes, rng); err != nil {
			return err
		}
	}
	if hasNaN(t.hidden) || hasNaN(t.output) {
		return fmt.Errorf("%w: network weights are not finite", errors.ErrDiverged)
	}
	n.hidden, n.output = t.hidden, t.output
	return nil
}

func (n *Network) ComputeAnswer(features []float64) (Answer, error) {
	if !n.trained {
		return Answer{}, errors.ErrNotTrained
	}
	z, err := n.std.Apply(features)
	if err != nil {
		return Answer{}, err
	}
	hiddenOut := make([]float64, len(n.hidden))
	out := make([]float64, len(n.output))
	n.hidden.forward(z, hiddenOut)
	n.output.forward(hiddenOut, out)
	best := floats.MaxIdx(out)
	return Answer{Code: best, Score: (out[best] + 1) / 2, HasScore: true}, nil
}

func subset(features [][]float64, codes []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for j, i := range indices {
		x[j], y[j] = features[i], codes[i]
	}
	return x, y
}

func mean(values []float64) float64 {
	return floats.Sum(values) / float64(len(values))
}

func hasNaN(l layer) bool {
	for _, row := range l {
		if floats.HasNaN(row) {
			return true
		}
	}
	return false
}

type networkState struct {
	Options      NetworkOptions `json:"options"`
	Standardizer *Standardizer  `json:"standardizer"`
	Classes      int            `json:"classes"`
	Hidden       layer          `json:"hidden"`
	Output       layer          `json:"output"`
}

func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(networkState{
		Options:      n.opts,
		Standardizer: n.std,
		Classes:      n.classes,
		Hidden:       n.hidden,
		Output:       n.output,
	})
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var st networkState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Standardizer == nil || len(st.Hidden) == 0 || len(st.Output) != st.Classes {
		return fmt.Errorf("%w: network state is incomplete", errors.ErrCorruptModel)
	}
	n.opts, n.std, n.classes, n.hidden, n.output = st.Options, st.Standardizer, st.Classes, st.Hidden, st.Output
	n.trained = true
	return nil
}
