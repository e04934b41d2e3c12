// Package classifier holds the trainable classifiers: linear support vector
// machines combined one-vs-one or one-vs-rest, and a one-hidden-layer
// neural network.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"doc-classifier/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Kind string

const (
	OneVsOne      Kind = "svm-ovo"
	OneVsRest     Kind = "svm-ovr"
	NeuralNetwork Kind = "neural"
)

// Answer is a predicted code with an optional confidence in [0, 1].
type Answer struct {
	Code     int
	Score    float64
	HasScore bool
}

type Classifier interface {
	Kind() Kind
	// Train fits the classifier. A nil seed draws one from the clock.
	Train(ctx context.Context, features [][]float64, codes []int, seed *int64) error
	ComputeAnswer(features []float64) (Answer, error)
	IsTrained() bool
	NumberOfClasses() int
}

// IncrementalClassifier can keep training on new examples without starting over.
type IncrementalClassifier interface {
	Classifier
	IncrementalTrain(ctx context.Context, features [][]float64, codes []int) error
}

type Options struct {
	Kind    Kind           `yaml:"kind" json:"kind" validate:"required,oneof=svm-ovo svm-ovr neural"`
	SVM     SVMOptions     `yaml:"svm" json:"svm"`
	Network NetworkOptions `yaml:"network" json:"network"`
}

func DefaultOptions() Options {
	return Options{
		Kind:    OneVsRest,
		SVM:     DefaultSVMOptions(),
		Network: DefaultNetworkOptions(),
	}
}

type maker func(Options) Classifier

var makers = map[Kind]maker{
	OneVsOne:      func(o Options) Classifier { return NewSVM(OneVsOne, o.SVM) },
	OneVsRest:     func(o Options) Classifier { return NewSVM(OneVsRest, o.SVM) },
	NeuralNetwork: func(o Options) Classifier { return NewNetwork(o.Network) },
}

// New builds an untrained classifier of the configured kind.
func New(opts Options) (Classifier, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOptions, err)
	}
	return makers[opts.Kind](opts), nil
}

type envelope struct {
	Kind  Kind            `json:"kind"`
	State json.RawMessage `json:"state"`
}

// Marshal serializes a trained classifier together with its kind.
func Marshal(c Classifier) ([]byte, error) {
	if !c.IsTrained() {
		return nil, errors.ErrNotTrained
	}
	state, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: c.Kind(), State: state})
}

func Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: classifier: %v", errors.ErrCorruptModel, err)
	}
	mk, ok := makers[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownClassifier, env.Kind)
	}
	c := mk(DefaultOptions())
	if err := json.Unmarshal(env.State, c); err != nil {
		return nil, fmt.Errorf("%w: classifier: %v", errors.ErrCorruptModel, err)
	}
	return c, nil
}

func checkInput(features [][]float64, codes []int) (classes int, err error) {
	if len(features) != len(codes) {
		return 0, fmt.Errorf("%w: %d vectors, %d codes", errors.ErrLengthMismatch, len(features), len(codes))
	}
	if len(features) == 0 {
		return 0, errors.ErrNoExamples
	}
	width := len(features[0])
	for _, x := range features {
		if len(x) != width {
			return 0, fmt.Errorf("%w: got %d, want %d", errors.ErrFeatureLength, len(x), width)
		}
	}
	distinct := make(map[int]struct{})
	for _, c := range codes {
		if c < 0 {
			return 0, fmt.Errorf("%w: negative code %d", errors.ErrInvalidOptions, c)
		}
		distinct[c] = struct{}{}
		classes = max(classes, c+1)
	}
	if len(distinct) < 2 {
		return 0, errors.ErrTooFewCategories
	}
	return classes, nil
}
