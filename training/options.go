package training

import (
	"fmt"

	"doc-classifier/classifier"
	"doc-classifier/encoder"
	"doc-classifier/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Options struct {
	Encoder    encoder.Options    `yaml:"encoder" json:"encoder"`
	Classifier classifier.Options `yaml:"classifier" json:"classifier"`
	// TrainFraction of each category goes to the training subset. Zero means
	// evaluation only: the current classifier is scored on the whole set.
	TrainFraction float64 `yaml:"train_fraction" json:"train_fraction" validate:"gte=0,lte=1"`
	Seed          *int64  `yaml:"seed" json:"seed,omitempty"`
	// Negatives are excluded from the positive set of the confusion matrices.
	Negatives []string `yaml:"negatives" json:"negatives,omitempty"`
	// MinConfidence turns scored predictions below it into the negative category.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" validate:"gte=0,lte=1"`
	Workers       int     `yaml:"workers" json:"-" validate:"gte=0"`
}

func DefaultOptions() Options {
	return Options{
		Encoder:       encoder.DefaultOptions(),
		Classifier:    classifier.DefaultOptions(),
		TrainFraction: 0.8,
	}
}

func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidOptions, err)
	}
	if !o.Encoder.Mode.Valid() {
		return fmt.Errorf("%w: unknown encoder mode %q", errors.ErrInvalidOptions, o.Encoder.Mode)
	}
	return nil
}

// withWorkers propagates the worker count to the nested components.
func (o Options) withWorkers() Options {
	if o.Workers > 0 {
		o.Encoder.Workers = o.Workers
		o.Classifier.SVM.Workers = o.Workers
	}
	return o
}
