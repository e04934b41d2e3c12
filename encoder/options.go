package encoder

import (
	"fmt"

	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/textproc"
	"doc-classifier/vectorizer"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LanguageField is the synthetic field carrying the detected ISO 639-1 language.
const LanguageField = "@LANGUAGE"

// DefaultLabelField names the sub-field holding a candidate's label.
const DefaultLabelField = "label"

type TextOptions struct {
	Enabled     bool             `yaml:"enabled" json:"enabled"`
	MaxFeatures int              `yaml:"max_features" json:"max_features" validate:"gte=0"`
	Tokenizer   textproc.Options `yaml:"tokenizer" json:"tokenizer"`
	// Pages restricts document text to these 1-based pages. Empty means all.
	Pages []int `yaml:"pages" json:"pages,omitempty" validate:"dive,gte=1"`
}

type Options struct {
	Mode              domain.UsageMode          `yaml:"mode" json:"mode" validate:"required"`
	Text              TextOptions               `yaml:"text" json:"text"`
	UseFields         bool                      `yaml:"use_fields" json:"use_fields"`
	Fields            []vectorizer.FieldOptions `yaml:"fields" json:"fields,omitempty" validate:"dive"`
	Selector          domain.FieldSelector      `yaml:"selector" json:"selector"`
	MaxDiscreteValues int                       `yaml:"max_discrete_values" json:"max_discrete_values" validate:"gte=0"`
	DetectLanguage    bool                      `yaml:"detect_language" json:"detect_language"`
	NegativeCategory  string                    `yaml:"negative_category" json:"negative_category"`
	LabelField        string                    `yaml:"label_field" json:"label_field"`
	Workers           int                       `yaml:"workers" json:"-" validate:"gte=0"`
}

// DefaultOptions encodes whole documents with text and fields.
func DefaultOptions() Options {
	return Options{
		Mode:             domain.DocumentCategorization,
		Text:             TextOptions{Enabled: true, MaxFeatures: 5000, Tokenizer: textproc.Options{ShingleSize: 1}},
		UseFields:        true,
		NegativeCategory: DefaultNegativeCategory,
		LabelField:       DefaultLabelField,
	}
}

func (o Options) validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidOptions, err)
	}
	if !o.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", errors.ErrInvalidOptions, o.Mode)
	}
	if !o.Text.Enabled && !o.UseFields {
		return fmt.Errorf("%w: neither text nor fields are encoded", errors.ErrInvalidOptions)
	}
	return nil
}

// negative returns the category reserved at code 0 for the mode.
func (o Options) negative() string {
	switch {
	case o.Mode == domain.Pagination:
		return domain.NotFirstPage
	case o.NegativeCategory != "":
		return o.NegativeCategory
	default:
		return DefaultNegativeCategory
	}
}

func (o Options) labelField() string {
	if o.LabelField == "" {
		return DefaultLabelField
	}
	return o.LabelField
}

func (o Options) fieldOptions(name string) vectorizer.FieldOptions {
	for _, f := range o.Fields {
		if f.Name == name {
			return f
		}
	}
	return vectorizer.FieldOptions{Name: name}
}
