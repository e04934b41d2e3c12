package encoder

import (
	"fmt"

	"doc-classifier/domain"
	"doc-classifier/errors"

	"github.com/abadojack/whatlanggo"
)

// Example is one unit fed to the classifier: a document, a page after the
// first, or a candidate value.
type Example struct {
	Source string
	Text   string
	Fields domain.FieldValues
	Label  string
}

// extract cuts doc into examples for the configured mode. With a nil answer
// the examples are unlabeled and every candidate is kept.
func (e *Encoder) extract(doc domain.Document, answer *domain.Answer) ([]Example, error) {
	var out []Example
	switch e.opts.Mode {
	case domain.Pagination:
		var firsts []bool
		if answer != nil {
			var err error
			if firsts, err = ExpandPageRanges(doc.PageCount(), answer.Ranges); err != nil {
				return nil, errors.NewDataError(err, doc.ID, "")
			}
		}
		for p := 1; p < doc.PageCount(); p++ {
			page := doc.Pages[p]
			ex := Example{
				Source: fmt.Sprintf("%s#page=%d", doc.ID, p+1),
				Text:   page.Text,
				Fields: e.flatten(page.Fields),
			}
			if firsts != nil {
				ex.Label = pageLabel(firsts[p-1])
			}
			out = append(out, ex)
		}
	case domain.CandidateCategorization:
		labelField := e.opts.labelField()
		for i, candidate := range doc.Fields {
			labels := candidate.Child(labelField)
			if answer != nil {
				if len(labels) == 0 {
					continue
				}
				if len(labels) > 1 {
					return nil, errors.NewDataError(errors.ErrMultipleLabels, doc.ID, candidate.Name)
				}
			}
			ex := Example{
				Source: fmt.Sprintf("%s/%s[%d]", doc.ID, candidate.Name, i),
				Text:   candidate.Value,
				Fields: e.flatten(candidate.WithoutChildren(labelField).Children),
			}
			if answer != nil {
				ex.Label = labels[0].Value
			}
			out = append(out, ex)
		}
	default:
		ex := Example{
			Source: doc.ID,
			Text:   doc.Text(e.opts.Text.Pages),
			Fields: e.flatten(doc.Fields),
		}
		if answer != nil {
			ex.Label = answer.Category
		}
		out = append(out, ex)
	}

	if e.opts.DetectLanguage {
		for i := range out {
			if lang := whatlanggo.Detect(out[i].Text).Lang.Iso6391(); lang != "" {
				out[i].Fields[LanguageField] = []string{lang}
			}
		}
	}
	return out, nil
}

func (e *Encoder) flatten(fields []domain.Field) domain.FieldValues {
	if !e.opts.UseFields {
		return domain.FieldValues{}
	}
	return domain.Flatten(fields, e.opts.Selector)
}
