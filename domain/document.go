package domain

import (
	"path"
	"strings"
)

// Document is an already-materialized document: recognized text per page and
// a tree of named fields. Documents are treated as immutable snapshots.
type Document struct {
	ID     string
	Pages  []Page
	Fields []Field
}

// Page holds the recognized text of one page and the fields located on it.
type Page struct {
	Text   string
	Fields []Field
}

// Field is one node of the value tree. Several sibling fields may share a
// name, in which case the name maps to several values.
type Field struct {
	Name     string
	Value    string
	Children []Field
}

// PageCount returns the number of pages of the document.
func (d Document) PageCount() int {
	return len(d.Pages)
}

// Text joins the text of the selected 1-based pages, or of every page when
// pages is empty. Out-of-range page numbers are ignored.
func (d Document) Text(pages []int) string {
	if len(pages) == 0 {
		texts := make([]string, len(d.Pages))
		for i, p := range d.Pages {
			texts[i] = p.Text
		}
		return strings.Join(texts, "\n")
	}
	texts := make([]string, 0, len(pages))
	for _, n := range pages {
		if n < 1 || n > len(d.Pages) {
			continue
		}
		texts = append(texts, d.Pages[n-1].Text)
	}
	return strings.Join(texts, "\n")
}

// Child returns the children named name.
func (f Field) Child(name string) []Field {
	var out []Field
	for _, c := range f.Children {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}

// WithoutChildren returns a copy of the field whose children named name are removed.
// The receiver is left untouched.
func (f Field) WithoutChildren(name string) Field {
	kept := make([]Field, 0, len(f.Children))
	for _, c := range f.Children {
		if !strings.EqualFold(c.Name, name) {
			kept = append(kept, c)
		}
	}
	return Field{Name: f.Name, Value: f.Value, Children: kept}
}

// FieldValues maps a qualified field name to the values observed for one example.
type FieldValues map[string][]string

// Flatten collects the values of a field forest, keyed by the slash-qualified
// path of each node ("Invoice/Total"). Values keep their document order.
func Flatten(fields []Field, selector FieldSelector) FieldValues {
	out := make(FieldValues)
	var walk func(prefix string, nodes []Field)
	walk = func(prefix string, nodes []Field) {
		for _, n := range nodes {
			name := n.Name
			if prefix != "" {
				name = prefix + "/" + n.Name
			}
			if selector.Allows(name) {
				out[name] = append(out[name], n.Value)
			}
			walk(name, n.Children)
		}
	}
	walk("", fields)
	return out
}

// FieldSelector keeps field names matching any Include glob (all when empty)
// and matching no Exclude glob. Globs follow path.Match syntax.
type FieldSelector struct {
	Include []string `yaml:"include" json:"include,omitempty"`
	Exclude []string `yaml:"exclude" json:"exclude,omitempty"`
}

func (s FieldSelector) Allows(name string) bool {
	if len(s.Include) > 0 && !matchAny(s.Include, name) {
		return false
	}
	return !matchAny(s.Exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
