package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocument_Text(t *testing.T) {
	doc := Document{Pages: []Page{{Text: "one"}, {Text: "two"}, {Text: "three"}}}
	tests := []struct {
		name     string
		pages    []int
		expected string
	}{
		{name: "All pages", expected: "one\ntwo\nthree"},
		{name: "Subset in given order", pages: []int{3, 1}, expected: "three\none"},
		{name: "Out of range ignored", pages: []int{0, 2, 9}, expected: "two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, doc.Text(tt.pages))
		})
	}
}

func TestFlatten(t *testing.T) {
	req := require.New(t)
	fields := []Field{
		{Name: "Vendor", Value: "ACME", Children: []Field{{Name: "Country", Value: "FR"}}},
		{Name: "Line", Value: "1", Children: []Field{{Name: "Amount", Value: "10"}}},
		{Name: "Line", Value: "2", Children: []Field{{Name: "Amount", Value: "20"}}},
	}

	// Given no selector, every node is kept under its qualified name
	all := Flatten(fields, FieldSelector{})
	req.Equal(FieldValues{
		"Vendor":         {"ACME"},
		"Vendor/Country": {"FR"},
		"Line":           {"1", "2"},
		"Line/Amount":    {"10", "20"},
	}, all)

	// Given globs, only matching names survive
	selected := Flatten(fields, FieldSelector{Include: []string{"Line*"}, Exclude: []string{"*/Amount"}})
	req.Equal(FieldValues{"Line": {"1", "2"}}, selected)
}

func TestField_WithoutChildren(t *testing.T) {
	req := require.New(t)
	field := Field{Name: "Candidate", Value: "x", Children: []Field{{Name: "label", Value: "A"}, {Name: "Score", Value: "1"}}}

	stripped := field.WithoutChildren("LABEL")

	req.Equal([]Field{{Name: "Score", Value: "1"}}, stripped.Children)
	req.Len(field.Children, 2)
	req.Equal([]Field{{Name: "label", Value: "A"}}, field.Child("Label"))
}

func TestParsePageRanges(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []PageRange
		wantErr  bool
	}{
		{name: "Ranges and singles", input: "1-3,4; 5-9", expected: []PageRange{{1, 3}, {4, 4}, {5, 9}}},
		{name: "Empty", input: "", expected: nil},
		{name: "Reversed", input: "3-1", wantErr: true},
		{name: "Zero page", input: "0-2", wantErr: true},
		{name: "Not a number", input: "a-b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ranges, err := ParsePageRanges(tt.input)
			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, ranges)
		})
	}
}

func TestPageRange_String(t *testing.T) {
	require.Equal(t, "4", PageRange{Start: 4, End: 4}.String())
	require.Equal(t, "1-3", PageRange{Start: 1, End: 3}.String())
}

func TestUsageMode_Valid(t *testing.T) {
	require.True(t, Pagination.Valid())
	require.False(t, UsageMode("chapters").Valid())
}
