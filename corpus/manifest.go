package corpus

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"doc-classifier/domain"
	"doc-classifier/errors"
)

// Manifest lists the documents of a corpus and, when the file carries a
// category or ranges column, their expected answers. Answers is nil otherwise.
type Manifest struct {
	IDs     []string
	Answers []domain.Answer
}

// ReadManifest parses a CSV file whose header names an "id" column and
// optionally "category" (or "label") and "ranges" columns.
func ReadManifest(r io.Reader) (Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if stderrors.Is(err, io.EOF) {
		return Manifest{}, errors.ErrEmptyManifest
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest header: %v", errors.ErrMalformedInput, err)
	}

	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := columns["id"]
	if !ok {
		return Manifest{}, errors.NewDataError(fmt.Errorf("%w: missing id column", errors.ErrMalformedInput), "", "id")
	}
	categoryCol, hasCategory := columns["category"]
	if !hasCategory {
		categoryCol, hasCategory = columns["label"]
	}
	rangesCol, hasRanges := columns["ranges"]

	var m Manifest
	for line := 2; ; line++ {
		record, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: manifest line %d: %v", errors.ErrMalformedInput, line, err)
		}
		id := cell(record, idCol)
		if id == "" {
			continue
		}
		m.IDs = append(m.IDs, id)
		if !hasCategory && !hasRanges {
			continue
		}
		var answer domain.Answer
		if hasCategory {
			answer.Category = cell(record, categoryCol)
		}
		if hasRanges {
			ranges, err := domain.ParsePageRanges(cell(record, rangesCol))
			if err != nil {
				return Manifest{}, errors.NewDataError(fmt.Errorf("%w: %v", errors.ErrInvalidPageRange, err), id, "ranges")
			}
			answer.Ranges = ranges
		}
		m.Answers = append(m.Answers, answer)
	}
	if len(m.IDs) == 0 {
		return Manifest{}, errors.ErrEmptyManifest
	}
	return m, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
