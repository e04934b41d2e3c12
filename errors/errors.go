package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Configuration errors: a component was used before it was fully set up.
var (
	ErrEncodingsNotComputed   = fmt.Errorf("encodings have not been computed")
	ErrVocabularyNotComputed  = fmt.Errorf("vocabulary has not been computed")
	ErrNotTrained             = fmt.Errorf("classifier is not trained")
	ErrIncrementalUnsupported = fmt.Errorf("classifier does not support incremental training")
	ErrUnknownClassifier      = fmt.Errorf("unknown classifier kind")
	ErrInvalidOptions         = fmt.Errorf("invalid options")
)

// Data errors: the input itself is unusable.
var (
	ErrTooFewCategories = fmt.Errorf("at least two categories are required")
	ErrLengthMismatch   = fmt.Errorf("input lengths do not match")
	ErrMultipleLabels   = fmt.Errorf("candidate carries more than one label")
	ErrNoExamples       = fmt.Errorf("no usable training examples")
	ErrDocumentNotFound = fmt.Errorf("document not found")
	ErrFeatureLength    = fmt.Errorf("feature vector length mismatch")
	ErrInvalidPageRange = fmt.Errorf("invalid page range")
	ErrNoFeatures       = fmt.Errorf("encoding produces no features")
	ErrUnsupportedFile  = fmt.Errorf("unsupported document file")
	ErrMalformedInput   = fmt.Errorf("malformed input")
)

// Numerical and persistence errors.
var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrDiverged      = fmt.Errorf("training did not converge")
	ErrVersionTooNew = fmt.Errorf("model format version is newer than supported")
	ErrCorruptModel  = fmt.Errorf("model data is corrupt")
	ErrModelNotFound = fmt.Errorf("model not found")
	ErrEmptyManifest = fmt.Errorf("manifest has no entries")
)

// DataError attaches the offending document path and field name to a data error.
type DataError struct {
	Path  string
	Field string
	Err   error
}

func (e *DataError) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%v (path=%s, field=%s)", e.Err, e.Path, e.Field)
	case e.Path != "":
		return fmt.Sprintf("%v (path=%s)", e.Err, e.Path)
	case e.Field != "":
		return fmt.Sprintf("%v (field=%s)", e.Err, e.Field)
	default:
		return e.Err.Error()
	}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func NewDataError(err error, path, field string) *DataError {
	return &DataError{Path: path, Field: field, Err: err}
}

// IsCancellation reports whether err stems from a cancelled or expired context.
func IsCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
