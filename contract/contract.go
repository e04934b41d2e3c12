//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"doc-classifier/domain"
)

// DocumentSource hands out already-materialized documents. A missing document
// must be reported with errors.ErrDocumentNotFound so callers can skip it.
type DocumentSource interface {
	Document(ctx context.Context, id string) (domain.Document, error)
}

// ProgressSink receives status updates, possibly from several workers at once.
// Implementations must not block the caller.
type ProgressSink interface {
	Report(status domain.Status)
}

// ModelStore persists opaque model envelopes.
type ModelStore interface {
	Put(ctx context.Context, name string, data []byte) (domain.ModelEntry, error)
	Latest(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, name string) ([]domain.ModelEntry, error)
}

// NopProgress discards every update.
type NopProgress struct{}

func (NopProgress) Report(domain.Status) {}
