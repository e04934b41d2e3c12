package corpus

import (
	"context"
	"fmt"
	"sync"

	"doc-classifier/domain"
	"doc-classifier/errors"
)

// MemorySource serves documents held in memory.
type MemorySource struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewMemorySource(docs ...domain.Document) *MemorySource {
	s := &MemorySource{docs: make(map[string]domain.Document, len(docs))}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *MemorySource) Add(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *MemorySource) Document(ctx context.Context, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
	}
	return doc, nil
}
