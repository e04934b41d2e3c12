package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"doc-classifier/contract"
	"doc-classifier/domain"
	"doc-classifier/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.ModelStore = (*BadgerModelStore)(nil)

// BadgerModelStore keeps every saved envelope of a model name.
type BadgerModelStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerModelStore(db *badger.DB, log *slog.Logger) *BadgerModelStore {
	return &BadgerModelStore{db: db, log: log}
}

func modelPrefix(name string) string {
	return fmt.Sprintf("model:%s:", name)
}

// Put stores data under "model:{name}:{unixnano padded to 19 digits}:{uuid}"
// so that a prefix scan returns envelopes in the order they were saved.
func (s *BadgerModelStore) Put(ctx context.Context, name string, data []byte) (domain.ModelEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelEntry{}, err
	}
	at := time.Now().UTC()
	key := fmt.Sprintf("%s%019d:%s", modelPrefix(name), at.UnixNano(), uuid.New())
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return domain.ModelEntry{}, fmt.Errorf("store model %s: %w", name, err)
	}
	s.log.Debug("Model stored", "key", key, "size", len(data))
	return domain.ModelEntry{Key: key, Name: name, StoredAt: at, Size: len(data)}, nil
}

// Latest returns the most recently stored envelope of name.
func (s *BadgerModelStore) Latest(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(modelPrefix(name))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			if entry, err := parseModelKey(string(it.Item().Key())); err != nil || entry.Name != name {
				continue
			}
			var err error
			data, err = it.Item().ValueCopy(nil)
			return err
		}
		return fmt.Errorf("%w: %s", errors.ErrModelNotFound, name)
	})
	return data, err
}

// Get returns the envelope stored under key.
func (s *BadgerModelStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", errors.ErrModelNotFound, key)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// List returns the entries of name, oldest first.
func (s *BadgerModelStore) List(ctx context.Context, name string) ([]domain.ModelEntry, error) {
	var entries []domain.ModelEntry
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(modelPrefix(name))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			entry, err := parseModelKey(key)
			if err != nil {
				s.log.Warn("Skipping malformed model key", "key", key, "error", err)
				continue
			}
			// "model:a:" is also a prefix of the keys of "a:b".
			if entry.Name != name {
				continue
			}
			entry.Size = int(item.ValueSize())
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Names lists every model name present in the store.
func (s *BadgerModelStore) Names(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("model:")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := parseModelKey(string(it.Item().Key()))
			if err != nil {
				continue
			}
			if _, ok := seen[entry.Name]; !ok {
				seen[entry.Name] = struct{}{}
				names = append(names, entry.Name)
			}
		}
		return nil
	})
	return names, err
}

func parseModelKey(key string) (domain.ModelEntry, error) {
	rest, ok := strings.CutPrefix(key, "model:")
	if !ok {
		return domain.ModelEntry{}, fmt.Errorf("missing model prefix")
	}
	// The name may itself contain colons: the last two parts are fixed.
	parts := strings.Split(rest, ":")
	if len(parts) < 3 {
		return domain.ModelEntry{}, fmt.Errorf("expected name, timestamp and id")
	}
	nanos, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return domain.ModelEntry{}, fmt.Errorf("timestamp: %w", err)
	}
	return domain.ModelEntry{
		Key:      key,
		Name:     strings.Join(parts[:len(parts)-2], ":"),
		StoredAt: time.Unix(0, nanos).UTC(),
	}, nil
}
