package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"doc-classifier/corpus"
	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/repositories"
	"doc-classifier/training"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func storeWithModel(t *testing.T) *repositories.BadgerModelStore {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	src := corpus.NewMemorySource()
	var ids []string
	var answers []domain.Answer
	for i := 0; i < 10; i++ {
		src.Add(domain.Document{ID: fmt.Sprintf("inv-%d", i), Pages: []domain.Page{{Text: "Invoice total amount due"}}})
		src.Add(domain.Document{ID: fmt.Sprintf("rec-%d", i), Pages: []domain.Page{{Text: "Receipt thank you paid"}}})
		ids = append(ids, fmt.Sprintf("inv-%d", i), fmt.Sprintf("rec-%d", i))
		answers = append(answers, domain.Answer{Category: "Invoice"}, domain.Answer{Category: "Receipt"})
	}
	trainer, err := training.NewTrainer(log, training.DefaultOptions(), nil)
	req.NoError(err)
	_, err = trainer.Train(context.Background(), src, ids, answers, training.TrainRequest{})
	req.NoError(err)
	model, err := trainer.Model()
	req.NoError(err)
	data, err := training.Marshal(model)
	req.NoError(err)

	store := repositories.NewBadgerModelStore(db, log)
	_, err = store.Put(context.Background(), "letters", data)
	req.NoError(err)
	_, err = store.Put(context.Background(), "broken", []byte("not a model"))
	req.NoError(err)
	_, err = store.Put(context.Background(), "future", futureEnvelope(training.CurrentVersion+7))
	req.NoError(err)
	return store
}

// futureEnvelope frames an empty payload under a version this build cannot read.
func futureEnvelope(version int) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(version))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(`{}`))
	return b
}

func TestListModels(t *testing.T) {
	req := require.New(t)
	store := storeWithModel(t)

	var buf bytes.Buffer
	req.NoError(listModels(context.Background(), &buf, store))

	out := buf.String()
	req.Contains(out, "letters")
	req.Contains(out, "broken")
	req.Contains(out, "Error decoding key model:broken:")
	req.Contains(out, "Error decoding key model:future:")
	req.Contains(out, errors.ErrVersionTooNew.Error())
	// The newer envelope still shows its version.
	req.Regexp(fmt.Sprintf(`future\s+\S+ \S+\s+\d+\s+%d\s+00000000`, training.CurrentVersion+7), out)
}

func TestShowLatest(t *testing.T) {
	req := require.New(t)
	store := storeWithModel(t)

	var buf bytes.Buffer
	req.NoError(showLatest(context.Background(), &buf, store, "letters", false))
	req.Contains(buf.String(), "classifier svm-ovr")
	req.Contains(buf.String(), "Testing set")

	err := showLatest(context.Background(), &buf, store, "unknown", false)
	req.ErrorIs(err, errors.ErrModelNotFound)
}
