package training

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"doc-classifier/classifier"
	"doc-classifier/corpus"
	"doc-classifier/domain"
	"doc-classifier/errors"
	"doc-classifier/textproc"
	"doc-classifier/vectorizer"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func seed(v int64) *int64 { return &v }

// invoicesAndReceipts builds n documents per category.
func invoicesAndReceipts(n int) (*corpus.MemorySource, []string, []domain.Answer) {
	src := corpus.NewMemorySource()
	var ids []string
	var answers []domain.Answer
	for i := 0; i < n; i++ {
		inv := fmt.Sprintf("inv-%d", i)
		src.Add(domain.Document{
			ID:     inv,
			Pages:  []domain.Page{{Text: fmt.Sprintf("Invoice number %d total amount due ref%d", i, i)}},
			Fields: []domain.Field{{Name: "Total", Value: fmt.Sprintf("%d.50", 100+i)}},
		})
		rec := fmt.Sprintf("rec-%d", i)
		src.Add(domain.Document{
			ID:     rec,
			Pages:  []domain.Page{{Text: fmt.Sprintf("Receipt thank you paid cash ref%d", i)}},
			Fields: []domain.Field{{Name: "Total", Value: fmt.Sprintf("%d", 5+i)}},
		})
		ids = append(ids, inv, rec)
		answers = append(answers, domain.Answer{Category: "Invoice"}, domain.Answer{Category: "Receipt"})
	}
	return src, ids, answers
}

func newTrainer(t *testing.T, opts Options) *Trainer {
	trainer, err := NewTrainer(logs.GetLoggerFromLevel(slog.LevelDebug), opts, nil)
	require.NoError(t, err)
	return trainer
}

func testOptions(kind classifier.Kind) Options {
	opts := DefaultOptions()
	opts.Classifier.Kind = kind
	opts.Seed = seed(3)
	opts.Workers = 2
	return opts
}

func TestNegotiateVersion(t *testing.T) {
	tests := []struct {
		name     string
		features []Feature
		expected int
	}{
		{name: "Base model", features: []Feature{FeatureBase}, expected: 1},
		{name: "Shingles", features: []Feature{FeatureBase, FeatureShingles}, expected: 2},
		{name: "Neural network", features: []Feature{FeatureBase, FeatureNeuralNetwork, FeatureShingles}, expected: 3},
		{name: "Stop phrases", features: []Feature{FeatureStopPhrases}, expected: 4},
		{name: "Unknown feature needs the current version", features: []Feature{"hologram"}, expected: CurrentVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NegotiateVersion(tt.features))
		})
	}
}

func TestCompatible(t *testing.T) {
	req := require.New(t)
	req.True(Compatible(4, 2, []Feature{FeatureCalibration}))
	req.False(Compatible(4, 1, []Feature{FeatureCalibration}))
	req.False(Compatible(4, 5, []Feature{FeatureBase}))
	req.False(Compatible(4, 0, nil))
}

func TestFeatures(t *testing.T) {
	req := require.New(t)
	opts := DefaultOptions()
	opts.Encoder.Mode = domain.Pagination
	opts.Encoder.Text.Tokenizer = textproc.Options{ShingleSize: 2, StopPhrases: []string{"page"}}
	opts.Encoder.Fields = []vectorizer.FieldOptions{{Name: "Address", Tokenize: true}}
	opts.Classifier.Kind = classifier.NeuralNetwork

	req.ElementsMatch([]Feature{
		FeatureBase, FeaturePagination, FeatureShingles, FeatureStopPhrases,
		FeatureTokenizedField, FeatureNeuralNetwork,
	}, Features(opts.Encoder, opts.Classifier))
}

func TestTrainer_TrainSaveLoad(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(8)
	trainer := newTrainer(t, testOptions(classifier.OneVsOne))

	// Given a trained one-vs-one model
	summary, err := trainer.Train(ctx, src, ids, answers, TrainRequest{})
	req.NoError(err)
	req.Equal(16, summary.Examples)
	req.Equal(summary.Examples, summary.TrainExamples+summary.TestExamples)
	req.NotNil(summary.Train)
	req.NotNil(summary.Test)
	req.Equal(summary.TestExamples, summary.Test.Total())
	req.Equal(1.0, summary.Train.Agreement())
	req.Greater(summary.Complexity, 0.0)

	// When it is saved and loaded back
	model, err := trainer.Model()
	req.NoError(err)
	var buf bytes.Buffer
	version, err := Save(&buf, model)
	req.NoError(err)
	req.Equal(1, version)
	loaded, err := Load(logs.GetLoggerFromLevel(slog.LevelDebug), &buf)
	req.NoError(err)

	// Then layout, predictions and confusion totals are unchanged
	req.Equal(model.ID, loaded.ID)
	req.Equal(1, loaded.Version)
	req.True(model.CreatedAt.Equal(loaded.CreatedAt))
	req.Equal(model.Encoder.FeatureVectorLength(), loaded.Encoder.FeatureVectorLength())
	req.Equal(summary.Test.Total(), loaded.Summary.Test.Total())
	req.Equal(summary.Train.Agreement(), loaded.Summary.Train.Agreement())

	restored := FromModel(logs.GetLoggerFromLevel(slog.LevelDebug), loaded, nil)
	want, err := trainer.PredictBatch(ctx, src, ids)
	req.NoError(err)
	got, err := restored.PredictBatch(ctx, src, ids)
	req.NoError(err)
	req.Equal(want, got)

	// And the restored model can be evaluated without retraining
	evaluated, err := restored.Train(ctx, src, ids, answers, TrainRequest{TestOnly: true})
	req.NoError(err)
	req.Equal(len(ids), evaluated.Test.Total())
	req.Nil(evaluated.Train)
}

func TestTrainer_PredictAndMissingDocuments(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(6)
	trainer := newTrainer(t, testOptions(classifier.OneVsRest))
	_, err := trainer.Train(ctx, src, ids, answers, TrainRequest{})
	req.NoError(err)

	results, err := trainer.Predict(ctx, domain.Document{
		ID:     "new",
		Pages:  []domain.Page{{Text: "Invoice number 99 total amount due"}},
		Fields: []domain.Field{{Name: "Total", Value: "199.50"}},
	})
	req.NoError(err)
	req.Len(results, 1)
	req.Equal("new", results[0].Source)
	req.Equal("Invoice", results[0].Prediction.Category)

	batch, err := trainer.PredictBatch(ctx, src, []string{"inv-1", "missing", "rec-2"})
	req.NoError(err)
	req.Len(batch, 2)
	req.Equal("inv-1", batch[0].Source)
	req.Equal("rec-2", batch[1].Source)
}

func TestTrainer_MinConfidenceMapsToNegative(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(6)
	opts := testOptions(classifier.NeuralNetwork)
	opts.MinConfidence = 1
	trainer := newTrainer(t, opts)
	_, err := trainer.Train(ctx, src, ids, answers, TrainRequest{})
	req.NoError(err)

	results, err := trainer.PredictBatch(ctx, src, ids[:2])
	req.NoError(err)
	for _, r := range results {
		req.Equal("OTHER", r.Prediction.Category)
		req.Zero(r.Prediction.Code)
		req.True(r.Prediction.HasScore)
	}
}

func TestTrainer_StateErrors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(3)
	trainer := newTrainer(t, testOptions(classifier.OneVsOne))

	_, err := trainer.Train(ctx, src, ids, answers, TrainRequest{TestOnly: true})
	req.ErrorIs(err, errors.ErrNotTrained)
	_, err = trainer.Model()
	req.ErrorIs(err, errors.ErrEncodingsNotComputed)
	_, err = trainer.Predict(ctx, domain.Document{ID: "x"})
	req.ErrorIs(err, errors.ErrNotTrained)
	_, err = trainer.IncrementalTrain(ctx, src, ids, answers)
	req.ErrorIs(err, errors.ErrIncrementalUnsupported)

	// Computing encodings alone leaves the classifier untrained
	req.NoError(trainer.ComputeEncodings(ctx, src, ids, answers))
	req.True(trainer.Encoder().AreEncodingsComputed())
	_, err = trainer.Model()
	req.ErrorIs(err, errors.ErrNotTrained)
}

func TestTrainer_IncrementalTrain(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(6)
	trainer := newTrainer(t, testOptions(classifier.NeuralNetwork))

	// Given no encodings, the first batch computes them
	first, err := trainer.IncrementalTrain(ctx, src, ids[:6], answers[:6])
	req.NoError(err)
	req.Equal(6, first.Examples)
	length := trainer.Encoder().FeatureVectorLength()

	// And later batches reuse them
	second, err := trainer.IncrementalTrain(ctx, src, ids[6:], answers[6:])
	req.NoError(err)
	req.Equal(6, second.Examples)
	req.Equal(length, trainer.Encoder().FeatureVectorLength())
	req.True(trainer.Classifier().IsTrained())
}

func TestTrainer_Cancelled(t *testing.T) {
	req := require.New(t)
	src, ids, answers := invoicesAndReceipts(4)
	trainer := newTrainer(t, testOptions(classifier.OneVsOne))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := trainer.Train(ctx, src, ids, answers, TrainRequest{})

	req.True(errors.IsCancellation(err))
	req.False(trainer.Encoder().AreEncodingsComputed())
	req.False(trainer.Classifier().IsTrained())
}

func TestTrainer_CancelledRetrainDropsPreviousModel(t *testing.T) {
	req := require.New(t)
	src, ids, answers := invoicesAndReceipts(6)
	trainer := newTrainer(t, testOptions(classifier.OneVsRest))

	// Given a trained model
	_, err := trainer.Train(context.Background(), src, ids, answers, TrainRequest{})
	req.NoError(err)
	req.True(trainer.Classifier().IsTrained())

	// When training again is cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Train(ctx, src, ids, answers, TrainRequest{})

	// Then nothing of the previous run survives
	req.True(errors.IsCancellation(err))
	req.False(trainer.Encoder().AreEncodingsComputed())
	req.False(trainer.Classifier().IsTrained())
	req.Nil(trainer.Summary())
	_, err = trainer.Model()
	req.ErrorIs(err, errors.ErrEncodingsNotComputed)
}

func envelopeBytes(version int, body, checksum []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(version))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	b = protowire.AppendTag(b, fieldChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, checksum)
	return b
}

func TestLoad_Rejections(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{name: "Newer version", data: envelopeBytes(CurrentVersion+1, []byte(`{}`), nil), err: errors.ErrVersionTooNew},
		{name: "Checksum mismatch", data: envelopeBytes(1, []byte(`{}`), []byte("bad")), err: errors.ErrCorruptModel},
		{name: "Truncated", data: []byte{0x08}, err: errors.ErrCorruptModel},
		{name: "Empty", data: nil, err: errors.ErrCorruptModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(log, tt.data)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestReadHeader(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	src, ids, answers := invoicesAndReceipts(4)
	trainer := newTrainer(t, testOptions(classifier.OneVsRest))
	_, err := trainer.Train(ctx, src, ids, answers, TrainRequest{})
	req.NoError(err)
	model, err := trainer.Model()
	req.NoError(err)

	data, err := Marshal(model)
	req.NoError(err)
	header, err := ReadHeader(data)
	req.NoError(err)
	req.Equal(model.ID, header.ID)
	req.Equal(model.Version, header.Version)
}
