// Package training runs the encode, split, fit and score pipeline and
// persists the resulting models.
package training

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"doc-classifier/classifier"
	"doc-classifier/contract"
	"doc-classifier/domain"
	"doc-classifier/encoder"
	"doc-classifier/errors"
	"doc-classifier/evaluation"
	"doc-classifier/runtime"
	"doc-classifier/sampling"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

// Summary describes one training or evaluation run.
type Summary struct {
	Examples      int                         `json:"examples"`
	TrainExamples int                         `json:"train_examples"`
	TestExamples  int                         `json:"test_examples"`
	Features      int                         `json:"features"`
	Complexity    float64                     `json:"complexity,omitempty"`
	Train         *evaluation.ConfusionMatrix `json:"train,omitempty"`
	Test          *evaluation.ConfusionMatrix `json:"test,omitempty"`
	Duration      time.Duration               `json:"duration"`
	MemoryRSS     uint64                      `json:"memory_rss,omitempty"`
}

// TrainRequest tunes a single Train call.
type TrainRequest struct {
	// TestOnly scores the current classifier without fitting it.
	TestOnly bool
}

// Trainer drives an encoder and a classifier through their lifecycle.
type Trainer struct {
	log      *slog.Logger
	opts     Options
	progress contract.ProgressSink

	enc     *encoder.Encoder
	clf     classifier.Classifier
	summary *Summary
}

func NewTrainer(log *slog.Logger, opts Options, progress contract.ProgressSink) (*Trainer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withWorkers()
	if progress == nil {
		progress = contract.NopProgress{}
	}
	enc, err := encoder.New(log, opts.Encoder, progress)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.New(opts.Classifier)
	if err != nil {
		return nil, err
	}
	return &Trainer{log: log, opts: opts, progress: progress, enc: enc, clf: clf}, nil
}

// FromModel wraps a loaded model so it can predict or be evaluated again.
func FromModel(log *slog.Logger, m *Model, progress contract.ProgressSink) *Trainer {
	if progress == nil {
		progress = contract.NopProgress{}
	}
	return &Trainer{
		log:      log,
		opts:     m.Options,
		progress: progress,
		enc:      m.Encoder,
		clf:      m.Classifier,
		summary:  m.Summary,
	}
}

func (t *Trainer) Encoder() *encoder.Encoder          { return t.enc }
func (t *Trainer) Classifier() classifier.Classifier { return t.clf }
func (t *Trainer) Summary() *Summary                 { return t.summary }

// ComputeEncodings recomputes the encodings. Any trained classifier is
// discarded first since its input layout no longer holds, even when the
// computation fails or is cancelled.
func (t *Trainer) ComputeEncodings(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer) error {
	if err := t.resetClassifier(); err != nil {
		return err
	}
	t.progress.Report(domain.Status{Message: "Computing encodings"})
	return t.enc.ComputeEncodings(ctx, src, ids, answers)
}

func (t *Trainer) resetClassifier() error {
	clf, err := classifier.New(t.opts.Classifier)
	if err != nil {
		return err
	}
	t.clf, t.summary = clf, nil
	return nil
}

// Train computes encodings, fits the classifier on a stratified subset and
// scores both subsets. With TestOnly, or a zero TrainFraction, the current
// classifier is scored on the whole set instead.
func (t *Trainer) Train(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer, req TrainRequest) (*Summary, error) {
	if req.TestOnly || t.opts.TrainFraction == 0 {
		return t.evaluate(ctx, src, ids, answers)
	}
	start := time.Now()
	if err := t.ComputeEncodings(ctx, src, ids, answers); err != nil {
		return nil, err
	}
	ds, err := t.enc.TrainingData(ctx)
	if err != nil {
		return nil, err
	}

	trainSet, testSet := ds, (*encoder.Dataset)(nil)
	if t.opts.TrainFraction < 1 {
		trainIdx, testIdx := sampling.StratifiedSplit(ds.Codes, t.opts.TrainFraction, sampling.NewRand(t.opts.Seed))
		trainSet, testSet = ds.Subset(trainIdx), ds.Subset(testIdx)
	}

	t.progress.Report(domain.Status{Message: "Training %s on %d examples", Args: []any{t.clf.Kind(), trainSet.Len()}})
	if err := t.clf.Train(ctx, trainSet.Features, trainSet.Codes, t.opts.Seed); err != nil {
		// A failed fit must not leave a half-trained classifier behind.
		if resetErr := t.resetClassifier(); resetErr != nil {
			return nil, stderrors.Join(err, resetErr)
		}
		return nil, err
	}

	summary := &Summary{
		Examples:      ds.Len(),
		TrainExamples: trainSet.Len(),
		Features:      t.enc.FeatureVectorLength(),
	}
	if svm, ok := t.clf.(*classifier.SVM); ok {
		summary.Complexity = svm.Complexity()
	}
	if summary.Train, err = t.score(ctx, trainSet); err != nil {
		return nil, err
	}
	if testSet != nil {
		summary.TestExamples = testSet.Len()
		if summary.Test, err = t.score(ctx, testSet); err != nil {
			return nil, err
		}
	}
	t.finish(summary, start)
	return summary, nil
}

func (t *Trainer) evaluate(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer) (*Summary, error) {
	if !t.clf.IsTrained() {
		return nil, errors.ErrNotTrained
	}
	start := time.Now()
	examples, err := t.enc.Load(ctx, src, ids, answers)
	if err != nil {
		return nil, err
	}
	ds, err := t.enc.Encode(ctx, examples)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Examples: ds.Len(), TestExamples: ds.Len(), Features: t.enc.FeatureVectorLength()}
	if summary.Test, err = t.score(ctx, ds); err != nil {
		return nil, err
	}
	t.finish(summary, start)
	return summary, nil
}

// IncrementalTrain keeps fitting the classifier on new examples. The
// encodings are computed from this batch only when they do not exist yet.
func (t *Trainer) IncrementalTrain(ctx context.Context, src contract.DocumentSource, ids []string, answers []domain.Answer) (*Summary, error) {
	incremental, ok := t.clf.(classifier.IncrementalClassifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrIncrementalUnsupported, t.clf.Kind())
	}
	start := time.Now()
	var ds *encoder.Dataset
	if !t.enc.AreEncodingsComputed() {
		if err := t.ComputeEncodings(ctx, src, ids, answers); err != nil {
			return nil, err
		}
		var err error
		if ds, err = t.enc.TrainingData(ctx); err != nil {
			return nil, err
		}
		incremental = t.clf.(classifier.IncrementalClassifier)
	} else {
		examples, err := t.enc.Load(ctx, src, ids, answers)
		if err != nil {
			return nil, err
		}
		if ds, err = t.enc.Encode(ctx, examples); err != nil {
			return nil, err
		}
	}
	if ds.Len() == 0 {
		return nil, errors.ErrNoExamples
	}
	if err := incremental.IncrementalTrain(ctx, ds.Features, ds.Codes); err != nil {
		return nil, err
	}

	summary := &Summary{Examples: ds.Len(), TrainExamples: ds.Len(), Features: t.enc.FeatureVectorLength()}
	var err error
	if summary.Train, err = t.score(ctx, ds); err != nil {
		return nil, err
	}
	t.finish(summary, start)
	return summary, nil
}

// score predicts every example in parallel and tallies the results.
func (t *Trainer) score(ctx context.Context, ds *encoder.Dataset) (*evaluation.ConfusionMatrix, error) {
	predicted := make([]int, ds.Len())
	err := runtime.ParallelFor(ctx, ds.Len(), t.opts.Workers, runtime.NoScratch,
		func(_ context.Context, i int, _ struct{}) error {
			answer, err := t.clf.ComputeAnswer(ds.Features[i])
			if err != nil {
				return fmt.Errorf("score %s: %w", ds.Sources[i], err)
			}
			predicted[i] = t.applyConfidence(answer).Code
			return nil
		})
	if err != nil {
		return nil, err
	}
	return evaluation.Tally(t.enc.Answers().Names(), ds.Codes, predicted, t.negatives())
}

func (t *Trainer) negatives() []string {
	if len(t.opts.Negatives) > 0 {
		return t.opts.Negatives
	}
	return []string{t.enc.Answers().Name(0)}
}

func (t *Trainer) applyConfidence(a classifier.Answer) classifier.Answer {
	if a.HasScore && a.Score < t.opts.MinConfidence {
		a.Code = 0
	}
	return a
}

func (t *Trainer) finish(summary *Summary, start time.Time) {
	summary.Duration = time.Since(start)
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			summary.MemoryRSS = mem.RSS
		}
	}
	t.summary = summary
	args := []any{
		"examples", summary.Examples,
		"features", summary.Features,
		"duration", summary.Duration,
		"rss", summary.MemoryRSS,
	}
	if summary.Complexity > 0 {
		args = append(args, "complexity", summary.Complexity)
	}
	if summary.Train != nil {
		args = append(args, "train_agreement", summary.Train.Agreement())
	}
	if summary.Test != nil {
		args = append(args, "test_agreement", summary.Test.Agreement())
	}
	t.log.Info("Run finished", args...)
}

// Result is the prediction for one example cut out of a document.
type Result struct {
	Source     string
	Prediction domain.Prediction
}

// Predict classifies every example of doc.
func (t *Trainer) Predict(ctx context.Context, doc domain.Document) ([]Result, error) {
	s, err := t.enc.NewScratch()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.predict(s, doc)
}

func (t *Trainer) predict(s *encoder.Scratch, doc domain.Document) ([]Result, error) {
	if !t.clf.IsTrained() {
		return nil, errors.ErrNotTrained
	}
	examples, vectors, err := t.enc.FeatureVectors(s, doc)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(examples))
	for i, vec := range vectors {
		answer, err := t.clf.ComputeAnswer(vec)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", examples[i].Source, err)
		}
		answer = t.applyConfidence(answer)
		results[i] = Result{
			Source: examples[i].Source,
			Prediction: domain.Prediction{
				Category: t.enc.Answers().Name(answer.Code),
				Code:     answer.Code,
				Score:    answer.Score,
				HasScore: answer.HasScore,
			},
		}
	}
	return results, nil
}

// PredictBatch classifies many documents in parallel, in input order.
// Missing documents are skipped with a warning.
func (t *Trainer) PredictBatch(ctx context.Context, src contract.DocumentSource, ids []string) ([]Result, error) {
	if !t.clf.IsTrained() {
		return nil, errors.ErrNotTrained
	}
	var counter runtime.Counter
	slots := make([][]Result, len(ids))
	err := runtime.ParallelFor(ctx, len(ids), t.opts.Workers, t.enc.NewScratch,
		func(ctx context.Context, i int, s *encoder.Scratch) error {
			doc, err := src.Document(ctx, ids[i])
			if stderrors.Is(err, errors.ErrDocumentNotFound) {
				counter.IncrSkipped()
				t.log.Warn("Skipping missing document", "path", ids[i], "error", err)
				return nil
			}
			if err != nil {
				counter.IncrFailed()
				return fmt.Errorf("load %s: %w", ids[i], err)
			}
			if slots[i], err = t.predict(s, doc); err != nil {
				counter.IncrFailed()
				return err
			}
			counter.IncrProcessed()
			t.progress.Report(domain.Status{Message: "Predicting", Delta: 1})
			return nil
		})
	if err != nil {
		return nil, err
	}
	stats := counter.Snapshot()
	t.log.Debug("Batch predicted", "processed", stats.Processed, "skipped", stats.Skipped)
	return lo.Flatten(slots), nil
}

// Model snapshots the trained state for persistence.
func (t *Trainer) Model() (*Model, error) {
	if !t.enc.AreEncodingsComputed() {
		return nil, errors.ErrEncodingsNotComputed
	}
	if !t.clf.IsTrained() {
		return nil, errors.ErrNotTrained
	}
	return &Model{
		ID:         uuid.New(),
		Version:    CurrentVersion,
		CreatedAt:  time.Now().UTC(),
		Options:    t.opts,
		Encoder:    t.enc,
		Classifier: t.clf,
		Summary:    t.summary,
	}, nil
}
