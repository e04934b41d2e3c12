package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"doc-classifier/contract"
	"doc-classifier/corpus"
	"doc-classifier/internal"
	"doc-classifier/repositories"
	"doc-classifier/runtime"
	"doc-classifier/training"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

type globalFlags struct {
	envFile  string
	profile  string
	manifest string
	model    string
}

// configError marks failures that happen before any work starts.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func isConfigError(err error) bool {
	var ce configError
	return stderrors.As(err, &ce)
}

// app holds the components shared by every command.
type app struct {
	config   internal.Config
	opts     training.Options
	log      *slog.Logger
	source   *corpus.DirectorySource
	progress *runtime.LogProgressSink
	store    contract.ModelStore
	close    func()
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	var files []string
	if flags.envFile != "" {
		files = append(files, flags.envFile)
	}
	config, err := internal.LoadConfig(files...)
	if err != nil {
		return nil, configError{err}
	}
	if flags.model != "" {
		config.ModelName = flags.model
	}
	profile := config.ProfilePath
	if flags.profile != "" {
		profile = flags.profile
	}
	opts, err := internal.LoadProfile(profile)
	if err != nil {
		return nil, configError{err}
	}
	if config.NumberOfWorkers > 0 {
		opts.Workers = config.NumberOfWorkers
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	a := &app{
		config:   config,
		opts:     opts,
		log:      logger,
		source:   corpus.NewDirectorySource(config.CorpusDir, logger),
		progress: runtime.NewLogProgressSink(logger, config.ProgressInterval),
		close:    func() {},
	}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.config.Store {
	case internal.RedisStore:
		store, err := repositories.NewRedisModelStore(ctx, a.config.RedisURL, a.config.RedisPrefix, a.log)
		if err != nil {
			return err
		}
		a.store = store
		a.close = func() { _ = store.Close() }
	default:
		db, err := badger.Open(badger.DefaultOptions(a.config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("opening badger at %s: %w", a.config.BadgerFilepath, err)
		}
		a.store = repositories.NewBadgerModelStore(db, a.log)
		a.close = func() { _ = db.Close() }
	}
	return nil
}

func (a *app) readManifest(path string) (corpus.Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return corpus.Manifest{}, fmt.Errorf("opening manifest: %w", err)
	}
	defer file.Close()
	return corpus.ReadManifest(file)
}

// latest loads the most recent model stored under the configured name.
func (a *app) latest(ctx context.Context) (*training.Trainer, error) {
	data, err := a.store.Latest(ctx, a.config.ModelName)
	if err != nil {
		return nil, err
	}
	model, err := training.Unmarshal(a.log, data)
	if err != nil {
		return nil, err
	}
	a.log.Info("Model loaded", "model", a.config.ModelName, "version", model.Version, "id", model.ID)
	return training.FromModel(a.log, model, a.progress), nil
}

func (a *app) save(ctx context.Context, trainer *training.Trainer) error {
	model, err := trainer.Model()
	if err != nil {
		return err
	}
	data, err := training.Marshal(model)
	if err != nil {
		return err
	}
	entry, err := a.store.Put(ctx, a.config.ModelName, data)
	if err != nil {
		return err
	}
	a.log.Info("Model saved", "key", entry.Key, "size", entry.Size)
	return nil
}
