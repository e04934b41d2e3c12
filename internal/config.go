package internal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"doc-classifier/errors"
	"doc-classifier/training"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Store backends.
const (
	BadgerStore = "badger"
	RedisStore  = "redis"
)

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	CorpusDir        string        `env:"CORPUS_DIR,default=."`
	ProfilePath      string        `env:"TRAINING_PROFILE"`
	ModelName        string        `env:"MODEL_NAME,default=default" validate:"required"`
	Store            string        `env:"MODEL_STORE,default=badger" validate:"oneof=badger redis"`
	BadgerFilepath   string        `env:"BADGER_FILEPATH,default=./data/models"`
	RedisURL         string        `env:"REDIS_URL,default=redis://localhost:6379/0"`
	RedisPrefix      string        `env:"REDIS_PREFIX,default=doc-classifier:"`
	NumberOfWorkers  int           `env:"NUMBER_OF_WORKERS,default=0" validate:"gte=0"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL,default=2s"`
	Colours          bool          `env:"COLOURS,default=true"`
}

// LoadConfig reads the optional .env files, then the process environment.
func LoadConfig(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidOptions, err)
	}
	return config, nil
}

// LoadProfile reads a YAML training profile. An empty path yields the defaults.
func LoadProfile(path string) (training.Options, error) {
	if path == "" {
		return training.DefaultOptions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return training.Options{}, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return ReadProfile(bytes.NewReader(data))
}

// ReadProfile overlays the YAML document on the default training options.
func ReadProfile(r io.Reader) (training.Options, error) {
	opts := training.DefaultOptions()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&opts); err != nil && err != io.EOF {
		return training.Options{}, fmt.Errorf("%w: profile: %v", errors.ErrInvalidOptions, err)
	}
	if err := opts.Validate(); err != nil {
		return training.Options{}, err
	}
	return opts, nil
}
