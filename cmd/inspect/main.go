package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"

	"doc-classifier/repositories"
	"doc-classifier/training"

	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/models"`
	// COLOURS enables colourised confusion matrices
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatal("Config error: ", err)
	}
	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	name := flag.String("name", "", "Show the reports of the latest model with this name")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	store := repositories.NewBadgerModelStore(db, logs.GetLoggerFromLevel(slog.LevelWarn))
	if *name != "" {
		err = showLatest(context.Background(), os.Stdout, store, *name, config.Colours)
	} else {
		err = listModels(context.Background(), os.Stdout, store)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}

// listModels prints one row per stored envelope.
func listModels(ctx context.Context, w io.Writer, store *repositories.BadgerModelStore) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Model", "Stored at", "Size", "Version", "ID", "Examples", "Features", "Test agreement"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	names, err := store.Names(ctx)
	if err != nil {
		return err
	}
	logger := logs.GetLoggerFromLevel(slog.LevelWarn)
	for _, name := range names {
		entries, err := store.List(ctx, name)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			row := []string{name, entry.StoredAt.Format("2006-01-02 15:04:05"), strconv.Itoa(entry.Size), "?", "", "", "", ""}
			data, err := store.Get(ctx, entry.Key)
			if err != nil {
				return err
			}
			header, err := training.ReadHeader(data)
			if header.Version > 0 {
				row[3] = strconv.Itoa(header.Version)
				row[4] = header.ID.String()[:8]
			}
			if err != nil {
				// Keep listing: a damaged or newer entry should not hide the others.
				fmt.Fprintf(w, "Error decoding key %s: %v\n", entry.Key, err)
				table.Append(row)
				continue
			}
			model, err := training.Unmarshal(logger, data)
			if err != nil {
				fmt.Fprintf(w, "Error decoding key %s: %v\n", entry.Key, err)
				table.Append(row)
				continue
			}
			if s := model.Summary; s != nil {
				row[5] = strconv.Itoa(s.Examples)
				row[6] = strconv.Itoa(s.Features)
				if s.Test != nil {
					row[7] = fmt.Sprintf("%.1f%%", 100*s.Test.Agreement())
				}
			}
			table.Append(row)
		}
	}
	table.Render()
	return nil
}

func showLatest(ctx context.Context, w io.Writer, store *repositories.BadgerModelStore, name string, colours bool) error {
	data, err := store.Latest(ctx, name)
	if err != nil {
		return err
	}
	model, err := training.Unmarshal(logs.GetLoggerFromLevel(slog.LevelWarn), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Model %s version %d created %s\n", model.ID, model.Version, model.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Mode %s, classifier %s, categories %v\n",
		model.Options.Encoder.Mode, model.Classifier.Kind(), model.Encoder.Answers().Names())
	training.WriteReport(w, model.Summary, colours)
	return nil
}
