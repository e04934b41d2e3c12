package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"doc-classifier/training"
	"doc-classifier/vectorizer"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// withApp builds the shared components, cancels on SIGINT/SIGTERM and
// releases the store once fn returns.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func encodeCmd(flags *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Compute the vocabulary and field encodings of the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				manifest, err := a.readManifest(flags.manifest)
				if err != nil {
					return err
				}
				trainer, err := training.NewTrainer(a.log, a.opts, a.progress)
				if err != nil {
					return configError{err}
				}
				if err := trainer.ComputeEncodings(ctx, a.source, manifest.IDs, manifest.Answers); err != nil {
					return err
				}
				enc := trainer.Encoder()
				cmd.Printf("%d features, categories %v\n", enc.FeatureVectorLength(), enc.Answers().Names())
				writeFieldSummary(cmd.OutOrStdout(), enc.FieldVectorizers())
				if out == "" {
					return nil
				}
				data, err := json.MarshalIndent(enc, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the computed encodings as JSON")
	return cmd
}

// writeFieldSummary prints one line per field vectorizer.
func writeFieldSummary(w io.Writer, fields []*vectorizer.FieldVectorizer) {
	for _, f := range fields {
		if f.Disabled() {
			fmt.Fprintf(w, "  field %s: disabled\n", f.Name())
			continue
		}
		fmt.Fprintf(w, "  field %s: %s, %d features\n", f.Name(), f.Mode(), f.EncodedLength())
	}
}

func trainCmd(flags *globalFlags) *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a classifier on the corpus and store the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				manifest, err := a.readManifest(flags.manifest)
				if err != nil {
					return err
				}
				var (
					trainer *training.Trainer
					summary *training.Summary
				)
				if incremental {
					if trainer, err = a.latest(ctx); err != nil {
						return err
					}
					summary, err = trainer.IncrementalTrain(ctx, a.source, manifest.IDs, manifest.Answers)
				} else {
					if trainer, err = training.NewTrainer(a.log, a.opts, a.progress); err != nil {
						return configError{err}
					}
					summary, err = trainer.Train(ctx, a.source, manifest.IDs, manifest.Answers, training.TrainRequest{})
				}
				if err != nil {
					return err
				}
				training.WriteReport(cmd.OutOrStdout(), summary, a.config.Colours)
				return a.save(ctx, trainer)
			})
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "continue training the stored model without recomputing encodings")
	return cmd
}

func evaluateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score the stored model against the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				manifest, err := a.readManifest(flags.manifest)
				if err != nil {
					return err
				}
				trainer, err := a.latest(ctx)
				if err != nil {
					return err
				}
				summary, err := trainer.Train(ctx, a.source, manifest.IDs, manifest.Answers, training.TrainRequest{TestOnly: true})
				if err != nil {
					return err
				}
				training.WriteReport(cmd.OutOrStdout(), summary, a.config.Colours)
				return nil
			})
		},
	}
}

func predictCmd(flags *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "predict [id...]",
		Short: "Classify documents with the stored model",
		Long: `Classify the given document identifiers, or every document of the manifest when none is given.
With --all every document found under CORPUS_DIR is classified instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				ids := args
				switch {
				case all:
					listed, err := a.source.IDs(ctx)
					if err != nil {
						return err
					}
					ids = listed
				case len(ids) == 0:
					manifest, err := a.readManifest(flags.manifest)
					if err != nil {
						return err
					}
					ids = manifest.IDs
				}
				trainer, err := a.latest(ctx)
				if err != nil {
					return err
				}
				results, err := trainer.PredictBatch(ctx, a.source, ids)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Source", "Category", "Score"})
				table.SetAutoWrapText(false)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.SetBorder(false)
				for _, r := range results {
					score := "-"
					if r.Prediction.HasScore {
						score = strconv.FormatFloat(r.Prediction.Score, 'f', 3, 64)
					}
					table.Append([]string{r.Source, r.Prediction.Category, score})
				}
				table.Render()
				cmd.Printf("%d predictions for %d documents\n", len(results), len(ids))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "classify every document of the corpus directory")
	return cmd
}

