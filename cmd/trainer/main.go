package main

import (
	"context"
	"fmt"
	"os"

	"doc-classifier/errors"

	"github.com/spf13/cobra"
)

// Exit codes reported to the shell.
const (
	exitOK        = 0
	exitRuntime   = 1
	exitConfig    = 2
	exitCancelled = 130 // 128+SIGINT
)

var version = "dev"

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	var flags globalFlags
	rootCmd := &cobra.Command{
		Use:   "trainer",
		Short: "Train and evaluate document classifiers",
		Long: `Trainer turns a corpus of documents into feature vectors, fits a classifier
and stores the resulting model.

Documents are read from CORPUS_DIR as <id>.json or <id>.txt files; the manifest
lists their identifiers and expected answers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetArgs(args)
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env", "", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVarP(&flags.profile, "profile", "p", "", "YAML training profile (overrides TRAINING_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&flags.manifest, "manifest", "m", "manifest.csv", "CSV manifest of the corpus")
	rootCmd.PersistentFlags().StringVarP(&flags.model, "model", "n", "", "model name (overrides MODEL_NAME)")

	rootCmd.AddCommand(
		encodeCmd(&flags),
		trainCmd(&flags),
		evaluateCmd(&flags),
		predictCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Trainer terminated with error: %v\n", err)
		switch {
		case isConfigError(err):
			return exitConfig
		case errors.IsCancellation(err):
			return exitCancelled
		}
		return exitRuntime
	}
	return exitOK
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("trainer %s\n", version)
		},
	}
}
