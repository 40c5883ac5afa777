package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera"
)

var (
	verbose     bool
	adapter     string
	dir         string
	schemaFiles []string
	format      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Store typed object graphs in a document store",
	Long: `Tessera maps registered object types to documents in a key/value store.
Objects refer to each other by reference markers and are loaded lazily to a
chosen depth.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&adapter, "adapter", "a", tessera.AdapterFS, "Storage adapter (fs, badger)")
	rootCmd.PersistentFlags().StringVarP(&dir, "dir", "C", "", "Storage directory (default: nearest project root or the working directory)")
	rootCmd.PersistentFlags().StringSliceVar(&schemaFiles, "schema", nil, "Schema file to load (default: tessera.yaml in the storage directory)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "File format of new fs documents (json, yaml)")
}

// storeDir returns the --dir flag, the project root above the working
// directory, or the working directory itself.
func storeDir() (string, error) {
	if dir != "" {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if root, err := tessera.FindRoot(wd); err == nil {
		return root, nil
	}
	return wd, nil
}

func storeOptions(extra ...tessera.Option) []tessera.Option {
	opts := []tessera.Option{
		tessera.WithLogger(slog.Default()),
		tessera.WithAdapter(adapter),
		tessera.WithMustExist(true),
	}
	for _, f := range schemaFiles {
		opts = append(opts, tessera.WithSchemaFile(f))
	}
	if format != "" {
		opts = append(opts, tessera.WithFormat(format))
	}
	return append(opts, extra...)
}

func openStore(extra ...tessera.Option) (*tessera.Store, error) {
	path, err := storeDir()
	if err != nil {
		return nil, err
	}
	return tessera.Open(path, storeOptions(extra...)...)
}
