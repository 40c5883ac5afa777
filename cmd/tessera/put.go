package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/pkg/adapters/fs"
)

var putCmd = &cobra.Command{
	Use:   "put [key] [file]",
	Short: "Store a JSON or YAML document under a key",
	Long: `Parse the file and write it under key, replacing any existing document.
Documents tagged as a registered type are decoded first, so shape errors are
reported before anything is written.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, file := args[0], args[1]

		ext := strings.ToLower(filepath.Ext(file))
		serializer, ok := fs.DefaultSerializers()[ext]
		if !ok {
			fatal("Unsupported file", fmt.Errorf("unknown extension %q", ext))
		}
		data, err := os.ReadFile(file)
		if err != nil {
			fatal("Failed to read file", err)
		}
		doc, err := serializer.Parse(data)
		if err != nil {
			fatal("Failed to parse file", err)
		}

		store, err := openStore()
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer store.Close()

		desc, err := store.Catalog().Resolve(doc)
		if err != nil {
			fatal("Invalid document", err)
		}
		if desc != nil {
			inst, err := store.Codec().DecodeRoot(doc, desc.Name, key, nil)
			if err != nil {
				fatal("Invalid document", err)
			}
			if want, err := inst.Key(); err == nil && want != key {
				slog.Warn("key differs from the one derived from identifiers", "key", key, "derived", want)
			}
		}

		token, err := store.Bucket().Set(context.Background(), key, doc, "")
		if err != nil {
			fatal("Failed to store document", err)
		}
		slog.Debug("document stored", "key", key, "token", token)
		fmt.Printf("Document '%s' saved.\n", key)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
