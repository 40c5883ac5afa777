package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/pkg/adapters/lifecycle"
)

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Print changes to stored documents until interrupted",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}

		store, err := openStore()
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, err := store.Watch(ctx, pattern)
		if err != nil {
			fatal("Failed to watch", err)
		}
		src := lifecycle.NewSource(events, lifecycle.WithCatalog(store.Catalog()))
		if err := src.Start(ctx); err != nil {
			fatal("Failed to watch", err)
		}

		fmt.Fprintln(os.Stderr, "Watching for changes (Ctrl+C to stop)...")
		for ev := range src.Events() {
			fmt.Printf("%s %s\n", time.Now().Format(time.TimeOnly), ev)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
