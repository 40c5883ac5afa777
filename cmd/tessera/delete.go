package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/pkg/core"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a stored document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer store.Close()

		remover, ok := store.Bucket().(core.Remover)
		if !ok {
			fatal("Failed to delete document", errors.ErrUnsupported)
		}
		if err := remover.Remove(context.Background(), args[0], ""); err != nil {
			fatal("Failed to delete document", err)
		}
		fmt.Printf("Document '%s' deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
