package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List stored keys",
	Long:  `List the stored keys, optionally filtered by a glob pattern such as "person_*" or "blog/**".`,
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

		keys, err := store.Keys(context.Background(), pattern)
		if err != nil {
			fatal("Failed to list keys", err)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(keys); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
