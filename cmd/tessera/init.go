package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera"
)

const starterSchema = `# Types stored in this directory.
types:
  - name: Note
    fields:
      title: {type: string, required: true}
      tags: {type: List, subtype: string}
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a tessera project",
	Long:  `Create the .tessera directory and a starter tessera.yaml schema, keeping an existing schema.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := "."
		if len(args) == 1 {
			target = args[0]
		} else if dir != "" {
			target = dir
		}

		if err := os.MkdirAll(filepath.Join(target, tessera.DefaultSystemDir), 0755); err != nil {
			fatal("Failed to create system directory", err)
		}

		schemaPath := filepath.Join(target, tessera.SchemaFile)
		if _, err := os.Stat(schemaPath); errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(schemaPath, []byte(starterSchema), 0644); err != nil {
				fatal("Failed to write schema", err)
			}
		}

		abs, _ := filepath.Abs(target)
		fmt.Println("Initialized tessera project in", abs)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
