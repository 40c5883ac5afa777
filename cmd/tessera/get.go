package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/pkg/core"
)

var getDepth int

var getCmd = &cobra.Command{
	Use:   "get [type] [id]...",
	Short: "Print an object and the objects it references",
	Long: `Fetch the object of the given type and identifier values and load its
references up to --depth. With a depth of 1 only the object itself is printed;
deeper loads print every loaded object keyed by its key.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer store.Close()

		ctx := context.Background()
		ids := make([]any, len(args)-1)
		for i, id := range args[1:] {
			ids[i] = id
		}

		root, err := store.FindByID(ctx, args[0], ids...)
		if err != nil {
			fatal("Failed to get object", err)
		}
		if getDepth <= 1 {
			res, err := store.Codec().EncodeRoot(root)
			if err != nil {
				fatal("Failed to encode object", err)
			}
			if err := printDoc(res.Doc); err != nil {
				fatal("Failed to print object", err)
			}
			return
		}

		if err := store.Load(ctx, root, getDepth); err != nil {
			fatal("Failed to load references", err)
		}
		cache := root.Cache()
		out := make(map[string]core.Value, cache.Len())
		for _, key := range cache.Keys() {
			inst, _ := cache.Get(key)
			if !inst.Loaded() {
				continue
			}
			res, err := store.Codec().EncodeRoot(inst)
			if err != nil {
				fatal("Failed to encode object", err)
			}
			out[key] = res.Doc
		}
		if err := printDoc(out); err != nil {
			fatal("Failed to print objects", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().IntVarP(&getDepth, "depth", "d", 1, "Reference levels to load (1 = the object only)")
	getCmd.Flags().BoolVar(&outputYAML, "yaml", false, "Output in YAML format")
}
