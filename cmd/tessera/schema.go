package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/pkg/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect schema files",
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check [file]...",
	Short: "Validate schema files",
	Long:  `Register the types of every file on one registry and check that all field types resolve.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := schema.NewRegistry()
		for _, file := range args {
			if _, err := schema.LoadFile(r, file); err != nil {
				fatal("Invalid schema", err)
			}
		}
		catalog, err := r.Freeze()
		if err != nil {
			fatal("Invalid schema", err)
		}

		for _, name := range catalog.Names() {
			desc, _ := catalog.Lookup(name)
			fmt.Println(describeType(desc))
		}
	},
}

func describeType(d *schema.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Name)
	if d.Embed {
		b.WriteString(" (embedded)")
	}
	fmt.Fprintf(&b, " id=[%s]", strings.Join(d.ID, ","))
	for _, k := range d.DiscriminatorKeys() {
		fmt.Fprintf(&b, " %s=%s", k, d.Discriminators[k])
	}
	for _, f := range d.Fields {
		b.WriteString("\n  ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Type)
		if f.Subtype != "" {
			b.WriteString("<" + f.Subtype + ">")
		}
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.ReadOnly {
			flags = append(flags, "readonly")
		}
		if f.Auto != schema.AutoNone {
			flags = append(flags, "auto="+string(f.Auto))
		}
		if len(flags) > 0 {
			b.WriteString(" (" + strings.Join(flags, ", ") + ")")
		}
	}
	return b.String()
}

func init() {
	schemaCmd.AddCommand(schemaCheckCmd)
	rootCmd.AddCommand(schemaCmd)
}
