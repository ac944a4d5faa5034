package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RidgeA/pubsub-rpc/internal/catalog"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the functions that can be served and their subjects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSUBJECT")
			for _, e := range catalog.New(cmd.OutOrStdout()).All() {
				fmt.Fprintf(w, "%s\t%s\n", e.Path(), e.Subject())
			}
			return w.Flush()
		},
	}
}
