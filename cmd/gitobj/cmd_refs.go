package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/cmd/ui"
)

func newRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs",
		Short: "List references and their resolved digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			graph, err := store.Refs().Graph(cmd.Context())
			if err != nil {
				return err
			}
			names, err := store.Refs().List()
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Println(ui.ErrorMessage("no references"))
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Reference", "Digest")

			for _, name := range names {
				h, ok := graph[name]
				digest := "(dangling)"
				if ok {
					digest = h.Hex()
				}
				table.Append(ui.Blue(name), ui.Yellow(digest))
			}

			table.Render()
			return nil
		},
	}
}
