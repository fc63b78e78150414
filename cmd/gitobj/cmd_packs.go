package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/cmd/ui"
)

func newPacksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packs",
		Short: "List the registered packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			packs := store.Packs()
			if len(packs) == 0 {
				fmt.Println(ui.ErrorMessage("no packs"))
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Pack", "Objects", "Size")

			for _, h := range packs {
				info, statErr := os.Stat(store.Layout().PackFile(h.Hex()))
				size := "?"
				if statErr == nil {
					size = fmt.Sprintf("%d bytes", info.Size())
				}

				count := "?"
				if n, cerr := store.PackObjectCount(h); cerr == nil {
					count = fmt.Sprintf("%d", n)
				}

				table.Append(ui.Yellow(h.Hex()), count, size)
			}

			table.Render()
			return nil
		},
	}
}
