package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/cmd/ui"
	"github.com/samoht/gitobj/pkg/odb/pack"
)

func newRepackCmd() *cobra.Command {
	var window int
	var depth int

	cmd := &cobra.Command{
		Use:   "repack",
		Short: "Gather every object into a single new pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := store.Repack(cmd.Context(), window, depth)
			if err != nil {
				return fmt.Errorf("repack failed: %w", err)
			}

			fmt.Println(ui.SuccessMessage("repacked into", h.Hex()))
			return nil
		},
	}

	cmd.Flags().IntVar(&window, "window", pack.DefaultWindow, "Delta candidate window")
	cmd.Flags().IntVar(&depth, "depth", pack.DefaultDepth, "Delta chain depth cap")

	return cmd
}
