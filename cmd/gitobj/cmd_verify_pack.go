package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/cmd/ui"
	"github.com/samoht/gitobj/pkg/objects"
)

func newVerifyPackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-pack <pack-digest>",
		Short: "Check a pack's structure against its index",
		Long: `Rescan a registered pack file and cross-check it against its index:
entry boundaries, per-entry checksums, and the trailing digests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := objects.HashFromHex(args[0])
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.VerifyPack(h); err != nil {
				fmt.Println(ui.ErrorMessage(fmt.Sprintf("pack %s is corrupt", h.Short())))
				return err
			}

			count, _ := store.PackObjectCount(h)
			fmt.Println(ui.SuccessMessage("pack verified", ui.PackInfo(h.Hex(), count)))
			return nil
		},
	}
}
