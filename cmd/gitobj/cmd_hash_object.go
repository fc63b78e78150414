package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/pkg/objects"
)

func newHashObjectCmd() *cobra.Command {
	var write bool
	var kindName string

	cmd := &cobra.Command{
		Use:   "hash-object [file]",
		Short: "Compute an object digest, optionally storing the object",
		Long: `Compute the digest of a file's content as an object of the given type.
With -w the object is written to the database. Reads stdin when no file is
given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := objects.ParseKind(kindName)
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 0 {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			if !write {
				fmt.Println(objects.ComputeHash(kind, data).Hex())
				return nil
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := store.WriteInflated(kind, data)
			if err != nil {
				return fmt.Errorf("failed to write object: %w", err)
			}
			fmt.Println(h.Hex())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the object into the database")
	cmd.Flags().StringVarP(&kindName, "type", "t", "blob", "Object type (blob, tree, commit, tag)")

	return cmd
}
