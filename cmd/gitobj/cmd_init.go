package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/cmd/ui"
	"github.com/samoht/gitobj/pkg/odb"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize an object database",
		Long: `Initialize a git directory at the given path (default: ./.git).
Creates the objects, pack, refs, and tmp directories and a HEAD pointing at
refs/heads/master.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			absPath, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}

			dir := filepath.Join(absPath, ".git")
			store, err := odb.Open(dir)
			if err != nil {
				return fmt.Errorf("failed to initialize object database: %w", err)
			}
			defer store.Close()

			fmt.Println(ui.SuccessMessage("Initialized object database in", dir))
			return nil
		},
	}
}
