package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samoht/gitobj/pkg/objects"
)

func newCatFileCmd() *cobra.Command {
	var showType bool
	var showSize bool
	var prettyPrint bool

	cmd := &cobra.Command{
		Use:   "cat-file <hash>",
		Short: "Show an object's type, size, or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := objects.HashFromHex(args[0])
			if err != nil {
				return err
			}

			modes := 0
			for _, on := range []bool{showType, showSize, prettyPrint} {
				if on {
					modes++
				}
			}
			if modes != 1 {
				return fmt.Errorf("exactly one of -t, -s, -p is required")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			switch {
			case showType:
				kind, err := store.Kind(h)
				if err != nil {
					return err
				}
				fmt.Println(kind)

			case showSize:
				size, err := store.Size(h)
				if err != nil {
					return err
				}
				fmt.Println(size)

			case prettyPrint:
				obj, err := store.Read(h)
				if err != nil {
					return err
				}
				return prettyPrintObject(obj)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "Show the object's type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "Show the object's payload size")
	cmd.Flags().BoolVarP(&prettyPrint, "pretty", "p", false, "Pretty-print the object's content")

	return cmd
}

// prettyPrintObject renders an object the way git cat-file -p does: blobs
// and commits raw, trees line per entry.
func prettyPrintObject(obj objects.Object) error {
	switch o := obj.(type) {
	case *objects.Tree:
		for _, e := range o.Entries() {
			kind := objects.BlobKind
			if e.IsDir() {
				kind = objects.TreeKind
			} else if e.Mode == objects.ModeSubmodule {
				kind = objects.CommitKind
			}
			mode := e.Mode
			if len(mode) == 5 {
				mode = "0" + mode
			}
			fmt.Printf("%s %s %s\t%s\n", mode, kind, e.Hash.Hex(), e.Name)
		}
		return nil

	default:
		payload, err := obj.Payload()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(payload)
		return err
	}
}
