package odb

import (
	"github.com/samoht/gitobj/pkg/objects"
)

// FoldFunc accumulates state over one visited object.
type FoldFunc[S any] func(acc S, h objects.Hash, obj objects.Object) (S, error)

// Fold walks every object reachable from root, depth first, threading an
// accumulator through the visit function. Each object is visited once;
// commits descend into their tree and parents, trees into their entries,
// tags into their target. Submodule entries point outside the store and are
// skipped.
func Fold[S any](s *Store, f FoldFunc[S], seed S, root objects.Hash) (S, error) {
	acc := seed
	visited := make(map[objects.Hash]struct{})

	var visit func(h objects.Hash) error
	visit = func(h objects.Hash) error {
		if _, seen := visited[h]; seen {
			return nil
		}
		visited[h] = struct{}{}

		obj, rerr := s.Read(h)
		if rerr != nil {
			return rerr
		}

		var ferr error
		acc, ferr = f(acc, h, obj)
		if ferr != nil {
			return ferr
		}

		for _, child := range children(obj) {
			if verr := visit(child); verr != nil {
				return verr
			}
		}
		return nil
	}

	if verr := visit(root); verr != nil {
		return seed, verr
	}
	return acc, nil
}

// Iter walks every object reachable from root, calling f once per object.
func (s *Store) Iter(f func(objects.Hash, objects.Object) error, root objects.Hash) error {
	_, werr := Fold(s, func(_ struct{}, h objects.Hash, obj objects.Object) (struct{}, error) {
		return struct{}{}, f(h, obj)
	}, struct{}{}, root)
	return werr
}

// children lists the digests an object refers to.
func children(obj objects.Object) []objects.Hash {
	switch o := obj.(type) {
	case *objects.Commit:
		out := make([]objects.Hash, 0, len(o.Parents)+1)
		out = append(out, o.Tree)
		out = append(out, o.Parents...)
		return out

	case *objects.Tree:
		var out []objects.Hash
		for _, e := range o.Entries() {
			if e.Mode == objects.ModeSubmodule {
				continue
			}
			out = append(out, e.Hash)
		}
		return out

	case *objects.Tag:
		return []objects.Hash{o.Object}

	default:
		return nil
	}
}
