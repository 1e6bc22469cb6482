package config

import "github.com/vk/trainlaunch/internal/keypath"

// Merge merges src into dst in place. Mappings merge key by key; any other
// value in src replaces the one in dst. A mapping meeting a non-null scalar
// or list at the same key path is a conflict. Null never conflicts: a null in
// src clears the key, a mapping in src replaces a null in dst.
//
// src is not modified and no part of it is shared with dst afterwards.
func Merge(dst, src *Node) error {
	return mergeAt(nil, dst, src)
}

// MergeAll folds the given trees left to right into a fresh Node.
func MergeAll(trees ...*Node) (*Node, error) {
	out := NewNode()
	for _, t := range trees {
		if err := Merge(out, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeAt(prefix keypath.Path, dst, src *Node) error {
	for _, k := range src.keys {
		sv := src.values[k]
		dv, exists := dst.values[k]
		if !exists || dv == nil || sv == nil {
			dst.Set(k, CloneValue(sv))
			continue
		}

		dn, dIsNode := dv.(*Node)
		sn, sIsNode := sv.(*Node)
		switch {
		case dIsNode && sIsNode:
			if err := mergeAt(prefix.Child(k), dn, sn); err != nil {
				return err
			}
		case dIsNode != sIsNode:
			return Errorf(ErrConfigConflict, prefix.Child(k).String(),
				"cannot merge %s into %s", KindName(sv), KindName(dv))
		default:
			dst.Set(k, CloneValue(sv))
		}
	}
	return nil
}
