package share

import (
	"fmt"
	"sort"
)

// NamedShareMap maps input names, with array elements flattened to
// "name[i]", to one party's shares.
type NamedShareMap map[string]Share

// Keys returns the names in ascending order.
func (m NamedShareMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge combines the input shares several contributors produced for the
// same party into one map. Names must be disjoint across contributors; on
// collision the smallest colliding name is reported, whatever the order of
// maps.
func Merge(maps ...NamedShareMap) (NamedShareMap, error) {
	if len(maps) < 2 {
		return nil, fmt.Errorf("%w: got %d input share maps, need at least 2", ErrTooFewContributors, len(maps))
	}

	seen := make(map[string]struct{})
	var duplicates []string
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; ok {
				duplicates = append(duplicates, k)
				continue
			}
			seen[k] = struct{}{}
		}
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return nil, DuplicateKeyError{Key: duplicates[0]}
	}

	merged := make(NamedShareMap, len(seen))
	var first *Share
	for _, m := range maps {
		for _, k := range m.Keys() {
			sh := m[k]
			if first == nil {
				first = &sh
			} else if sh.Scheme != first.Scheme || sh.Owner != first.Owner {
				return nil, fmt.Errorf("%w: %q is a %s share of party %s, expected %s shares of party %s",
					ErrSchemeMismatch, k, sh.Scheme, sh.Owner, first.Scheme, first.Owner)
			}
			merged[k] = sh
		}
	}
	return merged, nil
}
