// Package party identifies the participants of a collaborative proving run.
package party

import (
	"sort"
	"strconv"

	"github.com/drand/kyber"
)

// ID is the zero-based index of a party in a run with N parties.
type ID int

// String implements fmt.Stringer.
func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// Valid reports whether id is a member of a run with n parties.
func (id ID) Valid(n int) bool {
	return id >= 0 && int(id) < n
}

// Next returns the party following id on a ring of n parties.
func (id ID) Next(n int) ID {
	return ID((int(id) + 1) % n)
}

// Prev returns the party preceding id on a ring of n parties.
func (id ID) Prev(n int) ID {
	return ID((int(id) + n - 1) % n)
}

// Scalar returns the evaluation point of id, which is id+1.
// The point 0 is reserved for the secret.
func (id ID) Scalar(g kyber.Group) kyber.Scalar {
	return g.Scalar().SetInt64(int64(id) + 1)
}

// IDSlice is a sorted list of unique party IDs.
type IDSlice []ID

// Range returns the IDs 0..n-1.
func Range(n int) IDSlice {
	ids := make(IDSlice, n)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// NewIDSlice returns a sorted copy of ids without duplicates.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Sort(out)
	return out
}

// Contains reports whether all ids are in the slice.
func (s IDSlice) Contains(ids ...ID) bool {
	for _, id := range ids {
		i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
		if i == len(s) || s[i] != id {
			return false
		}
	}
	return true
}

// Remove returns a copy of the slice without id.
func (s IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(s))
	for _, other := range s {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

// Valid reports whether the slice is sorted and free of duplicates.
func (s IDSlice) Valid() bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= s[i] {
			return false
		}
	}
	return true
}

func (s IDSlice) Len() int           { return len(s) }
func (s IDSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s IDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
