package catalog

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// Sort orders entries by name, and the releases of every entry newest first.
// Versions are compared numerically component by component ("v" prefixes are
// ignored); the first non-numeric component falls back to a descending string
// comparison. Ties are broken by edition, ascending.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Name, b.Name)
	})
	for i := range entries {
		slices.SortStableFunc(entries[i].Releases, compareRecords)
	}
}

func compareRecords(a, b CandidateRecord) int {
	if c := CompareVersionsDesc(a.Release, b.Release); c != 0 {
		return c
	}
	return cmp.Compare(a.Edition, b.Edition)
}

// CompareVersionsDesc orders release identifiers newest first.
func CompareVersionsDesc(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.ParseUint(as[i], 10, 64)
		bn, berr := strconv.ParseUint(bs[i], 10, 64)
		if aerr != nil || berr != nil {
			break
		}
		if c := cmp.Compare(bn, an); c != 0 {
			return c
		}
	}
	return cmp.Compare(b, a)
}
