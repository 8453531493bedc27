package fanout

// Compact drops absent values.
func Compact[T any](in []Maybe[T]) []T {
	out := make([]T, 0, len(in))
	for _, m := range in {
		if v, ok := m.Get(); ok {
			out = append(out, v)
		}
	}
	return out
}

// Flatten concatenates one level of lists. Nil and empty lists contribute nothing.
func Flatten[T any](in [][]T) []T {
	n := 0
	for _, s := range in {
		n += len(s)
	}
	out := make([]T, 0, n)
	for _, s := range in {
		out = append(out, s...)
	}
	return out
}

// Flatten2 concatenates two levels of lists.
func Flatten2[T any](in [][][]T) []T {
	var out []T
	for _, s := range in {
		out = append(out, Flatten(s)...)
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// Flatten3 concatenates three levels of lists.
func Flatten3[T any](in [][][][]T) []T {
	var out []T
	for _, s := range in {
		out = append(out, Flatten2(s)...)
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// FlattenSome drops absent lists and concatenates the rest.
func FlattenSome[T any](in []Maybe[[]T]) []T {
	return Flatten(Compact(in))
}
