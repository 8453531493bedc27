package fanout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFlattenSomeDiscardsAbsentAndEmpty(t *testing.T) {
	t.Parallel()

	in := []Maybe[[]int]{Some([]int{1, 2}), None[[]int](), Some([]int{})}
	require.Equal(t, []int{1, 2}, FlattenSome(in))
}

func TestFlattenDepths(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{1, 2, 3}, Flatten([][]int{{1, 2}, nil, {}, {3}}))
	require.Equal(t, []int{1, 2, 3, 4}, Flatten2([][][]int{{{1}, nil, {2}}, nil, {{}, {3, 4}}}))
	require.Equal(t, []int{1, 2, 3}, Flatten3([][][][]int{{{{1}}, {{2}, nil}}, nil, {{{3}}}}))
	require.Empty(t, Flatten2[int](nil))
	require.Empty(t, Flatten3[int](nil))
	require.Equal(t, []string{"a", "c"}, Compact([]Maybe[string]{Some("a"), None[string](), Some("c")}))
}

func TestMaybe(t *testing.T) {
	t.Parallel()

	v, ok := Some(3).Get()
	require.True(t, ok)
	require.Equal(t, 3, v)

	var zero Maybe[int]
	require.False(t, zero.IsSome())
	require.False(t, SomeIf("x", false).IsSome())
	require.True(t, SomeIf("x", true).IsSome())
}

func TestJoinPreservesUnitOrder(t *testing.T) {
	t.Parallel()

	units := Units([]int{5, 1, 3, 0}, func(_ context.Context, ms int) int {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms
	})
	require.Equal(t, []int{5, 1, 3, 0}, Join(context.Background(), units))
}

func TestJoinSomeAndJoinFlat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	some := []Unit[Maybe[string]]{
		func(context.Context) Maybe[string] { return Some("a") },
		func(context.Context) Maybe[string] { return None[string]() },
		func(context.Context) Maybe[string] { return Some("c") },
	}
	require.Equal(t, []string{"a", "c"}, JoinSome(ctx, some))

	flat := []Unit[[]int]{
		func(context.Context) []int { time.Sleep(3 * time.Millisecond); return []int{1, 2} },
		func(context.Context) []int { return nil },
		func(context.Context) []int { return []int{3} },
	}
	require.Equal(t, []int{1, 2, 3}, JoinFlat(ctx, flat))

	flat2 := []Unit[[][]int]{
		func(context.Context) [][]int { return [][]int{{1}, nil, {2, 3}} },
		func(context.Context) [][]int { return nil },
		func(context.Context) [][]int { return [][]int{{}, {4}} },
	}
	require.Equal(t, []int{1, 2, 3, 4}, JoinFlat2(ctx, flat2))
}

func TestJoinHonorsLimit(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	units := make([]Unit[int], 20)
	for i := range units {
		units[i] = func(context.Context) int {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			return i
		}
	}

	out := Join(context.Background(), units, WithLimit(3))
	require.Len(t, out, 20)
	require.Equal(t, 19, out[19])
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPanickingUnitYieldsAbsence(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	units := []Unit[Maybe[int]]{
		func(context.Context) Maybe[int] { return Some(1) },
		func(context.Context) Maybe[int] { panic("boom") },
		func(context.Context) Maybe[int] { return Some(3) },
	}

	require.Equal(t, []int{1, 3}, JoinSome(context.Background(), units, WithLogger(zap.New(core))))
	require.Equal(t, 1, logs.FilterMessage("Fan-out unit panicked").Len())
}

func TestJoinEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Join[int](context.Background(), nil))
	require.Empty(t, JoinFlat[int](context.Background(), nil))
}
