package lookup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs fn for every index in [0, n) with at most limit calls in
// flight and returns the results in index order. fn reports its own
// failures through T; a failing call never cancels its siblings.
func fanOut[T any](ctx context.Context, limit, n int, fn func(ctx context.Context, i int) T) []T {
	out := make([]T, n)
	if n == 0 {
		return out
	}
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			out[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// pageSpan lists page numbers in [start, end).
func pageSpan(start, end int) []int {
	if end <= start {
		return nil
	}
	pages := make([]int, 0, end-start)
	for p := start; p < end; p++ {
		pages = append(pages, p)
	}
	return pages
}
