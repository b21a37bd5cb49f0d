package generic

import "golang.org/x/sync/errgroup"

// ParallelEach calls exec for every item with at most limit calls in flight.
// A non-positive limit runs all items at once.
func ParallelEach[T any](items []T, limit int, exec func(i int, item T) error) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			return exec(i, item)
		})
	}
	return g.Wait()
}
