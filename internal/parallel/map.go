package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one mapped input
type Result[D any] struct {
	Value D
	Err   error
}

// Map runs mapFunc for every input with at most limit calls in parallel and
// returns the results in the input order. A failing input does not stop the
// others. Inputs not started before ctx is canceled get ctx.Err().
func Map[E, D any](ctx context.Context, limit int, inputs []E, mapFunc func(context.Context, E) (D, error)) []Result[D] {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result[D], len(inputs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			d, err := mapFunc(ctx, input)
			results[i] = Result[D]{Value: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
