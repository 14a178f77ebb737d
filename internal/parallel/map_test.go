package parallel_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/gelecek/folder-uploader/internal/parallel"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	f := func(ctx context.Context, d time.Duration) (int, error) {
		select {
		case <-time.After(d):
			return int(d), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	input := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

	type given struct {
		limit   int
		timeout time.Duration
	}
	type then struct {
		elapsed time.Duration
		ok      int
	}
	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{"limit 1", given{1, 0}, then{18 * time.Second, 4}},
		{"limit 10", given{10, 0}, then{10 * time.Second, 4}},
		{"limit 2", given{2, 0}, then{12 * time.Second, 4}},
		{"limit 10, cancel 3s", given{10, 3 * time.Second}, then{3 * time.Second, 2}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				ctx := t.Context()
				if tt.given.timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, tt.given.timeout)
					defer cancel()
				}
				start := time.Now()
				results := parallel.Map(ctx, tt.given.limit, input, f)
				require.Equal(t, tt.then.elapsed, time.Since(start))
				require.Len(t, results, len(input))

				var ok int
				for i, r := range results {
					if r.Err == nil {
						ok++
						require.Equal(t, int(input[i]), r.Value, "results keep the input order")
					} else {
						require.ErrorIs(t, r.Err, context.DeadlineExceeded)
					}
				}
				require.Equal(t, tt.then.ok, ok)
			})
		})
	}
}

func TestMap_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	results := parallel.Map(t.Context(), 0, []int{1, 2, 3}, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i * 10, nil
	})
	require.Equal(t, []parallel.Result[int]{
		{Value: 10},
		{Err: boom},
		{Value: 30},
	}, results)
}
