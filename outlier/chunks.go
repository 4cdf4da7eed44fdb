package outlier

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/pcfilter/octree"
	"go.viam.com/pcfilter/utils"
)

// cancelCheckInterval is how many points are evaluated between context checks.
const cancelCheckInterval = 1024

func checkRange(idx *octree.Index, r utils.Range) error {
	if r.Begin < 0 || r.End > idx.Size() || r.Begin > r.End {
		return errors.Errorf("range [%d,%d) is outside of the indexed points [0,%d)", r.Begin, r.End, idx.Size())
	}
	return nil
}

// evalChunks splits r into parallelism contiguous chunks, evaluates each concurrently and
// concatenates their outputs in chunk order. The result is identical to evaluating r in one
// piece.
func evalChunks[T any](
	ctx context.Context,
	r utils.Range,
	parallelism int,
	eval func(ctx context.Context, chunk utils.Range) ([]T, error),
) ([]T, error) {
	chunks := r.Chunks(parallelism)
	results := make([][]T, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			out, err := eval(ctx, chunk)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}
