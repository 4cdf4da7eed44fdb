package outlier

import (
	"context"

	"go.opencensus.io/trace"

	"go.viam.com/pcfilter/octree"
	"go.viam.com/pcfilter/utils"
)

// RadiusFilter returns, in ascending order, the IDs in r that have at least cfg.K neighbors
// strictly within cfg.Radius. Neighbors are searched over the whole index, not just r.
func RadiusFilter(
	ctx context.Context,
	idx *octree.Index,
	cfg RadiusConfig,
	r utils.Range,
	parallelism int,
) ([]int64, error) {
	ctx, span := trace.StartSpan(ctx, "outlier::RadiusFilter")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkRange(idx, r); err != nil {
		return nil, err
	}

	pts := idx.Points()
	survivors, err := evalChunks(ctx, r, parallelism, func(ctx context.Context, chunk utils.Range) ([]int64, error) {
		var kept []int64
		for id := chunk.Begin; id < chunk.End; id++ {
			if (id-chunk.Begin)%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if len(idx.KNearest(pts.At(id), cfg.K, cfg.Radius)) >= cfg.K {
				kept = append(kept, id)
			}
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}
	span.AddAttributes(trace.Int64Attribute("survivors", int64(len(survivors))))
	return survivors, nil
}
