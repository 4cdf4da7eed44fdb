package outlier

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/pcfilter/octree"
	"go.viam.com/pcfilter/utils"
)

// Stats are the cloud wide statistics the statistical filter thresholds against.
type Stats struct {
	Count     int64
	Mean      float64
	StdDev    float64
	Threshold float64
}

// MeanDistances returns, for each ID in r, the mean of the distances to its meanK nearest
// neighbors over the whole index. A point with no neighbors at non-zero distance has a mean of 0.
// The i-th value belongs to ID r.Begin+i.
func MeanDistances(
	ctx context.Context,
	idx *octree.Index,
	meanK int,
	r utils.Range,
	parallelism int,
) ([]float64, error) {
	ctx, span := trace.StartSpan(ctx, "outlier::MeanDistances")
	defer span.End()

	if meanK <= 0 {
		return nil, NewConfigurationError("mean_k", "must be positive, got %d", meanK)
	}
	if err := checkRange(idx, r); err != nil {
		return nil, err
	}

	pts := idx.Points()
	return evalChunks(ctx, r, parallelism, func(ctx context.Context, chunk utils.Range) ([]float64, error) {
		means := make([]float64, 0, chunk.Len())
		for id := chunk.Begin; id < chunk.End; id++ {
			if (id-chunk.Begin)%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			neighbors := idx.KNearest(pts.At(id), meanK, math.Inf(1))
			var sum float64
			for _, n := range neighbors {
				sum += math.Sqrt(n.SqrDist)
			}
			var mean float64
			if len(neighbors) > 0 {
				mean = sum / float64(len(neighbors))
			}
			means = append(means, mean)
		}
		return means, nil
	})
}

// Threshold computes the mean and sample standard deviation of meanDist and the survival
// threshold mean + multiplier*stddev. The standard deviation of fewer than two values, or of
// identical values, is 0.
func Threshold(meanDist []float64, multiplier float64) (Stats, error) {
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return Stats{}, NewConfigurationError("multiplier", "must be finite, got %v", multiplier)
	}
	if len(meanDist) == 0 {
		return Stats{}, errors.New("cannot threshold an empty set of mean distances")
	}

	st := Stats{Count: int64(len(meanDist))}
	if lo, hi := floats.Min(meanDist), floats.Max(meanDist); lo == hi {
		st.Mean = lo
	} else {
		st.Mean, st.StdDev = stat.MeanStdDev(meanDist, nil)
	}
	st.Threshold = st.Mean + multiplier*st.StdDev
	return st, nil
}

// SelectWithin returns, in ascending order, the IDs whose mean distance is at most threshold.
// meanDist must cover every point of the cloud, starting at ID 0.
func SelectWithin(meanDist []float64, threshold float64) []int64 {
	kept := []int64{}
	for id, d := range meanDist {
		if d <= threshold {
			kept = append(kept, int64(id))
		}
	}
	return kept
}

// StatisticalFilter runs both passes of the statistical filter over the whole index in a single
// worker.
func StatisticalFilter(
	ctx context.Context,
	idx *octree.Index,
	cfg StatisticalConfig,
	parallelism int,
) ([]int64, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}
	meanDist, err := MeanDistances(ctx, idx, cfg.MeanK, utils.Range{Begin: 0, End: idx.Size()}, parallelism)
	if err != nil {
		return nil, Stats{}, err
	}
	st, err := Threshold(meanDist, cfg.Multiplier)
	if err != nil {
		return nil, Stats{}, err
	}
	return SelectWithin(meanDist, st.Threshold), st, nil
}
