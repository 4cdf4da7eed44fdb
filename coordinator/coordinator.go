// Package coordinator runs outlier filtering across a set of cooperating workers.
//
// Every worker receives the whole point set and builds its own index over it, then filters a
// contiguous range of point IDs. The coordinator gathers the partial results in rank order, which
// keeps survivor IDs ascending. For the statistical filter the gather is a barrier: the threshold
// depends on every point's mean neighbor distance, so only the coordinator can compute it and only
// the coordinator's result is authoritative.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"go.viam.com/pcfilter/octree"
	"go.viam.com/pcfilter/outlier"
	"go.viam.com/pcfilter/pointcloud"
	"go.viam.com/pcfilter/transport"
	"go.viam.com/pcfilter/utils"
)

// Timings records how long each phase of a worker's run took.
type Timings struct {
	Broadcast time.Duration
	Build     time.Duration
	Filter    time.Duration
	Gather    time.Duration
	Total     time.Duration
}

// Result is the outcome of one worker's run.
type Result struct {
	Rank  int
	Range utils.Range
	// Survivors are the ascending IDs of the points kept over the whole cloud. Only set when
	// Authoritative.
	Survivors []int64
	// Stats are set by the coordinator of a statistical run.
	Stats         *outlier.Stats
	RunID         string
	Timings       Timings
	Authoritative bool
}

// Removed returns how many of n points the run removed.
func (r *Result) Removed(n int64) int64 {
	return n - int64(len(r.Survivors))
}

// RunWorker runs one worker's share of a filter. The coordinator supplies points; every other
// worker passes nil and receives the set by broadcast. Any failure aborts the whole run.
func RunWorker(
	ctx context.Context,
	t transport.Transport,
	points *pointcloud.PointSet,
	cfg outlier.Config,
	opts ...Option,
) (*Result, error) {
	o := newOptions(opts)
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	w := &worker{
		t:       t,
		cfg:     cfg,
		opts:    o,
		isCoord: t.Rank() == transport.CoordinatorRank,
		result: &Result{
			Rank:          t.Rank(),
			RunID:         o.runID,
			Authoritative: t.Rank() == transport.CoordinatorRank,
		},
	}

	ctx, span := trace.StartSpan(ctx, "coordinator::RunWorker")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("run_id", o.runID), trace.Int64Attribute("rank", int64(t.Rank())))

	start := o.clock.Now()
	err := w.run(ctx, points)
	w.result.Timings.Total = o.clock.Since(start)
	if err != nil {
		t.Abort(err)
		return nil, err
	}
	return w.result, nil
}

type worker struct {
	t       transport.Transport
	cfg     outlier.Config
	opts    options
	isCoord bool
	result  *Result
}

// validate is run by the coordinator before the first collective.
func (w *worker) validate(points *pointcloud.PointSet) error {
	if points == nil {
		return errors.New("the coordinator must be given a point set")
	}
	if err := w.cfg.Validate(); err != nil {
		return err
	}
	if points.Size() == 0 {
		return nil
	}
	if w.t.Size() < 1 || int64(w.t.Size()) > points.Size() {
		return outlier.NewConfigurationError("workers", "must be in [1,%d], got %d", points.Size(), w.t.Size())
	}
	return nil
}

func (w *worker) run(ctx context.Context, points *pointcloud.PointSet) error {
	logger := w.opts.logger
	if w.isCoord {
		if err := w.validate(points); err != nil {
			return err
		}
	}

	if err := w.timed(&w.result.Timings.Broadcast, func() error {
		var err error
		points, err = w.t.Broadcast(ctx, points)
		return err
	}); err != nil {
		return err
	}

	n := points.Size()
	if n == 0 {
		logger.Infow("point set is empty, nothing to filter", "run_id", w.opts.runID)
		if w.isCoord {
			w.result.Survivors = []int64{}
		}
		return nil
	}

	if err := w.cfg.Validate(); err != nil {
		return err
	}

	var idx *octree.Index
	if err := w.timed(&w.result.Timings.Build, func() error {
		var err error
		idx, err = octree.Build(ctx, points, logger)
		return err
	}); err != nil {
		return err
	}

	ranges, err := utils.PartitionRange(n, w.t.Size())
	if err != nil {
		return outlier.NewConfigurationError("workers", "%v", err)
	}
	w.result.Range = ranges[w.t.Rank()]
	logger.Debugw("filtering range",
		"run_id", w.opts.runID, "rank", w.t.Rank(), "begin", w.result.Range.Begin, "end", w.result.Range.End)

	switch w.cfg.Type {
	case outlier.Radius:
		err = w.runRadius(ctx, idx, ranges)
	case outlier.Statistical:
		err = w.runStatistical(ctx, idx, ranges)
	default:
		err = outlier.NewConfigurationError("filter", "unknown filter type %q", w.cfg.Type)
	}
	if err != nil {
		return err
	}

	if w.isCoord {
		t := w.result.Timings
		logger.Infow("filter complete",
			"run_id", w.opts.runID,
			"filter", string(w.cfg.Type),
			"workers", w.t.Size(),
			"points", n,
			"survivors", len(w.result.Survivors),
			"removed", w.result.Removed(n),
			"broadcast", t.Broadcast.String(),
			"build", t.Build.String(),
			"filter_time", t.Filter.String(),
			"gather", t.Gather.String(),
		)
	}
	return nil
}

func (w *worker) runRadius(ctx context.Context, idx *octree.Index, ranges []utils.Range) error {
	var local []int64
	if err := w.timed(&w.result.Timings.Filter, func() error {
		var err error
		local, err = outlier.RadiusFilter(ctx, idx, *w.cfg.Radius, w.result.Range, w.cfg.Parallelism)
		return err
	}); err != nil {
		return err
	}

	start := w.opts.clock.Now()
	defer func() { w.result.Timings.Gather = w.opts.clock.Since(start) }()
	if !w.isCoord {
		return w.t.Send(ctx, transport.NewSurvivorsPayload(local))
	}

	parts := make([][]int64, 0, len(ranges))
	parts = append(parts, local)
	for rank := 1; rank < len(ranges); rank++ {
		p, err := w.t.Receive(ctx, rank)
		if err != nil {
			return err
		}
		if err := checkSurvivors(p.Survivors, ranges[rank]); err != nil {
			return &transport.TransportError{
				Op:   "receive",
				Rank: w.t.Rank(),
				Err:  errors.Wrapf(err, "rank %d sent bad survivors", rank),
			}
		}
		parts = append(parts, p.Survivors)
	}
	w.result.Survivors = lo.Flatten(parts)
	return nil
}

// checkSurvivors requires survivors to be strictly ascending IDs within r.
func checkSurvivors(survivors []int64, r utils.Range) error {
	prev := r.Begin - 1
	for _, id := range survivors {
		if !r.Contains(id) {
			return errors.Errorf("survivor %d is outside of range [%d,%d)", id, r.Begin, r.End)
		}
		if id <= prev {
			return errors.Errorf("survivor %d follows %d", id, prev)
		}
		prev = id
	}
	return nil
}

func (w *worker) runStatistical(ctx context.Context, idx *octree.Index, ranges []utils.Range) error {
	var local []float64
	if err := w.timed(&w.result.Timings.Filter, func() error {
		var err error
		local, err = outlier.MeanDistances(ctx, idx, w.cfg.Statistical.MeanK, w.result.Range, w.cfg.Parallelism)
		return err
	}); err != nil {
		return err
	}

	start := w.opts.clock.Now()
	defer func() { w.result.Timings.Gather = w.opts.clock.Since(start) }()
	if !w.isCoord {
		return w.t.Send(ctx, transport.NewMeanDistancesPayload(local))
	}

	// Barrier: the threshold needs every point's mean distance.
	parts := make([][]float64, 0, len(ranges))
	parts = append(parts, local)
	for rank := 1; rank < len(ranges); rank++ {
		p, err := w.t.Receive(ctx, rank)
		if err != nil {
			return err
		}
		if p.Count != ranges[rank].Len() {
			return &transport.TransportError{
				Op:   "receive",
				Rank: w.t.Rank(),
				Err:  errors.Errorf("rank %d sent %d mean distances for a range of %d points", rank, p.Count, ranges[rank].Len()),
			}
		}
		parts = append(parts, p.MeanDistances)
	}
	meanDist := lo.Flatten(parts)

	st, err := outlier.Threshold(meanDist, w.cfg.Statistical.Multiplier)
	if err != nil {
		return err
	}
	w.result.Stats = &st
	w.result.Survivors = outlier.SelectWithin(meanDist, st.Threshold)
	w.logDistribution(meanDist, st)
	return nil
}

func (w *worker) timed(d *time.Duration, f func() error) error {
	start := w.opts.clock.Now()
	err := f()
	*d = w.opts.clock.Since(start)
	return err
}

func (w *worker) logDistribution(meanDist []float64, st outlier.Stats) {
	keysAndValues := []interface{}{
		"run_id", w.opts.runID,
		"mean", st.Mean,
		"stddev", st.StdDev,
		"threshold", st.Threshold,
	}
	for _, pct := range []float64{50, 90, 99} {
		v, err := stats.Percentile(meanDist, pct)
		if err != nil {
			continue
		}
		keysAndValues = append(keysAndValues, fmt.Sprintf("p%.0f", pct), v)
	}
	w.opts.logger.Debugw("mean neighbor distance distribution", keysAndValues...)
}
