package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"go.viam.com/pcfilter/outlier"
	"go.viam.com/pcfilter/pointcloud"
	"go.viam.com/pcfilter/transport"
	"go.viam.com/pcfilter/utils"
)

// RunLocal filters points with workers in-process workers connected by channels and returns the
// coordinator's result.
func RunLocal(
	ctx context.Context,
	points *pointcloud.PointSet,
	cfg outlier.Config,
	workers int,
	opts ...Option,
) (*Result, error) {
	o := newOptions(opts)
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if points.Size() == 0 {
		o.logger.Infow("point set is empty, nothing to filter", "run_id", o.runID)
		return &Result{Survivors: []int64{}, RunID: o.runID, Authoritative: true}, nil
	}
	if workers < 1 || int64(workers) > points.Size() {
		return nil, outlier.NewConfigurationError("workers", "must be in [1,%d], got %d", points.Size(), workers)
	}

	transports, err := transport.NewLocalCluster(workers)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, workers)
	errs := make([]error, workers)
	fs := make([]utils.SimpleFunc, 0, workers)
	for rank := range transports {
		rank := rank
		var in *pointcloud.PointSet
		if rank == transport.CoordinatorRank {
			in = points
		}
		workerOpts := append(append([]Option{}, opts...),
			WithRunID(o.runID),
			WithLogger(o.logger.Sublogger(fmt.Sprintf("worker%d", rank))),
		)
		fs = append(fs, func(ctx context.Context) error {
			results[rank], errs[rank] = RunWorker(ctx, transports[rank], in, cfg, workerOpts...)
			return errs[rank]
		})
	}

	elapsed, err := utils.RunInParallel(ctx, fs)
	if errs[transport.CoordinatorRank] != nil {
		return nil, errs[transport.CoordinatorRank]
	}
	if err != nil {
		return nil, err
	}
	o.logger.Debugw("local run finished", "run_id", o.runID, "workers", workers, "elapsed", elapsed.String())
	return results[transport.CoordinatorRank], nil
}
