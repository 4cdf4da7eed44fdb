// Package transport defines the collective operations workers use to share a point set and
// gather partial results, and provides an in-process implementation backed by channels.
//
// Every operation blocks until it completes, its context is done, or the run is aborted. Any
// failure is final: callers are expected to Abort and give up rather than retry.
package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/pcfilter/pointcloud"
)

// CoordinatorRank is the rank that broadcasts the point set and gathers results.
const CoordinatorRank = 0

// ErrAborted is the cause reported by operations interrupted by Abort.
var ErrAborted = errors.New("run aborted")

// Payload is a worker's partial result, sent to the coordinator. Exactly one of Survivors and
// MeanDistances is set and Count is its length.
type Payload struct {
	Rank          int
	Count         int64
	Survivors     []int64
	MeanDistances []float64
}

// NewSurvivorsPayload returns a payload carrying survivor IDs.
func NewSurvivorsPayload(survivors []int64) Payload {
	return Payload{Count: int64(len(survivors)), Survivors: survivors}
}

// NewMeanDistancesPayload returns a payload carrying mean neighbor distances.
func NewMeanDistancesPayload(meanDist []float64) Payload {
	return Payload{Count: int64(len(meanDist)), MeanDistances: meanDist}
}

// Validate checks that Count matches the carried data.
func (p Payload) Validate() error {
	if p.Survivors != nil && p.MeanDistances != nil {
		return errors.New("payload carries both survivors and mean distances")
	}
	if n := int64(len(p.Survivors) + len(p.MeanDistances)); n != p.Count {
		return errors.Errorf("payload count %d does not match its %d elements", p.Count, n)
	}
	return nil
}

// Transport moves data between the workers of one run. Rank CoordinatorRank is the coordinator.
type Transport interface {
	// Rank returns this worker's rank in [0, Size()).
	Rank() int
	// Size returns the number of workers.
	Size() int
	// Broadcast distributes the coordinator's point set. The coordinator passes the set, others
	// pass nil; every worker gets back an identical copy.
	Broadcast(ctx context.Context, points *pointcloud.PointSet) (*pointcloud.PointSet, error)
	// Send delivers a payload to the coordinator. Only non-coordinators send.
	Send(ctx context.Context, payload Payload) error
	// Receive returns the payload sent by rank from. Only the coordinator receives.
	Receive(ctx context.Context, from int) (Payload, error)
	// Abort terminates the run for every worker. Blocked and future operations fail with a
	// TransportError wrapping reason.
	Abort(reason error)
}

// A TransportError is returned when a collective operation fails.
type TransportError struct {
	Op   string
	Rank int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed on rank %d: %v", e.Op, e.Rank, e.Err)
}

// Unwrap returns the underlying failure.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns whether or not an error is a TransportError, at any depth of wrapping.
func IsTransportError(err error) bool {
	var errArt *TransportError
	return errors.As(err, &errArt)
}
