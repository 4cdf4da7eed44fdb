package transport

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/pcfilter/pointcloud"
)

// cluster is the shared state of an in-process run.
type cluster struct {
	size int
	// done is canceled, with the abort reason as its cause, by Abort.
	done   context.Context
	cancel context.CancelCauseFunc

	broadcasts []chan *pointcloud.PointSet
	inboxes    []chan Payload
}

type localTransport struct {
	c    *cluster
	rank int
}

// NewLocalCluster returns size connected in-process transports, indexed by rank. They are meant
// to be driven from one goroutine per rank.
func NewLocalCluster(size int) ([]Transport, error) {
	if size < 1 {
		return nil, errors.Errorf("cluster size must be at least 1, got %d", size)
	}
	done, cancel := context.WithCancelCause(context.Background())
	c := &cluster{
		size:       size,
		done:       done,
		cancel:     cancel,
		broadcasts: make([]chan *pointcloud.PointSet, size),
		inboxes:    make([]chan Payload, size),
	}
	transports := make([]Transport, size)
	for rank := range transports {
		c.broadcasts[rank] = make(chan *pointcloud.PointSet, 1)
		c.inboxes[rank] = make(chan Payload, 1)
		transports[rank] = &localTransport{c: c, rank: rank}
	}
	return transports, nil
}

func (t *localTransport) Rank() int {
	return t.rank
}

func (t *localTransport) Size() int {
	return t.c.size
}

func (t *localTransport) fail(op string, err error) error {
	return &TransportError{Op: op, Rank: t.rank, Err: err}
}

// interrupted returns why a blocked operation should give up, if it should.
func (t *localTransport) interrupted(ctx context.Context) error {
	if t.c.done.Err() != nil {
		cause := context.Cause(t.c.done)
		if errors.Is(cause, ErrAborted) {
			return cause
		}
		return multierr.Combine(ErrAborted, cause)
	}
	return ctx.Err()
}

func (t *localTransport) Broadcast(ctx context.Context, points *pointcloud.PointSet) (*pointcloud.PointSet, error) {
	const op = "broadcast"
	if err := t.interrupted(ctx); err != nil {
		return nil, t.fail(op, err)
	}

	if t.rank != CoordinatorRank {
		select {
		case ps := <-t.c.broadcasts[t.rank]:
			return ps, nil
		case <-ctx.Done():
		case <-t.c.done.Done():
		}
		return nil, t.fail(op, t.interrupted(ctx))
	}

	if points == nil {
		return nil, t.fail(op, errors.New("coordinator must supply the point set"))
	}
	for rank := 0; rank < t.c.size; rank++ {
		if rank == CoordinatorRank {
			continue
		}
		select {
		case t.c.broadcasts[rank] <- points.Clone():
		case <-ctx.Done():
			return nil, t.fail(op, t.interrupted(ctx))
		case <-t.c.done.Done():
			return nil, t.fail(op, t.interrupted(ctx))
		}
	}
	return points, nil
}

func (t *localTransport) Send(ctx context.Context, payload Payload) error {
	const op = "send"
	if t.rank == CoordinatorRank {
		return t.fail(op, errors.New("the coordinator does not send to itself"))
	}
	if err := t.interrupted(ctx); err != nil {
		return t.fail(op, err)
	}

	payload.Rank = t.rank
	payload.Survivors = cloneSlice(payload.Survivors)
	payload.MeanDistances = cloneSlice(payload.MeanDistances)
	select {
	case t.c.inboxes[t.rank] <- payload:
		return nil
	case <-ctx.Done():
	case <-t.c.done.Done():
	}
	return t.fail(op, t.interrupted(ctx))
}

func (t *localTransport) Receive(ctx context.Context, from int) (Payload, error) {
	const op = "receive"
	if t.rank != CoordinatorRank {
		return Payload{}, t.fail(op, errors.New("only the coordinator receives"))
	}
	if from <= CoordinatorRank || from >= t.c.size {
		return Payload{}, t.fail(op, errors.Errorf("no worker with rank %d", from))
	}
	if err := t.interrupted(ctx); err != nil {
		return Payload{}, t.fail(op, err)
	}

	select {
	case payload := <-t.c.inboxes[from]:
		if payload.Rank != from {
			return Payload{}, t.fail(op, errors.Errorf("expected payload from rank %d but got rank %d", from, payload.Rank))
		}
		if err := payload.Validate(); err != nil {
			return Payload{}, t.fail(op, err)
		}
		return payload, nil
	case <-ctx.Done():
	case <-t.c.done.Done():
	}
	return Payload{}, t.fail(op, t.interrupted(ctx))
}

func (t *localTransport) Abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}
	t.c.cancel(reason)
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
