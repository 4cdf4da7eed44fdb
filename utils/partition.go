package utils

import (
	"github.com/pkg/errors"
)

// Range is the half open interval of point IDs [Begin, End).
type Range struct {
	Begin, End int64
}

// Len returns the number of IDs in the range.
func (r Range) Len() int64 {
	if r.End < r.Begin {
		return 0
	}
	return r.End - r.Begin
}

// Contains reports whether id is in the range.
func (r Range) Contains(id int64) bool {
	return id >= r.Begin && id < r.End
}

// PartitionRange splits [0, n) into w contiguous ranges. Range i is [i*n/w, (i+1)*n/w) except the
// last, which runs to n so that it absorbs the remainder.
func PartitionRange(n int64, w int) ([]Range, error) {
	if w < 1 {
		return nil, errors.Errorf("worker count must be at least 1, got %d", w)
	}
	if n < 0 {
		return nil, errors.Errorf("point count must not be negative, got %d", n)
	}
	if int64(w) > n {
		return nil, errors.Errorf("worker count %d exceeds point count %d", w, n)
	}
	ranges := make([]Range, w)
	for i := range ranges {
		ranges[i] = Range{
			Begin: int64(i) * n / int64(w),
			End:   int64(i+1) * n / int64(w),
		}
	}
	ranges[w-1].End = n
	return ranges, nil
}

// Chunks splits r into at most parts contiguous, ordered, non-empty pieces. It never fails,
// which makes it suitable for splitting work inside a single worker.
func (r Range) Chunks(parts int) []Range {
	n := r.Len()
	if n == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if int64(parts) > n {
		parts = int(n)
	}
	chunks := make([]Range, parts)
	for i := range chunks {
		chunks[i] = Range{
			Begin: r.Begin + int64(i)*n/int64(parts),
			End:   r.Begin + int64(i+1)*n/int64(parts),
		}
	}
	return chunks
}
