package testutils

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/pcfilter/pointcloud"
)

// WriteCloud writes pts to name under dir in the given format and returns the file's path. It
// fails the test if it cannot.
func WriteCloud(t *testing.T, dir, name string, pts []r3.Vector, format pointcloud.Format) string {
	t.Helper()
	fn := filepath.Join(dir, name)
	test.That(t, pointcloud.WriteToFile(pointcloud.NewPointSet(pts), fn, format), test.ShouldBeNil)
	return fn
}
