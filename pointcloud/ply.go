package pointcloud

import (
	"fmt"
	"io"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const plyVertexElement = "vertex"

// ReadPLY reads the vertex element of an ascii PLY stream. Vertices keep their order, duplicates
// included, and every other element (faces, edges) is ignored.
func ReadPLY(in io.Reader) (*PointSet, error) {
	ply, err := parsePLY(in)
	if err != nil {
		return nil, err
	}
	vertices := ply.Elements(plyVertexElement)
	if vertices == nil {
		return nil, errors.New("ply data has no vertex element")
	}

	pts := make([]r3.Vector, 0, len(vertices))
	for i, v := range vertices {
		var p r3.Vector
		for _, c := range []struct {
			name string
			dst  *float64
		}{{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}} {
			if *c.dst, err = plyCoordinate(v, c.name); err != nil {
				return nil, errors.Wrapf(err, "PLY vertex %d", i)
			}
		}
		if err := CheckPoint(p); err != nil {
			return nil, errors.Wrapf(err, "PLY vertex %d", i)
		}
		pts = append(pts, p)
	}
	return newPointSetNoCopy(pts), nil
}

// parsePLY turns the panics goply raises on malformed input into errors.
func parsePLY(in io.Reader) (ply *goply.Ply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("invalid ply data: %v", r)
		}
	}()
	return goply.New(in), nil
}

func plyCoordinate(v goply.PlyElement, name string) (float64, error) {
	switch c := v.Property(name).(type) {
	case nil:
		return 0, errors.Errorf("missing %q property", name)
	case float64:
		return c, nil
	case float32:
		return float64(c), nil
	case int8:
		return float64(c), nil
	case uint8:
		return float64(c), nil
	case int16:
		return float64(c), nil
	case uint16:
		return float64(c), nil
	case int32:
		return float64(c), nil
	case uint32:
		return float64(c), nil
	default:
		return 0, errors.Errorf("property %q has unsupported type %T", name, c)
	}
}

// WritePLY writes the point set as an ascii PLY vertex list. Coordinates are doubles so a written
// set reads back bit for bit.
func WritePLY(points *PointSet, out io.Writer) error {
	_, err := fmt.Fprintf(out, "ply\n"+
		"format ascii 1.0\n"+
		"element %s %d\n"+
		"property double x\n"+
		"property double y\n"+
		"property double z\n"+
		"end_header\n",
		plyVertexElement, points.Size())
	if err != nil {
		return err
	}
	points.Iterate(0, 0, func(_ int64, pos r3.Vector) bool {
		_, err = fmt.Fprintf(out, "%s %s %s\n", formatFloat(pos.X), formatFloat(pos.Y), formatFloat(pos.Z))
		return err == nil
	})
	return err
}
