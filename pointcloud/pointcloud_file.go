package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pcfilter/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// Format is a point set file format.
type Format string

// The file formats points can be read from and written to.
const (
	FormatPCDAscii      = Format("pcd")
	FormatPCDBinary     = Format("pcd_binary")
	FormatPCDCompressed = Format("pcd_compressed")
	FormatLAS           = Format("las")
	FormatPLY           = Format("ply")
)

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPCDAscii, FormatPCDBinary, FormatPCDCompressed, FormatLAS, FormatPLY:
		return f, nil
	case "":
		return FormatPCDAscii, nil
	}
	return "", errors.Errorf("unknown point set format %q", s)
}

// FormatFromPath infers a format from a file extension.
func FormatFromPath(fn string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".pcd":
		return FormatPCDAscii, nil
	case ".las":
		return FormatLAS, nil
	case ".ply":
		return FormatPLY, nil
	}
	return "", errors.Errorf("do not know how to handle file %q", fn)
}

// NewFromFile returns a point set read in from the given file.
func NewFromFile(fn string, logger logging.Logger) (*PointSet, error) {
	format, err := FormatFromPath(fn)
	if err != nil {
		return nil, err
	}
	if format == FormatLAS {
		return ReadLAS(fn, logger)
	}

	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	if format == FormatPLY {
		return ReadPLY(f)
	}
	return ReadPCD(f)
}

// WriteToFile writes points to fn in the given format.
func WriteToFile(points *PointSet, fn string, format Format) (err error) {
	if format == FormatLAS {
		return WriteLAS(points, fn)
	}
	pcdType := PCDAscii
	switch format {
	case FormatPCDBinary:
		pcdType = PCDBinary
	case FormatPCDCompressed:
		pcdType = PCDCompressed
	}

	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if format == FormatPLY {
		err = WritePLY(points, w)
	} else {
		err = WritePCD(points, w, pcdType)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

// ReadLAS returns a point set from reading a LAS file. If any lossiness of points could occur
// from reading it in, it's reported but is not an error.
func ReadLAS(fn string, logger logging.Logger) (*PointSet, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pts := make([]r3.Vector, 0, lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		v := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		if err := CheckPoint(v); err != nil {
			return nil, errors.Wrapf(err, "LAS point %d", i)
		}
		if !isPrecise(v) {
			logger.Warnw("potential floating point lossiness for LAS point",
				"id", i, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
		}
		pts = append(pts, v)
	}
	return newPointSetNoCopy(pts), nil
}

// WriteLAS writes the point set out to a LAS file.
func WriteLAS(points *PointSet, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: 0,
	}); err != nil {
		return
	}

	var lastErr error
	points.Iterate(0, 0, func(_ int64, pos r3.Vector) bool {
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		if lerr := lf.AddLasPoint(pr0); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
	}
	return
}

// WritePCD writes the point set as PCD v0.7. Coordinates are stored as 8 byte floats so a written
// set reads back bit for bit.
func WritePCD(points *PointSet, out io.Writer, outputType PCDType) error {
	var err error

	_, err = fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 8 8 8\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		points.Size(),
		1,
		points.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	case PCDCompressed:
		_, err = fmt.Fprintf(out, "DATA binary_compressed\n")
	default:
		return errors.Errorf("unsupported pcd data type %v", outputType)
	}
	if err != nil {
		return err
	}
	if outputType == PCDCompressed {
		return writePCDCompressed(points, out)
	}
	return writePCDData(points, out, outputType)
}

func writePCDData(points *PointSet, out io.Writer, pcdtype PCDType) error {
	var err error
	buf := make([]byte, 24)
	points.Iterate(0, 0, func(_ int64, pos r3.Vector) bool {
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint64(buf, math.Float64bits(pos.X))
			binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(pos.Y))
			binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(pos.Z))
			_, err = out.Write(buf)
		case PCDAscii:
			_, err = fmt.Fprintf(out, "%s %s %s\n", formatFloat(pos.X), formatFloat(pos.Y), formatFloat(pos.Z))
		}
		return err == nil
	})
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields []string
	size   []uint64
	types  []pcdValType
	count  []uint64
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) < 3 || tokens[0] != "x" || tokens[1] != "y" || tokens[2] != "z" {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
		header.fields = tokens
	case "SIZE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
		}
		for i := 0; i < 3; i++ {
			if header.size[i] != 4 && header.size[i] != 8 {
				return errors.Errorf("unsupported SIZE %d for field %s", header.size[i], header.fields[i])
			}
		}
	case "TYPE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.types = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			header.types[i] = pcdValType(token)
			switch header.types[i] {
			case pcdValFloat, pcdValInt, pcdValUInt:
			default:
				return errors.Errorf("invalid TYPE field %s", token)
			}
		}
		for i := 0; i < 3; i++ {
			if header.types[i] != pcdValFloat {
				return errors.Errorf("field %s must be a float", header.fields[i])
			}
		}
	case "COUNT":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid COUNT field %s: %s", token, err)
			}
		}
		for i := 0; i < 3; i++ {
			if header.count[i] != 1 {
				return errors.Errorf("field %s must have a COUNT of 1", header.fields[i])
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid WIDTH field %s: %s", value, err)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid HEIGHT field %s: %s", value, err)
		}
	case "VIEWPOINT":
		// The viewpoint is validated but unused. Points are kept in the sensor frame.
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for _, token := range tokens {
			if _, err = strconv.ParseFloat(token, 64); err != nil {
				return errors.Errorf("invalid VIEWPOINT field %s: %s", token, err)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid POINTS field %s: %s", value, err)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD v0.7 stream. The x, y and z fields must come first; any further fields
// (rgb, intensity, ...) are skipped. Points keep the order they appear in the stream.
func ReadPCD(inRaw io.Reader) (*PointSet, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return readPCDCompressed(in, header)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (*PointSet, error) {
	var expected uint64
	for _, c := range header.count {
		expected += c
	}
	pts := make([]r3.Vector, 0, header.points)
	for i := uint64(0); i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if uint64(len(tokens)) != expected {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		var xyz [3]float64
		for j := range xyz {
			xyz[j], err = strconv.ParseFloat(tokens[j], 64)
			if err != nil {
				return nil, errors.Errorf("invalid point %d field %s: %s", i, tokens[j], err)
			}
		}
		p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		if err := CheckPoint(p); err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		pts = append(pts, p)
	}
	return newPointSetNoCopy(pts), nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (*PointSet, error) {
	var stride uint64
	for i := range header.fields {
		stride += header.size[i] * header.count[i]
	}
	buf := make([]byte, stride)
	pts := make([]r3.Vector, 0, header.points)
	for i := uint64(0); i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		var xyz [3]float64
		offset := uint64(0)
		for j := range xyz {
			xyz[j] = readFloat(buf[offset:], header.size[j])
			offset += header.size[j]
		}
		p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		if err := CheckPoint(p); err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		pts = append(pts, p)
	}
	return newPointSetNoCopy(pts), nil
}

func readFloat(b []byte, size uint64) float64 {
	if size == 8 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

// writePCDCompressed writes the binary_compressed body: the compressed and uncompressed sizes as
// little endian uint32s followed by LZF compressed data laid out field by field, all x values
// first, then all y values, then all z values.
func writePCDCompressed(points *PointSet, out io.Writer) error {
	n := int(points.Size())
	raw := make([]byte, 24*n)
	points.Iterate(0, 0, func(id int64, pos r3.Vector) bool {
		i := int(id)
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(pos.X))
		binary.LittleEndian.PutUint64(raw[8*(n+i):], math.Float64bits(pos.Y))
		binary.LittleEndian.PutUint64(raw[8*(2*n+i):], math.Float64bits(pos.Z))
		return true
	})

	var compressed []byte
	if len(raw) > 0 {
		// LZF never grows its input by more than one byte per 32.
		buf := make([]byte, len(raw)+len(raw)/32+64)
		size, err := lzf.Compress(raw, buf)
		if err != nil {
			return errors.Wrap(err, "error compressing pcd data")
		}
		compressed = buf[:size]
	}
	if len(raw) > math.MaxUint32 {
		return errors.Errorf("%d points are too many for a compressed pcd", n)
	}

	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes[:]); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (*PointSet, error) {
	var sizes [8]byte
	if _, err := io.ReadFull(in, sizes[:]); err != nil {
		return nil, errors.Wrap(err, "reading compressed pcd sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[:])
	rawSize := binary.LittleEndian.Uint32(sizes[4:])

	var stride uint64
	for i := range header.fields {
		stride += header.size[i] * header.count[i]
	}
	if uint64(rawSize) != stride*header.points {
		return nil, errors.Errorf("compressed pcd holds %d bytes but %d points need %d", rawSize, header.points, stride*header.points)
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(in, compressed); err != nil {
		return nil, errors.Wrap(err, "reading compressed pcd data")
	}
	raw := make([]byte, rawSize)
	if rawSize > 0 {
		size, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "error decompressing pcd data")
		}
		if uint32(size) != rawSize {
			return nil, errors.Errorf("decompressed %d bytes but expected %d", size, rawSize)
		}
	}

	// Each field's column starts after the columns of the fields before it.
	var offsets [3]uint64
	for j := 1; j < 3; j++ {
		offsets[j] = offsets[j-1] + header.size[j-1]*header.points
	}
	pts := make([]r3.Vector, 0, header.points)
	for i := uint64(0); i < header.points; i++ {
		var xyz [3]float64
		for j := range xyz {
			xyz[j] = readFloat(raw[offsets[j]+i*header.size[j]:], header.size[j])
		}
		p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		if err := CheckPoint(p); err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		pts = append(pts, p)
	}
	return newPointSetNoCopy(pts), nil
}
