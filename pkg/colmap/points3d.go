// Package colmap reads the sparse point cloud of a COLMAP reconstruction.
//
// Both of COLMAP's model encodings are supported: points3D.bin (little-endian
// binary) and points3D.txt. Only what a scene needs is kept; per-point image
// tracks are validated and skipped.
package colmap

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"colmap2nerf/internal/models"
)

// trackElemSize is the encoded size of one (image_id int32, point2D_idx int32) pair.
const trackElemSize = 8

// maxPrealloc bounds the map capacity taken from an untrusted point count.
const maxPrealloc = 1 << 20

// pointRecord is the fixed-size head of a binary point entry.
type pointRecord struct {
	ID          uint64
	X, Y, Z     float64
	R, G, B     uint8
	Error       float64
	TrackLength uint64
}

// ReadPoints3D reads a point cloud, choosing the encoding from the file extension.
func ReadPoints3D(path string, logger *zap.SugaredLogger) (models.PointCloud, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return ReadPoints3DText(path, logger)
	default:
		return ReadPoints3DBinary(path, logger)
	}
}

// ReadPoints3DBinary reads a COLMAP points3D.bin file.
func ReadPoints3DBinary(path string, logger *zap.SugaredLogger) (cloud models.PointCloud, err error) {
	f, err := openPoints(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	cloud, err = DecodePoints3DBinary(bufio.NewReader(f), logger)
	if err != nil {
		return nil, models.WrapKind(models.ErrParse, err, "reading %s", path)
	}
	logger.Debugw("read binary point cloud", "path", path, "points", len(cloud))
	return cloud, nil
}

// DecodePoints3DBinary decodes the binary points3D encoding from r. The reader
// must end exactly after the last point.
func DecodePoints3DBinary(r io.Reader, logger *zap.SugaredLogger) (models.PointCloud, error) {
	var numPoints uint64
	if err := binary.Read(r, binary.LittleEndian, &numPoints); err != nil {
		return nil, errors.Wrap(noEOF(err), "reading point count")
	}

	cloud := make(models.PointCloud, min(numPoints, maxPrealloc))
	for i := uint64(0); i < numPoints; i++ {
		var rec pointRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, errors.Wrapf(noEOF(err), "reading point %d of %d", i, numPoints)
		}
		if rec.TrackLength > math.MaxInt64/trackElemSize {
			return nil, errors.Errorf("point %d: track length %d out of range", rec.ID, rec.TrackLength)
		}
		skip := int64(rec.TrackLength) * trackElemSize
		if n, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, errors.Wrapf(noEOF(err), "point %d: track truncated after %d of %d bytes", rec.ID, n, skip)
		}

		if _, dup := cloud[rec.ID]; dup {
			logger.Warnw("duplicate point id, keeping the later entry", "id", rec.ID)
		}
		cloud[rec.ID] = models.Point3D{
			ID:          rec.ID,
			XYZ:         r3.Vec{X: rec.X, Y: rec.Y, Z: rec.Z},
			RGB:         [3]uint8{rec.R, rec.G, rec.B},
			Error:       rec.Error,
			TrackLength: int(rec.TrackLength),
		}
	}

	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n != 0 {
		return nil, errors.Errorf("unexpected data after %d points", numPoints)
	}
	return cloud, nil
}

// WritePoints3DBinary encodes cloud in the binary points3D layout, ordered by
// point ID. Tracks are written empty with the recorded track length set to 0.
func WritePoints3DBinary(w io.Writer, cloud models.PointCloud) error {
	ids := make([]uint64, 0, len(cloud))
	for id := range cloud {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		p := cloud[id]
		rec := pointRecord{
			ID: id,
			X:  p.XYZ.X, Y: p.XYZ.Y, Z: p.XYZ.Z,
			R: p.RGB[0], G: p.RGB[1], B: p.RGB[2],
			Error: p.Error,
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return errors.Wrapf(err, "writing point %d", id)
		}
	}
	return nil
}

// ReadPoints3DText reads a COLMAP points3D.txt file. Each non-comment line is
// POINT3D_ID X Y Z R G B ERROR followed by (IMAGE_ID, POINT2D_IDX) pairs.
func ReadPoints3DText(path string, logger *zap.SugaredLogger) (cloud models.PointCloud, err error) {
	f, err := openPoints(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	cloud = make(models.PointCloud)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, perr := parsePointLine(line)
		if perr != nil {
			return nil, models.WrapKind(models.ErrParse, perr, "%s:%d", path, lineNo)
		}
		if _, dup := cloud[p.ID]; dup {
			logger.Warnw("duplicate point id, keeping the later entry", "id", p.ID, "line", lineNo)
		}
		cloud[p.ID] = p
	}
	if err := scanner.Err(); err != nil {
		return nil, models.WrapKind(models.ErrParse, err, "reading %s", path)
	}
	logger.Debugw("read text point cloud", "path", path, "points", len(cloud))
	return cloud, nil
}

func parsePointLine(line string) (models.Point3D, error) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return models.Point3D{}, errors.Errorf("expected at least 8 fields, got %d", len(fields))
	}
	if (len(fields)-8)%2 != 0 {
		return models.Point3D{}, errors.New("track has an odd number of entries")
	}

	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return models.Point3D{}, errors.Wrap(err, "point id")
	}
	var xyz [3]float64
	for i := range xyz {
		if xyz[i], err = strconv.ParseFloat(fields[1+i], 64); err != nil {
			return models.Point3D{}, errors.Wrapf(err, "coordinate %d", i)
		}
	}
	var rgb [3]uint8
	for i := range rgb {
		c, err := strconv.ParseUint(fields[4+i], 10, 8)
		if err != nil {
			return models.Point3D{}, errors.Wrapf(err, "color channel %d", i)
		}
		rgb[i] = uint8(c)
	}
	reprojErr, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return models.Point3D{}, errors.Wrap(err, "reprojection error")
	}

	return models.Point3D{
		ID:          id,
		XYZ:         r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		RGB:         rgb,
		Error:       reprojErr,
		TrackLength: (len(fields) - 8) / 2,
	}, nil
}

func openPoints(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.WrapKind(models.ErrFileNotFound, err, "point cloud")
		}
		return nil, models.WrapKind(models.ErrParse, err, "point cloud")
	}
	return f, nil
}

// noEOF turns a clean EOF into ErrUnexpectedEOF: any EOF inside the encoding
// means the file was cut short.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
