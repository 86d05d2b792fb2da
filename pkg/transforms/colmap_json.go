// Package transforms reads the per-frame camera file produced after COLMAP and
// writes the transforms.json scene descriptor consumed by neural rendering
// training.
package transforms

import (
	"bytes"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"colmap2nerf/internal/models"
)

// ColmapFile is the decoded content of transformations_colmap.json
type ColmapFile struct {
	Intrinsics models.CameraIntrinsics
	Frames     []models.FrameRecord
}

// colmapDoc mirrors the JSON layout. Pointers distinguish absent keys from zero values.
type colmapDoc struct {
	W      *float64    `json:"w"`
	H      *float64    `json:"h"`
	FocalX *float64    `json:"fl_x"`
	FocalY *float64    `json:"fl_y"`
	CX     *float64    `json:"cx"`
	CY     *float64    `json:"cy"`
	Frames *[]frameDoc `json:"frames"`
}

type frameDoc struct {
	FilePath        *string         `json:"file_path"`
	TransformMatrix json.RawMessage `json:"transform_matrix"`
	DepthFilePath   *string         `json:"depth_file_path"`
}

// LoadColmapFile reads and validates a transformations_colmap.json file.
func LoadColmapFile(path string, logger *zap.SugaredLogger) (*ColmapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.WrapKind(models.ErrFileNotFound, err, "camera file")
		}
		return nil, models.WrapKind(models.ErrParse, err, "camera file")
	}

	cf, err := DecodeColmapFile(data, logger)
	if err != nil {
		return nil, models.WrapKind(models.ErrParse, err, "decoding %s", path)
	}
	logger.Debugw("read camera file", "path", path, "frames", len(cf.Frames),
		"width", cf.Intrinsics.Width, "height", cf.Intrinsics.Height)
	return cf, nil
}

// DecodeColmapFile decodes the camera/frames JSON document in data.
func DecodeColmapFile(data []byte, logger *zap.SugaredLogger) (*ColmapFile, error) {
	var doc colmapDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	required := []struct {
		key   string
		value *float64
	}{
		{"w", doc.W}, {"h", doc.H},
		{"fl_x", doc.FocalX}, {"fl_y", doc.FocalY},
		{"cx", doc.CX}, {"cy", doc.CY},
	}
	for _, r := range required {
		if r.value == nil {
			return nil, errors.Errorf("missing required key %q", r.key)
		}
	}
	if doc.Frames == nil {
		return nil, errors.New(`missing required key "frames"`)
	}

	width, err := pixelCount("w", *doc.W)
	if err != nil {
		return nil, err
	}
	height, err := pixelCount("h", *doc.H)
	if err != nil {
		return nil, err
	}

	cf := &ColmapFile{
		Intrinsics: models.CameraIntrinsics{
			Width:   width,
			Height:  height,
			FocalX:  *doc.FocalX,
			FocalY:  *doc.FocalY,
			CenterX: *doc.CX,
			CenterY: *doc.CY,
		},
		Frames: make([]models.FrameRecord, 0, len(*doc.Frames)),
	}
	if err := cf.Intrinsics.Validate(); err != nil {
		return nil, err
	}

	for i, f := range *doc.Frames {
		if f.FilePath == nil {
			return nil, errors.Errorf("frame %d: missing file_path", i)
		}
		if len(f.TransformMatrix) == 0 || string(bytes.TrimSpace(f.TransformMatrix)) == "null" {
			return nil, errors.Errorf("frame %d (%s): missing transform_matrix", i, *f.FilePath)
		}
		rows, cols, err := matrixShape(f.TransformMatrix)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d (%s): transform_matrix", i, *f.FilePath)
		}
		if rows != 4 || cols != 4 {
			logger.Warnw("transform_matrix is not 4x4, copying it unchanged",
				"frame", *f.FilePath, "rows", rows, "cols", cols)
		}
		cf.Frames = append(cf.Frames, models.FrameRecord{
			FilePath:        *f.FilePath,
			TransformMatrix: f.TransformMatrix,
			DepthFilePath:   f.DepthFilePath,
		})
	}
	return cf, nil
}

func pixelCount(key string, v float64) (int, error) {
	if v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, errors.Errorf("%s must be a whole number of pixels, got %g", key, v)
	}
	return int(v), nil
}

// matrixShape checks that raw is a numeric array of arrays and returns its
// row count and widest row.
func matrixShape(raw json.RawMessage) (rows, cols int, err error) {
	var m [][]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, 0, err
	}
	for _, row := range m {
		cols = max(cols, len(row))
	}
	return len(m), cols, nil
}
