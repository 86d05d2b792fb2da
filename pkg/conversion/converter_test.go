package conversion

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"colmap2nerf/internal/models"
	"colmap2nerf/pkg/colmap"
	"colmap2nerf/pkg/config"
	"colmap2nerf/pkg/transforms"
)

const cameraFile = `{
  "w": 100, "h": 50, "fl_x": 50, "fl_y": 50, "cx": 50, "cy": 25,
  "frames": [
    {"file_path": "images/b.png", "transform_matrix": [[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]},
    {"file_path": "images/a.png", "transform_matrix": [[1,0,0,1],[0,1,0,2],[0,0,1,3],[0,0,0,1]],
     "depth_file_path": "depth/a.png"}
  ]
}`

// createScene lays out <root>/colmap/points3D.bin and <root>/dense/scan/<camera file>
// and returns the input directory
func createScene(t *testing.T, cloud models.PointCloud, withCamera bool) string {
	t.Helper()
	root := t.TempDir()
	inputDir := filepath.Join(root, "dense", "scan")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "colmap"), 0755))

	if withCamera {
		require.NoError(t, os.WriteFile(filepath.Join(inputDir, "transformations_colmap.json"), []byte(cameraFile), 0644))
	}
	if cloud != nil {
		var buf bytes.Buffer
		require.NoError(t, colmap.WritePoints3DBinary(&buf, cloud))
		require.NoError(t, os.WriteFile(filepath.Join(root, "colmap", "points3D.bin"), buf.Bytes(), 0644))
	}
	return inputDir
}

func lineCloud() models.PointCloud {
	return models.PointCloud{
		10: {ID: 10, XYZ: r3.Vec{X: 0}},
		20: {ID: 20, XYZ: r3.Vec{X: 2}},
		30: {ID: 30, XYZ: r3.Vec{X: 4}},
	}
}

func TestProcess(t *testing.T) {
	inputDir := createScene(t, lineCloud(), true)

	conv := NewConverter(&Params{InputDir: inputDir}, nil, nil)
	out, err := conv.Process()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(inputDir, "transforms.json"), out)

	desc, err := transforms.ReadDescriptor(out)
	require.NoError(t, err)

	assert.InDelta(t, 1.5708, desc.CameraAngleX, 1e-4)
	assert.InDelta(t, 0.9273, desc.CameraAngleY, 1e-4)
	assert.Equal(t, 4, desc.AABBScale)
	assert.InDelta(t, 3.266, desc.SphereRadius, 1e-3)
	assert.InDeltaSlice(t, []float64{2, 0, 0}, desc.SphereCenter[:], 1e-12)
	assert.InDelta(t, -2.899, desc.AABBRange[0][0], 1e-3)
	assert.InDelta(t, 6.899, desc.AABBRange[0][1], 1e-3)

	require.Len(t, desc.Frames, 2)
	assert.Equal(t, "images/b.png", desc.Frames[0].FilePath)
	assert.Nil(t, desc.Frames[0].DepthFilePath)
	assert.Equal(t, "images/a.png", desc.Frames[1].FilePath)
	require.NotNil(t, desc.Frames[1].DepthFilePath)
	assert.Equal(t, "depth/a.png", *desc.Frames[1].DepthFilePath)

	assert.Equal(t, desc.AABBScale, conv.Statistics().AABBScale)
}

func TestProcessCustomOutputName(t *testing.T) {
	inputDir := createScene(t, lineCloud(), true)

	out, err := NewConverter(&Params{InputDir: inputDir, OutputFilename: "transforms_val.json"}, nil, nil).Process()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(inputDir, "transforms_val.json"), out)
	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(inputDir, "transforms.json"))
}

func TestProcessTextPoints(t *testing.T) {
	inputDir := createScene(t, nil, true)
	sparse := filepath.Join(inputDir, "sparse")
	require.NoError(t, os.MkdirAll(sparse, 0755))
	points := "# text model\n1 0 0 0 0 0 0 0\n2 2 0 0 0 0 0 0\n3 4 0 0 0 0 0 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(sparse, "points3D.txt"), []byte(points), 0644))

	cfg := config.DefaultConfig()
	cfg.Input.PointsPath = filepath.Join("sparse", "points3D.txt")

	conv := NewConverter(&Params{InputDir: inputDir}, cfg, nil)
	_, err := conv.Process()
	require.NoError(t, err)
	assert.Equal(t, 4, conv.Statistics().AABBScale)
}

func TestProcessMissingCameraFile(t *testing.T) {
	inputDir := createScene(t, lineCloud(), false)

	_, err := NewConverter(&Params{InputDir: inputDir}, nil, nil).Process()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotFound), "got %v", err)
	assert.NoFileExists(t, filepath.Join(inputDir, "transforms.json"))
}

func TestProcessMissingPoints(t *testing.T) {
	inputDir := createScene(t, nil, true)

	_, err := NewConverter(&Params{InputDir: inputDir}, nil, nil).Process()
	assert.True(t, errors.Is(err, ErrFileNotFound), "got %v", err)
	assert.NoFileExists(t, filepath.Join(inputDir, "transforms.json"))
}

func TestProcessEmptyPointCloud(t *testing.T) {
	inputDir := createScene(t, models.PointCloud{}, true)

	_, err := NewConverter(&Params{InputDir: inputDir}, nil, nil).Process()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompute), "got %v", err)
	assert.NoFileExists(t, filepath.Join(inputDir, "transforms.json"))
}

func TestProcessCorruptPoints(t *testing.T) {
	inputDir := createScene(t, nil, true)
	path := filepath.Join(inputDir, "..", "..", "colmap", "points3D.bin")
	require.NoError(t, os.WriteFile(path, []byte{3, 0, 0, 0, 0, 0, 0, 0, 1, 2}, 0644))

	_, err := NewConverter(&Params{InputDir: inputDir}, nil, nil).Process()
	assert.True(t, errors.Is(err, ErrParse), "got %v", err)
}

func TestProcessUnwritableOutput(t *testing.T) {
	inputDir := createScene(t, lineCloud(), true)

	_, err := NewConverter(&Params{InputDir: inputDir, OutputFilename: filepath.Join("missing", "transforms.json")}, nil, nil).Process()
	assert.True(t, errors.Is(err, ErrWrite), "got %v", err)
}

func TestPaths(t *testing.T) {
	conv := NewConverter(&Params{InputDir: filepath.Join("data", "scene", "dense")}, nil, nil)

	assert.Equal(t, filepath.Join("data", "scene", "dense", "transformations_colmap.json"), conv.ColmapJSONPath())
	assert.Equal(t, filepath.Join("data", "colmap", "points3D.bin"), conv.PointsPath())
	assert.Equal(t, filepath.Join("data", "scene", "dense", "transforms.json"), conv.OutputPath())
}

func TestAbsolutePointsPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "sparse", "points3D.bin")
	cfg := config.DefaultConfig()
	cfg.Input.PointsPath = abs

	conv := NewConverter(&Params{InputDir: filepath.Join("data", "scene")}, cfg, nil)
	assert.Equal(t, abs, conv.PointsPath())
}

func TestProcessAbsolutePointsPath(t *testing.T) {
	inputDir := createScene(t, nil, true)
	pointsDir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, colmap.WritePoints3DBinary(&buf, lineCloud()))
	require.NoError(t, os.WriteFile(filepath.Join(pointsDir, "points3D.bin"), buf.Bytes(), 0644))

	cfg := config.DefaultConfig()
	cfg.Input.PointsPath = filepath.Join(pointsDir, "points3D.bin")

	conv := NewConverter(&Params{InputDir: inputDir}, cfg, nil)
	_, err := conv.Process()
	require.NoError(t, err)
	assert.Equal(t, 4, conv.Statistics().AABBScale)
}

func TestProcessNonFinitePoints(t *testing.T) {
	cloud := lineCloud()
	cloud[40] = models.Point3D{ID: 40, XYZ: r3.Vec{X: 1, Y: math.NaN()}}
	inputDir := createScene(t, cloud, true)

	_, err := NewConverter(&Params{InputDir: inputDir}, nil, nil).Process()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompute), "got %v", err)
	assert.False(t, errors.Is(err, ErrWrite), "got %v", err)
	assert.NoFileExists(t, filepath.Join(inputDir, "transforms.json"))
}
