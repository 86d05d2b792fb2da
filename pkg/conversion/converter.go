// Package conversion runs the COLMAP to transforms.json pipeline: load the
// camera file and sparse points, derive the scene statistics, then assemble
// and write the descriptor.
package conversion

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"colmap2nerf/internal/models"
	"colmap2nerf/pkg/colmap"
	"colmap2nerf/pkg/config"
	"colmap2nerf/pkg/scene"
	"colmap2nerf/pkg/transforms"
)

// Error kinds returned by Process. Match them with errors.Is.
var (
	ErrFileNotFound = models.ErrFileNotFound
	ErrParse        = models.ErrParse
	ErrCompute      = models.ErrCompute
	ErrWrite        = models.ErrWrite
)

// Params holds the per-run inputs
type Params struct {
	// InputDir contains the camera file and receives the descriptor
	InputDir string

	// OutputFilename is the descriptor file name inside InputDir.
	// Empty means the configured default.
	OutputFilename string
}

// Converter turns one COLMAP scene into a scene descriptor.
//
// Process runs four steps in order and stops at the first error:
// 1. Loading the camera intrinsics and frames
// 2. Loading the sparse point cloud
// 3. Computing the scene statistics
// 4. Assembling and writing the descriptor
type Converter struct {
	params *Params
	cfg    *config.Config
	logger *zap.SugaredLogger

	camera *transforms.ColmapFile
	cloud  models.PointCloud
	stats  models.SceneStatistics
}

// NewConverter creates a converter. A nil cfg uses the defaults and a nil
// logger discards log output.
func NewConverter(params *Params, cfg *config.Config, logger *zap.SugaredLogger) *Converter {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Converter{
		params: params,
		cfg:    cfg,
		logger: logger,
	}
}

// ColmapJSONPath is the camera file location
func (c *Converter) ColmapJSONPath() string {
	return filepath.Join(c.params.InputDir, c.cfg.Input.ColmapJSON)
}

// PointsPath is the sparse point cloud location. A relative configured path
// is taken from InputDir; an absolute one is used as is.
func (c *Converter) PointsPath() string {
	if filepath.IsAbs(c.cfg.Input.PointsPath) {
		return c.cfg.Input.PointsPath
	}
	return filepath.Join(c.params.InputDir, c.cfg.Input.PointsPath)
}

// OutputPath is where the descriptor is written
func (c *Converter) OutputPath() string {
	name := c.params.OutputFilename
	if name == "" {
		name = c.cfg.Output.Filename
	}
	return filepath.Join(c.params.InputDir, name)
}

// Process runs the complete conversion and returns the descriptor path
func (c *Converter) Process() (string, error) {
	fmt.Println("Step 1: Loading camera intrinsics and frames...")
	if err := c.loadCamera(); err != nil {
		return "", err
	}

	fmt.Println("Step 2: Loading sparse point cloud...")
	if err := c.loadPoints(); err != nil {
		return "", err
	}

	fmt.Println("Step 3: Computing scene statistics...")
	if err := c.computeStatistics(); err != nil {
		return "", err
	}

	fmt.Println("Step 4: Writing scene descriptor...")
	out := c.OutputPath()
	desc := transforms.Assemble(c.camera.Intrinsics, c.stats, c.camera.Frames)
	if err := transforms.WriteDescriptor(out, desc); err != nil {
		return "", err
	}
	c.logger.Infow("wrote scene descriptor", "path", out, "frames", len(desc.Frames))

	return out, nil
}

func (c *Converter) loadCamera() error {
	cf, err := transforms.LoadColmapFile(c.ColmapJSONPath(), c.logger)
	if err != nil {
		return err
	}
	c.camera = cf
	return nil
}

func (c *Converter) loadPoints() error {
	cloud, err := colmap.ReadPoints3D(c.PointsPath(), c.logger)
	if err != nil {
		return err
	}
	c.cloud = cloud
	return nil
}

func (c *Converter) computeStatistics() error {
	stats, err := scene.ComputeStatistics(c.cloud)
	if err != nil {
		return errors.Wrapf(err, "%d points from %s", len(c.cloud), c.PointsPath())
	}
	c.stats = stats
	c.logger.Debugw("scene statistics",
		"center", stats.Center, "std", stats.StdDev,
		"radius", stats.Radius, "aabb_scale", stats.AABBScale)
	return nil
}

// Statistics returns the statistics of the last successful Process
func (c *Converter) Statistics() models.SceneStatistics {
	return c.stats
}
