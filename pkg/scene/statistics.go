// Package scene derives the normalization statistics of a sparse point cloud:
// the sphere used to rescale a scene and the axis-aligned box used to bound it.
package scene

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"colmap2nerf/internal/models"
)

const (
	// RadiusSigma scales the largest per-axis standard deviation into the sphere radius.
	RadiusSigma = 2.0

	// BoxSigma scales each axis standard deviation into the half-width of the bounding box.
	BoxSigma = 3.0
)

var (
	// ErrEmptyPointCloud is returned when there are no points to reduce
	ErrEmptyPointCloud = errors.Wrap(models.ErrCompute, "point cloud is empty")

	// ErrDegenerateRadius is returned when the radius has no base-2 logarithm
	ErrDegenerateRadius = errors.Wrap(models.ErrCompute, "scene radius must be positive and finite")

	// ErrNonFiniteStatistics is returned when a coordinate makes the center or spread NaN or infinite
	ErrNonFiniteStatistics = errors.Wrap(models.ErrCompute, "point cloud statistics are not finite")
)

// ComputeStatistics reduces the point cloud to its center, spread, bounding
// sphere radius, bounding box and aabb_scale. Standard deviations are population
// deviations (divided by N).
func ComputeStatistics(cloud models.PointCloud) (models.SceneStatistics, error) {
	if len(cloud) == 0 {
		return models.SceneStatistics{}, ErrEmptyPointCloud
	}

	positions := cloud.Positions()
	axes := [3][]float64{
		make([]float64, len(positions)),
		make([]float64, len(positions)),
		make([]float64, len(positions)),
	}
	for i, p := range positions {
		axes[0][i] = p.X
		axes[1][i] = p.Y
		axes[2][i] = p.Z
	}

	var s models.SceneStatistics
	for a, values := range axes {
		s.Center[a], s.StdDev[a] = stat.PopMeanStdDev(values, nil)
		if !isFinite(s.Center[a]) || !isFinite(s.StdDev[a]) {
			return models.SceneStatistics{}, errors.Wrapf(ErrNonFiniteStatistics,
				"axis %d: center %g, std %g", a, s.Center[a], s.StdDev[a])
		}
	}

	s.Radius = floats.Max(s.StdDev[:]) * RadiusSigma

	for a := range s.BoundingBox {
		s.BoundingBox[a] = [2]float64{
			s.Center[a] - s.StdDev[a]*BoxSigma,
			s.Center[a] + s.StdDev[a]*BoxSigma,
		}
	}

	scale, err := AABBScale(s.Radius)
	if err != nil {
		return models.SceneStatistics{}, err
	}
	s.AABBScale = scale

	return s, nil
}

// maxScaleExp keeps 1<<exp inside a 64-bit int.
const maxScaleExp = 62

// AABBScale returns the power of two nearest to radius in log space. The
// exponent is rounded half to even, so an exact tie such as 2^2.5 maps to 4.
// Radii below 2^-0.5 give 1, the smallest positive scale.
func AABBScale(radius float64) (int, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return 0, errors.Wrapf(ErrDegenerateRadius, "radius %g", radius)
	}
	exp := math.RoundToEven(math.Log2(radius))
	if exp > maxScaleExp {
		return 0, errors.Wrapf(ErrDegenerateRadius, "radius %g overflows aabb_scale", radius)
	}
	if exp < 0 {
		exp = 0
	}
	return 1 << int(exp), nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
