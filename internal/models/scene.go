package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point3D is a single reconstructed point of a COLMAP sparse model
type Point3D struct {
	// ID is the COLMAP point identifier
	ID uint64

	// XYZ is the point position in world coordinates
	XYZ r3.Vec

	// RGB is the point color
	RGB [3]uint8

	// Error is the mean reprojection error in pixels
	Error float64

	// TrackLength is the number of image observations of the point
	TrackLength int
}

// PointCloud maps a point ID to its point. It is not modified after loading.
type PointCloud map[uint64]Point3D

// Positions returns the point coordinates ordered by ascending point ID.
func (pc PointCloud) Positions() []r3.Vec {
	ids := make([]uint64, 0, len(pc))
	for id := range pc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	positions := make([]r3.Vec, len(ids))
	for i, id := range ids {
		positions[i] = pc[id].XYZ
	}
	return positions
}

// CameraIntrinsics holds the pinhole projection parameters shared by all frames
type CameraIntrinsics struct {
	// Width and Height are the image size in pixels
	Width, Height int

	// FocalX and FocalY are the focal lengths in pixels
	FocalX, FocalY float64

	// CenterX and CenterY are the principal point in pixels
	CenterX, CenterY float64
}

// Validate reports an error if the image size or focal lengths are not positive.
func (c CameraIntrinsics) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FocalX <= 0 || c.FocalY <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fl_x=%g fl_y=%g", c.FocalX, c.FocalY)
	}
	return nil
}

// FrameRecord is one posed image. The transform matrix is a 4x4 camera-to-world
// matrix kept as the exact JSON text it was read from.
type FrameRecord struct {
	FilePath        string          `json:"file_path"`
	TransformMatrix json.RawMessage `json:"transform_matrix"`
	DepthFilePath   *string         `json:"depth_file_path,omitempty"`
}

// SceneStatistics describes the extent of a point cloud
type SceneStatistics struct {
	// Center is the per-axis mean
	Center [3]float64

	// StdDev is the per-axis population standard deviation
	StdDev [3]float64

	// Radius is twice the largest per-axis standard deviation
	Radius float64

	// BoundingBox holds [min, max] per axis at three standard deviations
	BoundingBox [3][2]float64

	// AABBScale is the power of two nearest to Radius
	AABBScale int
}

// SceneDescriptor is the transforms.json document. Field order is the key order
// of the written file.
type SceneDescriptor struct {
	CameraAngleX float64       `json:"camera_angle_x"`
	CameraAngleY float64       `json:"camera_angle_y"`
	FocalX       float64       `json:"fl_x"`
	FocalY       float64       `json:"fl_y"`
	SkewX        float64       `json:"sk_x"`
	SkewY        float64       `json:"sk_y"`
	K1           float64       `json:"k1"`
	K2           float64       `json:"k2"`
	K3           float64       `json:"k3"`
	K4           float64       `json:"k4"`
	P1           float64       `json:"p1"`
	P2           float64       `json:"p2"`
	IsFisheye    bool          `json:"is_fisheye"`
	CenterX      float64       `json:"cx"`
	CenterY      float64       `json:"cy"`
	Width        int           `json:"w"`
	Height       int           `json:"h"`
	AABBScale    int           `json:"aabb_scale"`
	AABBRange    [3][2]float64 `json:"aabb_range"`
	SphereCenter [3]float64    `json:"sphere_center"`
	SphereRadius float64       `json:"sphere_radius"`
	Frames       []FrameRecord `json:"frames"`
}
