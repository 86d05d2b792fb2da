package transforms

import (
	"bytes"
	"encoding/json"
	"math"
	"os"

	"go.uber.org/multierr"

	"colmap2nerf/internal/models"
)

// FieldOfView returns the pinhole field of view in radians across size pixels
// at the given focal length.
func FieldOfView(size int, focal float64) float64 {
	return 2 * math.Atan(float64(size)/(2*focal))
}

// Assemble builds the scene descriptor. Lens distortion and skew are not
// estimated and are always written as zero for a non-fisheye camera. Frames
// keep their input order.
func Assemble(intr models.CameraIntrinsics, stats models.SceneStatistics, frames []models.FrameRecord) models.SceneDescriptor {
	out := make([]models.FrameRecord, len(frames))
	copy(out, frames)

	return models.SceneDescriptor{
		CameraAngleX: FieldOfView(intr.Width, intr.FocalX),
		CameraAngleY: FieldOfView(intr.Height, intr.FocalY),
		FocalX:       intr.FocalX,
		FocalY:       intr.FocalY,
		IsFisheye:    false,
		CenterX:      intr.CenterX,
		CenterY:      intr.CenterY,
		Width:        intr.Width,
		Height:       intr.Height,
		AABBScale:    stats.AABBScale,
		AABBRange:    stats.BoundingBox,
		SphereCenter: stats.Center,
		SphereRadius: stats.Radius,
		Frames:       out,
	}
}

// EncodeDescriptor renders desc as JSON indented by two spaces, without a
// trailing newline. Strings are not HTML-escaped, so paths keep their bytes.
func EncodeDescriptor(desc models.SceneDescriptor) ([]byte, error) {
	if desc.Frames == nil {
		desc.Frames = []models.FrameRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(desc); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WriteDescriptor writes desc to path, replacing any existing file.
func WriteDescriptor(path string, desc models.SceneDescriptor) (err error) {
	data, err := EncodeDescriptor(desc)
	if err != nil {
		return models.WrapKind(models.ErrWrite, err, "encoding descriptor")
	}

	f, err := os.Create(path)
	if err != nil {
		return models.WrapKind(models.ErrWrite, err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Combine(err, models.WrapKind(models.ErrWrite, cerr, "closing %s", path))
		}
	}()

	if _, err := f.Write(data); err != nil {
		return models.WrapKind(models.ErrWrite, err, "writing %s", path)
	}
	return nil
}

// ReadDescriptor reads back a descriptor written by WriteDescriptor.
func ReadDescriptor(path string) (*models.SceneDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.WrapKind(models.ErrFileNotFound, err, "descriptor")
		}
		return nil, models.WrapKind(models.ErrParse, err, "descriptor")
	}
	var desc models.SceneDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, models.WrapKind(models.ErrParse, err, "decoding %s", path)
	}
	return &desc, nil
}
