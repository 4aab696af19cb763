package hat

import (
	"fmt"
	"image"
	"time"
)

// Frame is a single camera frame handed to the pipeline.
type Frame struct {
	Index     int
	Image     image.Image
	Timestamp time.Duration
}

// Face is a face reported by a detector for a single frame.
// The bounding box is expressed in frame coordinates. TrackingID is nil when
// the detector could not correlate the face with a previous frame.
type Face struct {
	BoundingBox image.Rectangle
	TrackingID  *int
}

// ID returns the tracking id and whether it is present.
func (f Face) ID() (int, bool) {
	if f.TrackingID == nil {
		return 0, false
	}
	return *f.TrackingID, true
}

// String implements the fmt.Stringer interface.
func (f Face) String() string {
	b := f.BoundingBox
	if id, ok := f.ID(); ok {
		return fmt.Sprintf("face#%d [%d %d %d %d]", id, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	return fmt.Sprintf("face [%d %d %d %d]", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}

// TrackingID is a helper for building a Face with a tracking id.
func TrackingID(id int) *int {
	return &id
}

// FrameResult is the outcome of a successful detection: either NoFace or FaceDetected.
type FrameResult interface {
	frameResult()
}

// NoFace signals that the detector did not find any face in the frame.
type NoFace struct{}

// FaceDetected carries the single face of interest of the frame.
type FaceDetected struct {
	Face Face
}

func (NoFace) frameResult()       {}
func (FaceDetected) frameResult() {}

// FirstFace reduces a detector output to the face of interest.
// Only the first reported face is considered, the rest is ignored.
func FirstFace(faces []Face) FrameResult {
	if len(faces) == 0 {
		return NoFace{}
	}
	return FaceDetected{Face: faces[0]}
}
