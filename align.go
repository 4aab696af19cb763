package hat

import (
	"errors"
	"image"
	"io"
	"math"
	"sync"

	"gioui.org/f32"
	"github.com/sirupsen/logrus"
)

const (
	// alignThreshold is the maximum center distance and radius difference
	// (exclusive, in screen units) for a face to be considered aligned.
	alignThreshold = 15.0
	// targetDivisor sets the target circle radius as a fraction of the screen width.
	targetDivisor = 2.3
	// faceRadiusFactor sets the face circle radius relative to the bounding box width.
	faceRadiusFactor = 2.0
)

// ErrUnknownResult is returned for a FrameResult which is neither NoFace nor FaceDetected.
var ErrUnknownResult = errors.New("unknown frame result")

// AlignmentTracker runs the lock-on state machine.
// It owns the locked identity and is safe for use by multiple goroutines,
// although frames are expected to be fed in order.
type AlignmentTracker struct {
	mu       sync.Mutex
	lockedID *int

	hatSize image.Point
	log     logrus.FieldLogger
}

// TrackerOption configures an AlignmentTracker.
type TrackerOption func(*AlignmentTracker)

// WithHatSize sets the intrinsic size of the overlay bitmap drawn in the locked state.
func WithHatSize(size image.Point) TrackerOption {
	return func(t *AlignmentTracker) {
		t.hatSize = size
	}
}

// WithTrackerLogger sets the logger used for per frame debug output.
func WithTrackerLogger(l logrus.FieldLogger) TrackerOption {
	return func(t *AlignmentTracker) {
		t.log = l
	}
}

// NewAlignmentTracker creates a tracker with no locked identity.
func NewAlignmentTracker(opts ...TrackerOption) *AlignmentTracker {
	t := &AlignmentTracker{log: discardLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LockedID returns the locked identity and whether it is present.
func (t *AlignmentTracker) LockedID() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lockedID == nil {
		return 0, false
	}
	return *t.lockedID, true
}

// Reset clears the locked identity.
func (t *AlignmentTracker) Reset() {
	t.mu.Lock()
	t.lockedID = nil
	t.mu.Unlock()
}

// Update feeds the result of a frame into the state machine and returns the draw instruction.
// In case of an error the locked identity is left untouched and no instruction should be drawn.
func (t *AlignmentTracker) Update(res FrameResult, g Geometry) (DrawInstruction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch r := res.(type) {
	case NoFace:
		t.lockedID = nil
		return DrawInstruction{
			State: Searching,
			Lines: textLines(searchingText),
		}, nil
	case FaceDetected:
		return t.updateFace(r.Face, g)
	}
	return DrawInstruction{}, ErrUnknownResult
}

// updateFace handles a frame with a face. Caller must hold the lock.
func (t *AlignmentTracker) updateFace(face Face, g Geometry) (DrawInstruction, error) {
	if err := checkGeometry(g); err != nil {
		return DrawInstruction{}, err
	}
	var (
		box     = face.BoundingBox
		sw, sh  = g.Size()
		x       = g.TranslateX(float64(box.Min.X+box.Max.X) / 2)
		y       = g.TranslateY(float64(box.Min.Y+box.Max.Y) / 2)
		faceR   = float64(box.Dx()) * faceRadiusFactor
		targetR = sw / targetDivisor
		dist    = math.Hypot(sw/2-x, sh/2-y)
	)

	t.log.WithFields(logrus.Fields{
		"face":      face.String(),
		"locked_id": optionalID(t.lockedID),
		"distance":  dist,
	}).Debug("face detected")

	id, tracked := face.ID()
	if tracked && t.lockedID != nil && *t.lockedID == id {
		return t.lockedInstruction(face, g), nil
	}
	if aligned(dist, faceR, targetR) {
		t.lockedID = nil
		if tracked {
			t.lockedID = &id
		}
		t.log.WithField("face", face.String()).Info("face aligned, locking on")
		return t.lockedInstruction(face, g), nil
	}

	return DrawInstruction{
		State:      Aligning,
		Lines:      textLines(aligningText),
		Target:     &Circle{X: sw / 2, Y: sh / 2, Radius: targetR},
		FaceCircle: &Circle{X: x, Y: y, Radius: faceR},
	}, nil
}

// lockedInstruction places the hat centered above the face.
func (t *AlignmentTracker) lockedInstruction(face Face, g Geometry) DrawInstruction {
	var (
		box   = face.BoundingBox
		sw, _ = g.Size()
		x     = g.TranslateX(float64(box.Min.X+box.Max.X) / 2)
		y     = g.TranslateY(float64(box.Min.Y+box.Max.Y) / 2)
		left  = x - g.Scale(float64(box.Dx())/2)
		top   = y - g.Scale(float64(box.Dy())/2)
		scale = g.Scale(float64(box.Dx())) / sw
		hatH  = float64(t.hatSize.Y) * scale
	)
	tr := f32.Affine2D{}.
		Scale(f32.Point{}, f32.Pt(float32(2*scale), float32(2*scale))).
		Offset(f32.Pt(float32(left), float32(top-hatH/2)))

	return DrawInstruction{
		State: Locked,
		Lines: textLines(lockedText),
		Hat:   &HatPlacement{Transform: tr},
	}
}

// aligned reports whether the face circle matches the target circle closely enough to lock on.
func aligned(centerDistance, faceRadius, targetRadius float64) bool {
	return math.Abs(centerDistance) < alignThreshold &&
		math.Abs(faceRadius-targetRadius) < alignThreshold
}

// checkGeometry rejects views with no area, which would otherwise produce meaningless radii.
func checkGeometry(g Geometry) error {
	if g == nil {
		return ErrDegenerateGeometry
	}
	if v, ok := g.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if w, h := g.Size(); w <= 0 || h <= 0 {
		return ErrDegenerateGeometry
	}
	return nil
}

// optionalID returns the id value for logging, or nil when absent.
func optionalID(id *int) any {
	if id == nil {
		return nil
	}
	return *id
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
