package hat

import (
	"context"
	"fmt"
)

// Detector is the face detection capability the adapter depends on.
type Detector interface {
	// Process returns the faces found in the frame, in detector order.
	Process(ctx context.Context, frame Frame) ([]Face, error)
	// Close releases the detector resources.
	Close() error
}

// DetectionError is returned when the detector fails on a frame.
type DetectionError struct {
	Frame int
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("face detection failed on frame %d: %v", e.Frame, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Adapter invokes the detector for every frame and reduces its output to at most one face.
type Adapter struct {
	detector Detector
}

// detection holds the outcome of a detector call running in its own goroutine.
type detection struct {
	faces []Face
	err   error
}

// NewAdapter wraps the provided detector.
func NewAdapter(d Detector) *Adapter {
	return &Adapter{detector: d}
}

// Detect runs the detector over the frame and returns the face of interest.
// The detector is invoked on a separate goroutine; if the context is cancelled
// before it completes the late result is discarded and the context error is returned.
func (a *Adapter) Detect(ctx context.Context, frame Frame) (FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Buffered, so the detector goroutine never blocks on an abandoned frame.
	done := make(chan detection, 1)
	go func() {
		faces, err := a.detector.Process(ctx, frame)
		done <- detection{faces: faces, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		// A result racing with cancellation is dropped as well.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.err != nil {
			return nil, &DetectionError{Frame: frame.Index, Err: res.err}
		}
		return FirstFace(res.faces), nil
	}
}

// Close releases the underlying detector.
func (a *Adapter) Close() error {
	return a.detector.Close()
}
