package hat

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/moubarak/mlkit-hat/utils"
)

// ErrDetectorClosed is returned by a detector used after Close.
var ErrDetectorClosed = errors.New("detector is closed")

// ErrInvalidCascade is returned for a truncated or malformed cascade file.
var ErrInvalidCascade = errors.New("invalid cascade")

// PigoOptions holds the face detector settings.
type PigoOptions struct {
	// MinSize and MaxSize bound the face size in pixels of the (downscaled) frame.
	// A zero MaxSize means the largest frame side.
	MinSize int
	MaxSize int
	// ShiftFactor moves the detection window by this fraction of its size.
	ShiftFactor float64
	// ScaleFactor grows the detection window between scales.
	ScaleFactor float64
	// Angle detects plane rotated faces, 0.0 meaning upright and 1.0 a full turn.
	Angle float64
	// IoUThreshold is used to cluster overlapping detections.
	IoUThreshold float64
	// MinQuality discards the clustered detections scoring below it.
	MinQuality float32
	// DetectWidth downscales wider frames to this width before detection. Zero disables it.
	DetectWidth int
	// Tracking assigns tracking ids to the faces across frames.
	Tracking        bool
	TrackMinIoU     float64
	TrackMaxNoMatch int
}

// DefaultPigoOptions returns settings suited for a selfie camera stream.
func DefaultPigoOptions() PigoOptions {
	return PigoOptions{
		MinSize:         60,
		ShiftFactor:     0.1,
		ScaleFactor:     1.1,
		IoUThreshold:    0.2,
		MinQuality:      5.0,
		DetectWidth:     640,
		Tracking:        true,
		TrackMinIoU:     0.3,
		TrackMaxNoMatch: 5,
	}
}

// PigoDetector detects faces with the pigo cascade classifier.
type PigoDetector struct {
	opts       PigoOptions
	classifier *pigo.Pigo
	identities *IdentityTracker

	mu     sync.Mutex
	closed bool
}

var _ Detector = (*PigoDetector)(nil)

// LoadCascade reads a pigo cascade file from disk.
func LoadCascade(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the cascade file: %w", err)
	}
	return data, nil
}

// NewPigoDetector unpacks the cascade and returns a ready to use detector.
func NewPigoDetector(cascade []byte, opts PigoOptions) (*PigoDetector, error) {
	classifier, err := unpackCascade(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	d := &PigoDetector{
		opts:       opts,
		classifier: classifier,
	}
	if opts.Tracking {
		d.identities = NewIdentityTracker(opts.TrackMinIoU, opts.TrackMaxNoMatch)
	}
	return d, nil
}

// unpackCascade unpacks the binary file. This will return the number of cascade trees,
// the tree depth, the threshold and the prediction from tree's leaf nodes.
// The unpacker indexes the packet without bounds checks, a truncated file is reported as an error.
func unpackCascade(cascade []byte) (classifier *pigo.Pigo, err error) {
	if len(cascade) < 16 {
		return nil, ErrInvalidCascade
	}
	defer func() {
		if r := recover(); r != nil {
			classifier, err = nil, fmt.Errorf("%w: %v", ErrInvalidCascade, r)
		}
	}()
	return pigo.NewPigo().Unpack(cascade)
}

// Process returns the faces found in the frame, the best scoring first.
func (d *PigoDetector) Process(ctx context.Context, frame Frame) ([]Face, error) {
	// Calls are serialized, since a cancelled frame may still be running when the next one starts.
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}
	if frame.Image == nil {
		return nil, errors.New("frame has no image")
	}

	src := imgToNRGBA(frame.Image)
	dx, dy := src.Bounds().Dx(), src.Bounds().Dy()
	if dx == 0 || dy == 0 {
		return nil, fmt.Errorf("empty frame of size %dx%d", dx, dy)
	}

	ratio := 1.0
	if d.opts.DetectWidth > 0 && dx > d.opts.DetectWidth {
		src = imaging.Resize(src, d.opts.DetectWidth, 0, imaging.Linear)
		ratio = float64(dx) / float64(src.Bounds().Dx())
		dx, dy = src.Bounds().Dx(), src.Bounds().Dy()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxSize := d.opts.MaxSize
	if maxSize == 0 {
		maxSize = utils.Max(dx, dy)
	}
	cParams := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,

		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   dy,
			Cols:   dx,
			Dim:    dx,
		},
	}

	// Run the classifier over the obtained leaf nodes and return the detection results.
	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := d.classifier.RunCascade(cParams, d.opts.Angle)

	// Calculate the intersection over union (IoU) of two clusters.
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	boxes := faceBoxes(dets, d.opts.MinQuality, ratio)

	if d.identities != nil {
		return d.identities.Assign(boxes), nil
	}
	faces := make([]Face, len(boxes))
	for i, b := range boxes {
		faces[i] = Face{BoundingBox: b}
	}
	return faces, nil
}

// Close releases the classifier. Further calls to Process fail.
func (d *PigoDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.classifier = nil
	return nil
}

// faceBoxes keeps the detections scoring at least minQ and returns their boxes,
// the best scoring first.
func faceBoxes(dets []pigo.Detection, minQ float32, ratio float64) []image.Rectangle {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Q > dets[j].Q
	})
	boxes := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < minQ {
			continue
		}
		boxes = append(boxes, detectionBox(det, ratio))
	}
	return boxes
}

// detectionBox converts a pigo detection to a bounding box in original frame coordinates.
func detectionBox(det pigo.Detection, ratio float64) image.Rectangle {
	half := float64(det.Scale) / 2
	row, col := float64(det.Row), float64(det.Col)

	return image.Rect(
		int((col-half)*ratio),
		int((row-half)*ratio),
		int((col+half)*ratio),
		int((row+half)*ratio),
	)
}
