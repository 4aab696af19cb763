package hat

import (
	"errors"
	"image"
)

// ErrDegenerateGeometry is returned when the overlay has a zero or negative dimension.
var ErrDegenerateGeometry = errors.New("degenerate overlay geometry")

// Geometry maps frame coordinates to screen coordinates.
type Geometry interface {
	TranslateX(x float64) float64
	TranslateY(y float64) float64
	Scale(v float64) float64
	Size() (width, height float64)
}

// Overlay describes a view of Width x Height screen units displaying frames of
// ImageWidth x ImageHeight pixels. The frame is scaled to fill the view while
// keeping its aspect ratio, the overflowing part being cropped evenly on both sides.
// Mirrored flips the horizontal axis, as needed for a front facing camera.
type Overlay struct {
	Width       float64
	Height      float64
	ImageWidth  float64
	ImageHeight float64
	Mirrored    bool
}

var _ Geometry = (*Overlay)(nil)

// NewOverlay creates the geometry of a view showing the frame bounds.
// A zero view size means the frame is shown at its own size.
func NewOverlay(view image.Point, frame image.Rectangle, mirrored bool) *Overlay {
	o := &Overlay{
		Width:       float64(view.X),
		Height:      float64(view.Y),
		ImageWidth:  float64(frame.Dx()),
		ImageHeight: float64(frame.Dy()),
		Mirrored:    mirrored,
	}
	if view.X == 0 && view.Y == 0 {
		o.Width, o.Height = o.ImageWidth, o.ImageHeight
	}
	return o
}

// Validate reports ErrDegenerateGeometry in case any of the dimensions is not positive.
func (o *Overlay) Validate() error {
	if o.Width <= 0 || o.Height <= 0 || o.ImageWidth <= 0 || o.ImageHeight <= 0 {
		return ErrDegenerateGeometry
	}
	return nil
}

// ScaleFactor returns the frame to screen scale factor.
func (o *Overlay) ScaleFactor() float64 {
	scale, _, _ := o.transformation()
	return scale
}

// Scale converts a frame distance to screen units.
func (o *Overlay) Scale(v float64) float64 {
	return v * o.ScaleFactor()
}

// TranslateX converts a frame x coordinate to a screen x coordinate.
func (o *Overlay) TranslateX(x float64) float64 {
	scale, widthOffset, _ := o.transformation()
	if o.Mirrored {
		return o.Width - (x*scale - widthOffset)
	}
	return x*scale - widthOffset
}

// TranslateY converts a frame y coordinate to a screen y coordinate.
func (o *Overlay) TranslateY(y float64) float64 {
	scale, _, heightOffset := o.transformation()
	return y*scale - heightOffset
}

// Size returns the view size in screen units.
func (o *Overlay) Size() (float64, float64) {
	return o.Width, o.Height
}

// transformation returns the scale factor and the crop offsets for the current
// dimensions. An invalid overlay maps coordinates unchanged.
func (o *Overlay) transformation() (scale, widthOffset, heightOffset float64) {
	if o.Validate() != nil {
		return 1, 0, 0
	}
	viewAspect := o.Width / o.Height
	imageAspect := o.ImageWidth / o.ImageHeight

	if viewAspect > imageAspect {
		// The frame needs to be cropped vertically.
		scale = o.Width / o.ImageWidth
		heightOffset = (o.Width/imageAspect - o.Height) / 2
	} else {
		// The frame needs to be cropped horizontally.
		scale = o.Height / o.ImageHeight
		widthOffset = (o.Height*imageAspect - o.Width) / 2
	}
	return scale, widthOffset, heightOffset
}
