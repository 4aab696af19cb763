package hat

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/moubarak/mlkit-hat/imop"
	"github.com/moubarak/mlkit-hat/utils"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Paint settings, calibrated on a 1080 pixels wide screen.
const (
	referenceWidth = 1080.0
	textSize       = 80.0
	strokeWidth    = 20.0
	shadowRadius   = 60.0
)

var (
	textColor   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	shadowColor = color.NRGBA{A: 0xb4}
	// targetColor is painted additively, faceColor over the frame.
	targetColor = color.NRGBA{R: 0xff, A: 100}
	faceColor   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 100}
)

// Canvas paints draw instructions over the camera frames.
// The frame is scaled to fill the view the same way Overlay maps coordinates.
type Canvas struct {
	View     image.Point
	Mirrored bool
	Hat      *image.NRGBA

	// TargetOp and FaceOp are the imop composite operations of the two circles.
	TargetOp string
	FaceOp   string
	Blend    *imop.Blend

	mu    sync.Mutex
	font  *opentype.Font
	faces map[int]font.Face
}

// NewCanvas creates a canvas with the default paints.
// A nil hat selects the built-in overlay bitmap.
func NewCanvas(view image.Point, hat *image.NRGBA) (*Canvas, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("could not parse the font: %w", err)
	}
	if hat == nil {
		hat = DefaultOverlay()
	}
	return &Canvas{
		View:     view,
		Hat:      hat,
		TargetOp: imop.Add,
		FaceOp:   imop.SrcOver,
		font:     f,
		faces:    make(map[int]font.Face),
	}, nil
}

// SetOps selects the composite operations of the target and face circles and
// the blend mode mixing them with the frame. An empty blend disables blending.
func (c *Canvas) SetOps(target, face, blend string) error {
	for _, cop := range []string{target, face} {
		if err := imop.InitOp().Set(cop); err != nil {
			return err
		}
	}
	var b *imop.Blend
	if blend != "" {
		b = imop.NewBlend()
		if err := b.Set(blend); err != nil {
			return err
		}
	}
	c.TargetOp, c.FaceOp, c.Blend = target, face, b
	return nil
}

// Geometry returns the overlay geometry for the frame.
func (c *Canvas) Geometry(frame Frame) *Overlay {
	return NewOverlay(c.View, frame.Image.Bounds(), c.Mirrored)
}

// Paint returns the frame with the instruction drawn over it.
func (c *Canvas) Paint(frame Frame, instr DrawInstruction) (*image.NRGBA, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("frame %d has no image", frame.Index)
	}
	g := c.Geometry(frame)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	w, h := int(g.Width), int(g.Height)

	dst := imaging.Fill(frame.Image, w, h, imaging.Center, imaging.Linear)
	if c.Mirrored {
		dst = imaging.FlipH(dst)
	}

	switch instr.State {
	case Aligning:
		if instr.Target != nil {
			if err := c.drawRing(dst, *instr.Target, targetColor, c.TargetOp); err != nil {
				return nil, err
			}
		}
		if instr.FaceCircle != nil {
			if err := c.drawRing(dst, *instr.FaceCircle, faceColor, c.FaceOp); err != nil {
				return nil, err
			}
		}
	case Locked:
		if instr.Hat != nil && c.Hat != nil {
			dst = c.drawHat(dst, *instr.Hat)
		}
	}

	face, err := c.fontFace(w)
	if err != nil {
		return nil, err
	}
	for _, line := range instr.Lines {
		drawText(dst, face, line)
	}
	return dst, nil
}

// drawRing strokes the circle on a transparent layer and composites it onto dst.
func (c *Canvas) drawRing(dst *image.NRGBA, circle Circle, col color.NRGBA, cop string) error {
	op := imop.InitOp()
	if err := op.Set(cop); err != nil {
		return err
	}

	outer := circle.Radius + strokeWidth/2
	inner := math.Max(circle.Radius-strokeWidth/2, 0)
	rect := image.Rect(
		int(math.Floor(circle.X-outer)), int(math.Floor(circle.Y-outer)),
		int(math.Ceil(circle.X+outer))+1, int(math.Ceil(circle.Y+outer))+1,
	).Intersect(dst.Bounds())
	if rect.Empty() {
		return nil
	}

	layer := image.NewNRGBA(dst.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-circle.X, float64(y)+0.5-circle.Y)
			if d >= inner && d <= outer {
				layer.SetNRGBA(x, y, col)
			}
		}
	}
	op.Draw(dst, layer, rect, c.Blend)
	return nil
}

// drawHat resizes the hat bitmap by the placement scale and draws it at the placement offset.
func (c *Canvas) drawHat(dst *image.NRGBA, p HatPlacement) *image.NRGBA {
	sx, _, ox, _, sy, oy := p.Transform.Elems()
	b := c.Hat.Bounds()
	w := int(math.Round(float64(b.Dx()) * float64(sx)))
	h := int(math.Round(float64(b.Dy()) * float64(sy)))
	if w < 1 || h < 1 {
		return dst
	}
	hat := imaging.Resize(c.Hat, w, h, imaging.Lanczos)
	return imaging.Overlay(dst, hat, image.Pt(int(math.Round(float64(ox))), int(math.Round(float64(oy)))), 1.0)
}

// fontFace returns the text face scaled for a view of the given width.
func (c *Canvas) fontFace(width int) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if face, ok := c.faces[width]; ok {
		return face, nil
	}
	size := utils.Max(textSize*float64(width)/referenceWidth, 8)
	face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create the font face: %w", err)
	}
	c.faces[width] = face
	return face, nil
}

// drawText draws the line horizontally centered over a blurred shadow.
func drawText(dst *image.NRGBA, face font.Face, line TextLine) {
	var (
		width    = dst.Bounds().Dx()
		scale    = float64(width) / referenceWidth
		advance  = font.MeasureString(face, line.Text).Ceil()
		x        = utils.Abs(width-advance) / 2
		baseline = int(math.Round(line.Baseline * scale))
	)
	if shadow, rect := textShadow(face, line.Text, image.Pt(x, baseline), shadowRadius*scale); shadow != nil {
		imop.InitOp().Draw(dst, shadow, rect, nil)
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(line.Text)
}

// textShadow renders the text in the shadow color on a transparent layer and blurs it.
// The returned layer and rectangle are in the coordinates of the destination image.
func textShadow(face font.Face, text string, dot image.Point, radius float64) (*image.NRGBA, image.Rectangle) {
	bounds, _ := font.BoundString(face, text)
	sigma := blurSigma(radius)
	pad := int(math.Ceil(3 * sigma))

	rect := image.Rect(
		dot.X+bounds.Min.X.Floor(), dot.Y+bounds.Min.Y.Floor(),
		dot.X+bounds.Max.X.Ceil(), dot.Y+bounds.Max.Y.Ceil(),
	).Inset(-pad)
	if rect.Empty() {
		return nil, rect
	}

	layer := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	d := &font.Drawer{
		Dst:  layer,
		Src:  image.NewUniform(shadowColor),
		Face: face,
		Dot:  fixed.P(dot.X-rect.Min.X, dot.Y-rect.Min.Y),
	}
	d.DrawString(text)

	shadow := imaging.Blur(layer, sigma)
	shadow.Rect = shadow.Rect.Add(rect.Min)
	return shadow, rect
}

// blurSigma converts a shadow radius into the standard deviation of the gaussian blur.
func blurSigma(radius float64) float64 {
	if radius <= 0 {
		return 0
	}
	return 0.57735*radius + 0.5
}
