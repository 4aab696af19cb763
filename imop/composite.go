package imop

import (
	"fmt"
	"image"

	"github.com/moubarak/mlkit-hat/utils"
)

const (
	Copy    = "copy"
	SrcOver = "src_over"
	DstOver = "dst_over"
	SrcIn   = "src_in"
	DstIn   = "dst_in"
	SrcOut  = "src_out"
	DstOut  = "dst_out"
	SrcAtop = "src_atop"
	DstAtop = "dst_atop"
	Xor     = "xor"
	Add     = "add"
)

var compositeOps = []string{
	Copy, SrcOver, DstOver, SrcIn, DstIn, SrcOut, DstOut, SrcAtop, DstAtop, Xor, Add,
}

// backdropPreserving lists the operations leaving the backdrop untouched under a transparent source.
var backdropPreserving = []string{SrcOver, DstOver, DstOut, SrcAtop, Xor, Add}

// Composite holds the currently active composition operation.
type Composite struct {
	current string
}

// InitOp returns a Composite using the source-over operation.
func InitOp() *Composite {
	return &Composite{current: SrcOver}
}

// Set activates one of the supported composition operations.
func (op *Composite) Set(cop string) error {
	if !utils.Contains(compositeOps, cop) {
		return fmt.Errorf("unsupported composite operation: %v", cop)
	}
	op.current = cop
	return nil
}

// Get returns the active composition operation.
func (op *Composite) Get() string {
	return op.current
}

// Draw composites src onto dst in place, restricted to rect.
// Both images share the same coordinate space. When blend is not nil, the
// source color is first mixed with the backdrop using the blend mode.
func (op *Composite) Draw(dst, src *image.NRGBA, rect image.Rectangle, blend *Blend) {
	rect = rect.Intersect(dst.Bounds()).Intersect(src.Bounds())

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			si := src.PixOffset(x, y)
			if src.Pix[si+3] == 0 && utils.Contains(backdropPreserving, op.current) {
				continue
			}
			di := dst.PixOffset(x, y)

			as := float64(src.Pix[si+3]) / 255
			ab := float64(dst.Pix[di+3]) / 255

			var cs, cb [3]float64
			for c := 0; c < 3; c++ {
				cs[c] = float64(src.Pix[si+c]) / 255
				cb[c] = float64(dst.Pix[di+c]) / 255
				if blend != nil && blend.OpType != "" {
					// Mix the source with the backdrop where both are present.
					cs[c] = (1-ab)*cs[c] + ab*blend.apply(cs[c], cb[c])
				}
			}

			var (
				fa, fb float64
				ao     float64
			)
			// Porter-Duff coefficients for the source (fa) and backdrop (fb).
			switch op.current {
			case Copy:
				fa, fb = 1, 0
			case SrcOver:
				fa, fb = 1, 1-as
			case DstOver:
				fa, fb = 1-ab, 1
			case SrcIn:
				fa, fb = ab, 0
			case DstIn:
				fa, fb = 0, as
			case SrcOut:
				fa, fb = 1-ab, 0
			case DstOut:
				fa, fb = 0, 1-as
			case SrcAtop:
				fa, fb = ab, 1-as
			case DstAtop:
				fa, fb = 1-ab, as
			case Xor:
				fa, fb = 1-ab, 1-as
			case Add:
				fa, fb = 1, 1
			}

			ao = utils.Min(as*fa+ab*fb, 1)
			for c := 0; c < 3; c++ {
				// Premultiplied result, converted back to straight alpha.
				v := as*fa*cs[c] + ab*fb*cb[c]
				if ao > 0 {
					v /= ao
				}
				dst.Pix[di+c] = uint8(utils.Clamp(v, 0, 1)*255 + 0.5)
			}
			dst.Pix[di+3] = uint8(ao*255 + 0.5)
		}
	}
}
