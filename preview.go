package hat

import (
	"context"
	"errors"
	"image"
	"math"

	"gioui.org/app"
	"gioui.org/io/key"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
)

const (
	maxScreenX = 1366
	maxScreenY = 768
)

// ErrPreviewClosed is returned by the preview renderer once its window is closed.
var ErrPreviewClosed = errors.New("preview window closed")

// Preview is a Renderer showing the painted frames in a Gio window.
type Preview struct {
	Title string

	canvas *Canvas
	frames chan image.Image
	done   chan struct{}
}

var _ Renderer = (*Preview)(nil)

// NewPreview creates a preview renderer painting frames with the canvas.
func NewPreview(canvas *Canvas) *Preview {
	return &Preview{
		Title:  "Align the circles",
		canvas: canvas,
		frames: make(chan image.Image),
		done:   make(chan struct{}),
	}
}

// Render paints the instruction and hands the frame over to the window.
func (p *Preview) Render(ctx context.Context, frame Frame, instr DrawInstruction) error {
	img, err := p.canvas.Paint(frame, instr)
	if err != nil {
		return err
	}
	select {
	case p.frames <- img:
		return nil
	case <-p.done:
		return ErrPreviewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run opens the window and updates it with the received frames until
// a DestroyEvent or an ESC key event is captured.
// It has to be called from a separate goroutine, while app.Main runs on the main one.
func (p *Preview) Run(width, height int) error {
	defer close(p.done)

	w, h := windowSize(width, height)
	win := app.NewWindow(
		app.Title(p.Title),
		app.Size(unit.Dp(w), unit.Dp(h)),
	)

	var (
		ops op.Ops
		img image.Image
	)
	for {
		select {
		case e := <-win.Events():
			switch e := e.(type) {
			case system.FrameEvent:
				gtx := layout.NewContext(&ops, e)
				if img != nil {
					widget.Image{
						Src:   paint.NewImageOp(img),
						Scale: 1 / gtx.Metric.PxPerDp,
						Fit:   widget.Contain,
					}.Layout(gtx)
				}
				e.Frame(gtx.Ops)
			case key.Event:
				if e.Name == key.NameEscape {
					win.Perform(system.ActionClose)
				}
			case system.DestroyEvent:
				return e.Err
			}
		case frame := <-p.frames:
			img = frame
			win.Invalidate()
		}
	}
}

// windowSize keeps the frame aspect ratio in case the frame is bigger than the predefined window.
func windowSize(width, height int) (float32, float32) {
	w, h := float64(width), float64(height)
	if w > maxScreenX || h > maxScreenY {
		ratio := math.Min(maxScreenX/w, maxScreenY/h)
		w, h = w*ratio, h*ratio
	}
	return float32(w), float32(h)
}
