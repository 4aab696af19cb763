package hat

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
)

// Renderer is the sink receiving one draw instruction per processed frame.
// Every instruction fully replaces the previous visual state.
type Renderer interface {
	Render(ctx context.Context, frame Frame, instr DrawInstruction) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, frame Frame, instr DrawInstruction) error

// Render calls f(ctx, frame, instr).
func (f RendererFunc) Render(ctx context.Context, frame Frame, instr DrawInstruction) error {
	return f(ctx, frame, instr)
}

// Stats counts the frames handled by a pipeline.
type Stats struct {
	Frames   int // frames received
	Drawn    int // frames for which an instruction was rendered
	Failed   int // frames dropped because the detection failed
	Skipped  int // frames dropped because of a degenerate geometry
	LockedOn int // drawn frames in the locked state
}

// Pipeline drives the detection adapter and the alignment tracker frame by frame.
// Frames are processed strictly one after the other.
type Pipeline struct {
	adapter  *Adapter
	tracker  *AlignmentTracker
	renderer Renderer

	view     image.Point
	mirrored bool
	log      logrus.FieldLogger
	stats    Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithView sets the screen size the frames are displayed on.
// By default frames are shown at their own size.
func WithView(view image.Point) Option {
	return func(p *Pipeline) {
		p.view = view
	}
}

// WithMirror flips the horizontal axis, as for a front facing camera.
func WithMirror(mirrored bool) Option {
	return func(p *Pipeline) {
		p.mirrored = mirrored
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// NewPipeline creates a pipeline. A nil renderer discards the instructions.
func NewPipeline(adapter *Adapter, tracker *AlignmentTracker, renderer Renderer, opts ...Option) *Pipeline {
	if renderer == nil {
		renderer = RendererFunc(func(context.Context, Frame, DrawInstruction) error { return nil })
	}
	p := &Pipeline{
		adapter:  adapter,
		tracker:  tracker,
		renderer: renderer,
		log:      discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the frame counters.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Run processes the frames in arrival order until the channel is closed or the context is done.
// Detection failures and degenerate frames are logged and skipped, renderer failures abort the run.
// The detector is closed on return.
func (p *Pipeline) Run(ctx context.Context, frames <-chan Frame) (err error) {
	defer func() {
		if cerr := p.adapter.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("could not close the detector: %w", cerr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			instr, drawn, err := p.Step(ctx, frame)
			if err != nil {
				return err
			}
			if !drawn {
				continue
			}
			if err := p.renderer.Render(ctx, frame, instr); err != nil {
				return fmt.Errorf("could not render frame %d: %w", frame.Index, err)
			}
		}
	}
}

// Step runs the detection and the state machine for a single frame.
// It reports whether an instruction was produced. Frame scoped failures are
// logged and reported as not drawn; only cancellation is returned as an error.
func (p *Pipeline) Step(ctx context.Context, frame Frame) (DrawInstruction, bool, error) {
	p.stats.Frames++
	entry := p.log.WithField("frame", frame.Index)

	res, err := p.adapter.Detect(ctx, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			entry.Debug("pipeline stopped, detection result discarded")
			return DrawInstruction{}, false, ctxErr
		}
		p.stats.Failed++
		entry.WithError(err).Error("face detection failed")
		return DrawInstruction{}, false, nil
	}

	var g Geometry
	if frame.Image != nil {
		g = NewOverlay(p.view, frame.Image.Bounds(), p.mirrored)
	}
	// Every state is painted over the frame, so a frame which cannot be
	// mapped to the view is dropped whether a face was found or not.
	instr, err := p.tracker.Update(res, g)
	if err == nil {
		err = checkGeometry(g)
	}
	if err != nil {
		if errors.Is(err, ErrDegenerateGeometry) {
			p.stats.Skipped++
			entry.WithError(err).Warn("frame skipped")
			return DrawInstruction{}, false, nil
		}
		return DrawInstruction{}, false, err
	}
	instr.Frame = frame.Index

	p.stats.Drawn++
	if instr.State == Locked {
		p.stats.LockedOn++
	}
	entry.WithField("state", instr.State).Debug("frame processed")

	return instr, true, nil
}
