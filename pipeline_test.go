package hat

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Renderer keeping every instruction it receives.
type recorder struct {
	mu     sync.Mutex
	instrs []DrawInstruction
	err    error
}

func (r *recorder) Render(_ context.Context, _ Frame, instr DrawInstruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instrs = append(r.instrs, instr)
	return r.err
}

func (r *recorder) rendered() []DrawInstruction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DrawInstruction(nil), r.instrs...)
}

func feed(frames ...Frame) <-chan Frame {
	ch := make(chan Frame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}

func TestPipeline_Run(t *testing.T) {
	assert := assert.New(t)

	det := newFakeDetector()
	det.faces[1] = []Face{{BoundingBox: centered, TrackingID: TrackingID(7)}}
	det.errs[2] = errors.New("detector unavailable")
	det.faces[3] = []Face{{BoundingBox: offCenter, TrackingID: TrackingID(7)}}
	det.faces[4] = []Face{{BoundingBox: offCenter, TrackingID: TrackingID(8)}}

	tracker := NewAlignmentTracker()
	rec := &recorder{}
	p := NewPipeline(NewAdapter(det), tracker, rec)

	err := p.Run(context.Background(), feed(testFrame(0), testFrame(1), testFrame(2), testFrame(3), testFrame(4)))
	require.NoError(t, err)

	instrs := rec.rendered()
	require.Len(t, instrs, 4)

	var (
		frames []int
		states []State
	)
	for _, instr := range instrs {
		frames = append(frames, instr.Frame)
		states = append(states, instr.State)
	}
	assert.Equal([]int{0, 1, 3, 4}, frames)
	assert.Equal([]State{Searching, Locked, Locked, Aligning}, states)

	// The failed frame did not alter the lock.
	id, ok := tracker.LockedID()
	assert.True(ok)
	assert.Equal(7, id)

	assert.Equal(Stats{Frames: 5, Drawn: 4, Failed: 1, LockedOn: 2}, p.Stats())
	assert.Equal([]int{0, 1, 2, 3, 4}, det.called())
	assert.True(det.isClosed())
}

func TestPipeline_DegenerateFrameSkipped(t *testing.T) {
	assert := assert.New(t)

	det := newFakeDetector()
	det.faces[0] = []Face{{BoundingBox: centered, TrackingID: TrackingID(1)}}
	det.faces[1] = []Face{{BoundingBox: offCenter, TrackingID: TrackingID(2)}}
	det.faces[2] = []Face{{BoundingBox: offCenter, TrackingID: TrackingID(2)}}

	tracker := NewAlignmentTracker()
	rec := &recorder{}
	p := NewPipeline(NewAdapter(det), tracker, rec)

	empty := Frame{Index: 1, Image: image.NewNRGBA(image.Rect(0, 0, 0, 0))}
	noImage := Frame{Index: 2}
	require.NoError(t, p.Run(context.Background(), feed(testFrame(0), empty, noImage)))

	instrs := rec.rendered()
	require.Len(t, instrs, 1)
	assert.Equal(Locked, instrs[0].State)
	assert.Equal(Stats{Frames: 3, Drawn: 1, Skipped: 2, LockedOn: 1}, p.Stats())

	id, ok := tracker.LockedID()
	assert.True(ok)
	assert.Equal(1, id)
}

func TestPipeline_PartialViewSkipped(t *testing.T) {
	assert := assert.New(t)

	det := newFakeDetector()
	det.faces[1] = []Face{{BoundingBox: centered, TrackingID: TrackingID(1)}}

	canvas, err := NewCanvas(image.Pt(720, 0), nil)
	require.NoError(t, err)
	sink, err := NewFileSink(t.TempDir(), ".png", canvas)
	require.NoError(t, err)

	// Only the width of the view is known: no frame can be painted, with or without a face.
	p := NewPipeline(NewAdapter(det), NewAlignmentTracker(), sink, WithView(image.Pt(720, 0)))
	require.NoError(t, p.Run(context.Background(), feed(testFrame(0), testFrame(1), testFrame(2))))

	assert.Equal(Stats{Frames: 3, Skipped: 3}, p.Stats())
	assert.Equal([]int{0, 1, 2}, det.called())
}

func TestPipeline_RendererError(t *testing.T) {
	errPaint := errors.New("paint failed")
	det := newFakeDetector()
	rec := &recorder{err: errPaint}
	p := NewPipeline(NewAdapter(det), NewAlignmentTracker(), rec)

	err := p.Run(context.Background(), feed(testFrame(0), testFrame(1)))
	assert.ErrorIs(t, err, errPaint)
	assert.Len(t, rec.rendered(), 1)
	assert.True(t, det.isClosed())
}

func TestPipeline_CancelDiscardsInFlightFrame(t *testing.T) {
	assert := assert.New(t)

	det := newFakeDetector()
	det.faces[0] = []Face{{BoundingBox: centered, TrackingID: TrackingID(2)}}
	// Frame 1 has no face and would clear the lock if it were acted upon.
	det.blocks[1] = make(chan struct{})
	defer close(det.blocks[1])

	tracker := NewAlignmentTracker()
	rec := &recorder{}
	p := NewPipeline(NewAdapter(det), tracker, rec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(det.called()) < 2 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := p.Run(ctx, feed(testFrame(0), testFrame(1), testFrame(2)))
	assert.ErrorIs(err, context.Canceled)

	instrs := rec.rendered()
	require.Len(t, instrs, 1)
	assert.Equal(0, instrs[0].Frame)

	id, ok := tracker.LockedID()
	assert.True(ok)
	assert.Equal(2, id)
	assert.Equal([]int{0, 1}, det.called())
}

func TestPipeline_Step(t *testing.T) {
	assert := assert.New(t)

	det := newFakeDetector()
	det.faces[0] = []Face{{BoundingBox: image.Rect(100, 200, 200, 300), TrackingID: TrackingID(1)}}
	p := NewPipeline(NewAdapter(det), NewAlignmentTracker(), nil,
		WithView(image.Pt(500, 500)),
		WithMirror(true),
	)

	instr, drawn, err := p.Step(context.Background(), testFrame(0))
	require.NoError(t, err)
	assert.True(drawn)
	assert.Equal(Aligning, instr.State)

	// 1000x1000 frames shown on a 500x500 mirrored view.
	require.NotNil(t, instr.FaceCircle)
	assert.InDelta(425, instr.FaceCircle.X, 1e-9)
	assert.InDelta(125, instr.FaceCircle.Y, 1e-9)
	assert.InDelta(500/2.3, instr.Target.Radius, 1e-9)
}
