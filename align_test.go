package hat

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGeometry places every face center at (x, y) and keeps distances unscaled.
type stubGeometry struct {
	w, h float64
	x, y float64
}

func (g stubGeometry) TranslateX(float64) float64 { return g.x }
func (g stubGeometry) TranslateY(float64) float64 { return g.y }
func (g stubGeometry) Scale(v float64) float64    { return v }
func (g stubGeometry) Size() (float64, float64)   { return g.w, g.h }

// screen is a 1000x1000 view showing 1000x1000 frames.
var screen = NewOverlay(image.Point{}, image.Rect(0, 0, 1000, 1000), false)

// Faces of 217 pixels have a radius of 434, close to the 434.78 target radius.
var (
	centered  = image.Rect(392, 392, 609, 609)
	offCenter = image.Rect(0, 0, 217, 217)
)

func tracked(id int, box image.Rectangle) FrameResult {
	return FaceDetected{Face: Face{BoundingBox: box, TrackingID: TrackingID(id)}}
}

func untracked(box image.Rectangle) FrameResult {
	return FaceDetected{Face: Face{BoundingBox: box}}
}

func assertLockedID(t *testing.T, tr *AlignmentTracker, want int) {
	t.Helper()
	id, ok := tr.LockedID()
	require.True(t, ok, "expected a locked id")
	assert.Equal(t, want, id)
}

func TestTracker_NoFaceResetsLock(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	instr, err := tr.Update(tracked(3, centered), screen)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
	assertLockedID(t, tr, 3)

	instr, err = tr.Update(NoFace{}, screen)
	require.NoError(t, err)
	assert.Equal(Searching, instr.State)
	assert.Nil(instr.Target)
	assert.Nil(instr.FaceCircle)
	assert.Nil(instr.Hat)
	assert.Equal([]TextLine{
		{Text: "Point the camera", Baseline: 100},
		{Text: "at a friend", Baseline: 180},
	}, instr.Lines)

	_, ok := tr.LockedID()
	assert.False(ok)

	// The geometry is not needed when there is no face.
	instr, err = tr.Update(NoFace{}, nil)
	require.NoError(t, err)
	assert.Equal(Searching, instr.State)
}

func TestTracker_LockStability(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	_, err := tr.Update(tracked(7, centered), screen)
	require.NoError(t, err)

	boxes := []image.Rectangle{offCenter, image.Rect(700, 10, 720, 30), centered, image.Rect(0, 500, 900, 990)}
	for _, box := range boxes {
		instr, err := tr.Update(tracked(7, box), screen)
		require.NoError(t, err)
		assert.Equal(Locked, instr.State, "box %v", box)
		assert.NotNil(instr.Hat)
		assertLockedID(t, tr, 7)
	}
}

func TestTracker_AcquisitionThreshold(t *testing.T) {
	assert := assert.New(t)

	assert.True(aligned(14.9, 0, 0))
	assert.False(aligned(15.0, 0, 0))
	assert.False(aligned(15.1, 0, 0))
	assert.True(aligned(0, 214.9, 200))
	assert.False(aligned(0, 215, 200))
	assert.False(aligned(0, 185, 200))
	assert.True(aligned(14.9, 185.1, 200))
	assert.False(aligned(-15, 200, 200))

	tr := NewAlignmentTracker()
	instr, err := tr.Update(tracked(1, offCenter), stubGeometry{w: 1000, h: 1000, x: 514.9, y: 500})
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
	assertLockedID(t, tr, 1)

	tr.Reset()
	instr, err = tr.Update(tracked(1, offCenter), stubGeometry{w: 1000, h: 1000, x: 515, y: 500})
	require.NoError(t, err)
	assert.Equal(Aligning, instr.State)
	_, ok := tr.LockedID()
	assert.False(ok)
}

func TestTracker_IdentityDropKeepsLock(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	_, err := tr.Update(tracked(4, centered), screen)
	require.NoError(t, err)

	instr, err := tr.Update(tracked(5, offCenter), screen)
	require.NoError(t, err)
	assert.Equal(Aligning, instr.State)
	assertLockedID(t, tr, 4)

	// The previous identity is still recognized when it comes back.
	instr, err = tr.Update(tracked(4, offCenter), screen)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
}

func TestTracker_Scenarios(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	// No face.
	instr, err := tr.Update(FirstFace(nil), screen)
	require.NoError(t, err)
	assert.Equal(Searching, instr.State)
	_, ok := tr.LockedID()
	assert.False(ok)

	// Center distance of 5, radius difference of about 3.
	g := stubGeometry{w: 1000, h: 1000, x: 505, y: 500}
	instr, err = tr.Update(tracked(7, image.Rect(0, 0, 219, 219)), g)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
	assert.Equal("Perfect! Rotate your", instr.Lines[0].Text)
	assert.Equal("phone for some fun", instr.Lines[1].Text)
	assertLockedID(t, tr, 7)

	// Same face, far from the center.
	instr, err = tr.Update(tracked(7, offCenter), screen)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
	assertLockedID(t, tr, 7)

	// Untracked face, far from the target.
	instr, err = tr.Update(untracked(offCenter), screen)
	require.NoError(t, err)
	assert.Equal(Aligning, instr.State)
	assert.Equal("How perfectly can you", instr.Lines[0].Text)
	assert.Equal("align the circles", instr.Lines[1].Text)
	assertLockedID(t, tr, 7)
}

func TestTracker_AligningCircles(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	instr, err := tr.Update(tracked(2, image.Rect(100, 200, 200, 300)), screen)
	require.NoError(t, err)
	assert.Equal(Aligning, instr.State)
	assert.Nil(instr.Hat)

	require.NotNil(t, instr.Target)
	assert.InDelta(500, instr.Target.X, 1e-9)
	assert.InDelta(500, instr.Target.Y, 1e-9)
	assert.InDelta(1000/2.3, instr.Target.Radius, 1e-9)

	require.NotNil(t, instr.FaceCircle)
	assert.InDelta(150, instr.FaceCircle.X, 1e-9)
	assert.InDelta(250, instr.FaceCircle.Y, 1e-9)
	assert.InDelta(200, instr.FaceCircle.Radius, 1e-9)
}

func TestTracker_MirroredAligningCircle(t *testing.T) {
	tr := NewAlignmentTracker()
	g := NewOverlay(image.Point{}, image.Rect(0, 0, 1000, 1000), true)

	instr, err := tr.Update(tracked(2, image.Rect(100, 200, 200, 300)), g)
	require.NoError(t, err)
	require.NotNil(t, instr.FaceCircle)
	assert.InDelta(t, 850, instr.FaceCircle.X, 1e-9)
}

func TestTracker_HatPlacement(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker(WithHatSize(image.Pt(240, 200)))

	instr, err := tr.Update(tracked(9, centered), screen)
	require.NoError(t, err)
	require.Equal(t, Locked, instr.State)
	require.NotNil(t, instr.Hat)

	// scale = 217 / 1000, the bitmap is drawn at twice that scale,
	// its top left corner at the face's left edge and half the scaled hat height above the face.
	sx, hx, ox, hy, sy, oy := instr.Hat.Transform.Elems()
	assert.InDelta(0.434, sx, 1e-5)
	assert.InDelta(0.434, sy, 1e-5)
	assert.InDelta(0, hx, 1e-6)
	assert.InDelta(0, hy, 1e-6)
	assert.InDelta(392, ox, 1e-3)
	assert.InDelta(392-200*0.217/2, oy, 1e-3)
}

func TestTracker_UntrackedLock(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	_, err := tr.Update(tracked(1, centered), screen)
	require.NoError(t, err)

	// Locking onto an untracked face clears the locked identity.
	instr, err := tr.Update(untracked(centered), screen)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)
	_, ok := tr.LockedID()
	assert.False(ok)

	// Alignment is evaluated again on the next frames.
	instr, err = tr.Update(untracked(centered), screen)
	require.NoError(t, err)
	assert.Equal(Locked, instr.State)

	instr, err = tr.Update(untracked(offCenter), screen)
	require.NoError(t, err)
	assert.Equal(Aligning, instr.State)
}

func TestTracker_LockedIDIsCopied(t *testing.T) {
	tr := NewAlignmentTracker()
	id := 11
	face := Face{BoundingBox: centered, TrackingID: &id}

	_, err := tr.Update(FaceDetected{Face: face}, screen)
	require.NoError(t, err)

	id = 12
	assertLockedID(t, tr, 11)
}

func TestTracker_DegenerateGeometry(t *testing.T) {
	assert := assert.New(t)
	tr := NewAlignmentTracker()

	_, err := tr.Update(tracked(5, centered), screen)
	require.NoError(t, err)

	geometries := []Geometry{
		nil,
		NewOverlay(image.Pt(0, 800), image.Rect(0, 0, 100, 100), false),
		NewOverlay(image.Pt(600, 800), image.Rect(0, 0, 0, 100), false),
		stubGeometry{w: 0, h: 1000},
		stubGeometry{w: 1000, h: -1},
	}
	for _, g := range geometries {
		_, err := tr.Update(untracked(offCenter), g)
		assert.ErrorIs(err, ErrDegenerateGeometry)
		assertLockedID(t, tr, 5)
	}
}

func TestTracker_UnknownResult(t *testing.T) {
	tr := NewAlignmentTracker()

	_, err := tr.Update(nil, screen)
	assert.ErrorIs(t, err, ErrUnknownResult)
}

func TestState_String(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("searching", Searching.String())
	assert.Equal("aligning", Aligning.String())
	assert.Equal("locked", Locked.String())
	assert.Equal("State(9)", State(9).String())
}
