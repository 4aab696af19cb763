package hat

import (
	"fmt"

	"gioui.org/f32"
)

// State is the visual state of the overlay.
type State int

const (
	// Searching is shown when no face is detected.
	Searching State = iota
	// Aligning is shown while the detected face is not locked and not aligned with the target.
	Aligning
	// Locked is shown once the face is aligned, for as long as its tracking id persists.
	Locked
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Aligning:
		return "aligning"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Instructional text shown in each state.
var (
	searchingText = [2]string{"Point the camera", "at a friend"}
	aligningText  = [2]string{"How perfectly can you", "align the circles"}
	lockedText    = [2]string{"Perfect! Rotate your", "phone for some fun"}
)

// Baselines of the two instructional text lines, in screen units.
const (
	firstLineBaseline  = 100.0
	secondLineBaseline = 180.0
)

// TextLine is a line of text horizontally centered on the screen.
type TextLine struct {
	Text     string
	Baseline float64
}

// Circle is a circle in screen coordinates.
type Circle struct {
	X, Y   float64
	Radius float64
}

// HatPlacement positions the overlay bitmap over the face.
// Transform maps bitmap coordinates to screen coordinates.
type HatPlacement struct {
	Transform f32.Affine2D
}

// DrawInstruction is everything a renderer needs to paint a frame.
// Target and FaceCircle are set in the Aligning state, Hat in the Locked state.
type DrawInstruction struct {
	Frame      int
	State      State
	Lines      []TextLine
	Target     *Circle
	FaceCircle *Circle
	Hat        *HatPlacement
}

func textLines(text [2]string) []TextLine {
	return []TextLine{
		{Text: text[0], Baseline: firstLineBaseline},
		{Text: text[1], Baseline: secondLineBaseline},
	}
}
