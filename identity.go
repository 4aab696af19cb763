package hat

import (
	"image"
	"sync"

	"github.com/google/uuid"
)

// IdentityTracker assigns tracking ids to bounding boxes across consecutive frames.
// A box keeps the id of the track it overlaps the most, provided the overlap
// (intersection over union) reaches MinIoU. Tracks left unmatched for more than
// MaxNoMatch consecutive frames are forgotten.
//
// Tracks are keyed by a random UUID; the tracking id reported with a face is a
// sequence number handed out in creation order and never reused.
type IdentityTracker struct {
	MinIoU     float64
	MaxNoMatch int

	mu     sync.Mutex
	nextID int
	tracks map[uuid.UUID]*track
}

type track struct {
	uid     uuid.UUID
	id      int
	box     image.Rectangle
	noMatch int
}

func (t *track) incNoMatch() { t.noMatch++ }
func (t *track) resetNoMatch() { t.noMatch = 0 }

// NewIdentityTracker creates an identity tracker.
func NewIdentityTracker(minIoU float64, maxNoMatch int) *IdentityTracker {
	return &IdentityTracker{
		MinIoU:     minIoU,
		MaxNoMatch: maxNoMatch,
		tracks:     make(map[uuid.UUID]*track),
	}
}

// Assign returns the boxes as faces carrying a tracking id, preserving their order.
func (it *IdentityTracker) Assign(boxes []image.Rectangle) []Face {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.tracks == nil {
		it.tracks = make(map[uuid.UUID]*track)
	}
	faces := make([]Face, len(boxes))
	matched := make(map[uuid.UUID]bool, len(boxes))

	for i, box := range boxes {
		var best *track
		bestIoU := it.MinIoU
		for uid, t := range it.tracks {
			if matched[uid] {
				continue
			}
			v := iou(box, t.box)
			if v <= 0 || v < bestIoU {
				continue
			}
			// Ties go to the oldest track, whatever the map order.
			if best == nil || v > bestIoU || t.id < best.id {
				best, bestIoU = t, v
			}
		}

		if best == nil {
			best = &track{uid: uuid.New(), id: it.nextID}
			it.nextID++
			it.tracks[best.uid] = best
		}
		best.box = box
		best.resetNoMatch()
		matched[best.uid] = true
		faces[i] = Face{BoundingBox: box, TrackingID: TrackingID(best.id)}
	}

	for uid, t := range it.tracks {
		if matched[uid] {
			continue
		}
		t.incNoMatch()
		if t.noMatch > it.MaxNoMatch {
			delete(it.tracks, uid)
		}
	}
	return faces
}

// Len returns the number of live tracks.
func (it *IdentityTracker) Len() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.tracks)
}

// Reset forgets every track. Ids are not reused.
func (it *IdentityTracker) Reset() {
	it.mu.Lock()
	it.tracks = make(map[uuid.UUID]*track)
	it.mu.Unlock()
}

// iou returns the intersection over union of two rectangles.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
