package hat

import (
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))))
}

func collect(t *testing.T, op *Ops) ([]Frame, error) {
	t.Helper()
	frames, errc := op.Frames(context.Background())
	var out []Frame
	for f := range frames {
		out = append(out, f)
	}
	return out, <-errc
}

func TestOps_FramesFromDirectory(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	writePNG(t, filepath.Join(dir, "b.png"), 20, 10)
	writePNG(t, filepath.Join(dir, "a.png"), 10, 10)
	writePNG(t, filepath.Join(dir, "sub", "c.PNG"), 30, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	frames, err := collect(t, &Ops{Src: dir, PipeName: "-", FPS: 10})
	require.NoError(t, err)
	require.Len(t, frames, 3)

	for i, f := range frames {
		assert.Equal(i, f.Index)
		assert.Equal(time.Duration(i)*100*time.Millisecond, f.Timestamp)
	}
	assert.Equal(10, frames[0].Image.Bounds().Dx())
	assert.Equal(20, frames[1].Image.Bounds().Dx())
	assert.Equal(30, frames[2].Image.Bounds().Dx())
}

func TestOps_FramesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.png")
	writePNG(t, path, 16, 9)

	frames, err := collect(t, &Ops{Src: path, PipeName: "-"})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, image.Rect(0, 0, 16, 9), frames[0].Image.Bounds())
	assert.Equal(t, time.Duration(0), frames[0].Timestamp)
}

func TestOps_FramesFromURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.png")
	writePNG(t, path, 12, 12)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}))
	defer ts.Close()

	frames, err := collect(t, &Ops{Src: ts.URL + "/remote.png", PipeName: "-"})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 12, frames[0].Image.Bounds().Dx())
}

func TestOps_FramesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := collect(t, &Ops{Src: filepath.Join(dir, "missing"), PipeName: "-"})
	assert.Error(t, err)

	_, err = collect(t, &Ops{Src: dir, PipeName: "-"})
	assert.ErrorContains(t, err, "no frames found")

	broken := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not a png"), 0644))
	frames, err := collect(t, &Ops{Src: dir, PipeName: "-"})
	assert.Empty(t, frames)
	assert.ErrorContains(t, err, "frame 0")
}

func TestOps_FramesCancelled(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0.png", "1.png", "2.png"} {
		writePNG(t, filepath.Join(dir, name), 4, 4)
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, errc := (&Ops{Src: dir, PipeName: "-"}).Frames(ctx)

	first, ok := <-frames
	require.True(t, ok)
	assert.Equal(t, 0, first.Index)
	cancel()

	// The producer stops, at most one more frame may already be in flight.
	var rest int
	for range frames {
		rest++
	}
	assert.LessOrEqual(t, rest, 1)
	assert.NoError(t, <-errc)
}
