package hat

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_Render(t *testing.T) {
	assert := assert.New(t)

	c, err := NewCanvas(image.Point{}, nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir, "", c)
	require.NoError(t, err)
	assert.Equal(".png", sink.Ext)

	frame := uniformFrame(64, 48, black)
	frame.Index = 12
	require.NoError(t, sink.Render(context.Background(), frame, DrawInstruction{State: Searching}))

	path := sink.Path(frame)
	assert.Equal(filepath.Join(dir, "frame_00012.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestFileSink_Errors(t *testing.T) {
	c, err := NewCanvas(image.Point{}, nil)
	require.NoError(t, err)

	_, err = NewFileSink(t.TempDir(), ".tiff", c)
	assert.Error(t, err)

	sink, err := NewFileSink(t.TempDir(), ".jpg", c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frame := uniformFrame(8, 8, black)
	assert.ErrorIs(t, sink.Render(ctx, frame, DrawInstruction{}), context.Canceled)
	assert.NoFileExists(t, sink.Path(frame))

	// Nothing is written for a frame without image.
	assert.Error(t, sink.Render(context.Background(), Frame{Index: 1}, DrawInstruction{}))
	assert.NoFileExists(t, sink.Path(Frame{Index: 1}))
}
