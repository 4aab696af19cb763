package hat

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moubarak/mlkit-hat/utils"
	"golang.org/x/term"
)

// Ops describes where the frames are read from.
// Src is a single image, a directory of frames replayed in lexical order,
// an image URL, or PipeName to read a single image from stdin.
type Ops struct {
	Src, PipeName string
	// FPS is used to derive the frame timestamps.
	FPS float64
}

var frameExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// Frames decodes the source frames and sends them in order on the returned channel.
// The channel is closed once all the frames are sent or the context is done.
// The error channel receives at most one error.
func (op *Ops) Frames(ctx context.Context) (<-chan Frame, <-chan error) {
	frames := make(chan Frame)
	errc := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errc)

		paths, err := op.paths(ctx)
		if err != nil {
			errc <- err
			return
		}
		for i, path := range paths {
			if ctx.Err() != nil {
				return
			}
			img, err := op.decode(path)
			if err != nil {
				errc <- fmt.Errorf("frame %d (%s): %w", i, path, err)
				return
			}
			frame := Frame{Index: i, Image: img, Timestamp: op.timestamp(i)}

			select {
			case <-ctx.Done():
				return
			case frames <- frame:
			}
		}
	}()
	return frames, errc
}

// paths resolves the source into an ordered list of frame paths.
func (op *Ops) paths(ctx context.Context) ([]string, error) {
	if op.Src == op.PipeName || utils.IsValidUrl(op.Src) {
		return []string{op.Src}, nil
	}

	fi, err := os.Stat(op.Src)
	if err != nil {
		return nil, fmt.Errorf("failed to load the source: %w", err)
	}
	if !fi.IsDir() {
		return []string{op.Src}, nil
	}
	paths, err := walkDir(ctx, op.Src, frameExtensions)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", op.Src)
	}
	return paths, nil
}

// decode opens and decodes a single frame.
func (op *Ops) decode(path string) (image.Image, error) {
	var r io.Reader

	switch {
	case path == op.PipeName:
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdin")
		}
		r = os.Stdin
	case utils.IsValidUrl(path):
		f, err := utils.DownloadImage(path)
		if f != nil {
			defer os.Remove(f.Name())
			defer f.Close()
		}
		if err != nil {
			return nil, err
		}
		r = f
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("unable to open the source file: %w", err)
		}
		defer f.Close()
		r = f
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("could not decode the frame: %w", err)
	}
	return img, nil
}

func (op *Ops) timestamp(i int) time.Duration {
	if op.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(i) / op.FPS * float64(time.Second))
}

// walkDir walks the directory tree in lexical order and returns the path of
// each regular file having one of the supported extensions.
func walkDir(ctx context.Context, src string, srcExts []string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("directory walk cancelled: %w", err)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if utils.Contains(srcExts, strings.ToLower(filepath.Ext(d.Name()))) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
