package hat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moubarak/mlkit-hat/utils"
)

// FileSink is a Renderer writing every painted frame to a directory.
type FileSink struct {
	Dir    string
	Ext    string
	Canvas *Canvas
}

var _ Renderer = (*FileSink)(nil)

var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// NewFileSink creates the destination directory if needed.
func NewFileSink(dir, ext string, canvas *Canvas) (*FileSink, error) {
	if ext == "" {
		ext = ".png"
	}
	if !utils.Contains(validExtensions, ext) {
		return nil, fmt.Errorf("%v file type not supported", ext)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create the destination directory: %w", err)
	}
	return &FileSink{Dir: dir, Ext: ext, Canvas: canvas}, nil
}

// Path returns the destination file of the frame.
func (s *FileSink) Path(frame Frame) string {
	return filepath.Join(s.Dir, fmt.Sprintf("frame_%05d%s", frame.Index, s.Ext))
}

// Render paints the instruction over the frame and encodes it.
func (s *FileSink) Render(ctx context.Context, frame Frame, instr DrawInstruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := s.Canvas.Paint(frame, instr)
	if err != nil {
		return err
	}

	f, err := os.Create(s.Path(frame))
	if err != nil {
		return fmt.Errorf("unable to create the destination file: %w", err)
	}
	if err := encodeFrame(f, img); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("unable to encode frame %d: %w", frame.Index, err)
	}
	return f.Close()
}
