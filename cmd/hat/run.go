package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gioui.org/app"
	hat "github.com/moubarak/mlkit-hat"
	"github.com/moubarak/mlkit-hat/imop"
	"github.com/moubarak/mlkit-hat/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	source   string
	dest     string
	ext      string
	cascade  string
	overlay  string
	width    int
	height   int
	fps      float64
	mirror   bool
	preview  bool
	minSize  int
	angle    float64
	tracking bool
	logLevel string
	logFile  string
	targetOp string
	faceOp   string
	blend    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay frames through the alignment pipeline",
		Long: `Replay a single image, a directory of frames (in lexical order), an image URL
or an image piped on stdin through the face alignment pipeline.
The painted frames are written to the output directory and/or shown in a preview window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.source, "in", "i", pipeName, "Source image, frame directory, URL or - for stdin")
	f.StringVarP(&opts.dest, "out", "o", "", "Destination directory of the painted frames")
	f.StringVar(&opts.ext, "ext", ".png", "Painted frames file type (.png, .jpg, .bmp)")
	f.StringVar(&opts.cascade, "cascade", envOr("HAT_CASCADE", ""), "Pigo face cascade classifier")
	f.StringVar(&opts.overlay, "overlay", envOr("HAT_OVERLAY", ""), "Bitmap drawn over the locked face (default: built-in hat)")
	f.IntVar(&opts.width, "width", envIntOr("HAT_VIEW_WIDTH", 0), "View width (default: frame width)")
	f.IntVar(&opts.height, "height", envIntOr("HAT_VIEW_HEIGHT", 0), "View height (default: frame height)")
	f.Float64Var(&opts.fps, "fps", 30, "Frame rate of the replayed sequence")
	f.BoolVar(&opts.mirror, "mirror", false, "Mirror the frames, as for a front facing camera")
	f.BoolVar(&opts.preview, "preview", false, "Show the painted frames in a window")
	f.IntVar(&opts.minSize, "min-size", hat.DefaultPigoOptions().MinSize, "Minimum face size in pixels")
	f.Float64Var(&opts.angle, "angle", 0.0, "Plane rotated faces angle")
	f.BoolVar(&opts.tracking, "tracking", true, "Assign tracking ids to the detected faces")
	f.StringVar(&opts.targetOp, "target-op", envOr("HAT_TARGET_OP", imop.Add), "Composite operation of the target circle")
	f.StringVar(&opts.faceOp, "face-op", envOr("HAT_FACE_OP", imop.SrcOver), "Composite operation of the face circle")
	f.StringVar(&opts.blend, "blend", envOr("HAT_BLEND", ""), "Blend mode of the circles (darken, lighten, multiply, screen, overlay)")
	f.StringVar(&opts.logLevel, "log-level", envOr("HAT_LOG_LEVEL", "warn"), "Log level")
	f.StringVar(&opts.logFile, "log-file", envOr("HAT_LOG_FILE", ""), "Rotated log file")

	return cmd
}

// run wires the detector, the tracker and the renderers together and replays the frames.
func run(ctx context.Context, opts *runOptions) error {
	if opts.cascade == "" {
		return errors.New("please specify a face classifier with the --cascade flag or HAT_CASCADE")
	}
	view, err := viewSize(opts.width, opts.height)
	if err != nil {
		return err
	}
	if opts.dest == "" && !opts.preview {
		log.Print(utils.DecorateText("No --out directory and no --preview: only the states will be reported.\n", utils.StatusMessage))
	}

	logger, err := utils.NewLogger(utils.LogOptions{Level: opts.logLevel, File: opts.logFile})
	if err != nil {
		return err
	}

	detector, err := newDetector(opts.cascade, func(po *hat.PigoOptions) {
		po.MinSize = opts.minSize
		po.Angle = opts.angle
		po.Tracking = opts.tracking
	})
	if err != nil {
		return err
	}

	canvas, err := newCanvas(view, opts)
	if err != nil {
		return err
	}

	var renderers multiRenderer
	if opts.dest != "" {
		sink, err := hat.NewFileSink(opts.dest, opts.ext, canvas)
		if err != nil {
			return err
		}
		renderers = append(renderers, sink)
	}

	spinner := utils.NewSpinner(spinnerText("starting..."), 80*time.Millisecond, true)
	renderers = append(renderers, progress(spinner))

	var preview *hat.Preview
	if opts.preview {
		preview = hat.NewPreview(canvas)
		renderers = append(renderers, preview)
	}

	tracker := hat.NewAlignmentTracker(
		hat.WithHatSize(canvas.Hat.Bounds().Size()),
		hat.WithTrackerLogger(logger),
	)
	pipeline := hat.NewPipeline(hat.NewAdapter(detector), tracker, renderers,
		hat.WithView(view),
		hat.WithMirror(opts.mirror),
		hat.WithLogger(logger),
	)

	// Capture CTRL-C signal, the in-flight frame is discarded.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops := &hat.Ops{Src: opts.source, PipeName: pipeName, FPS: opts.fps}

	replay := func() error {
		now := time.Now()
		frames, errc := ops.Frames(ctx)

		spinner.Start()
		err := pipeline.Run(ctx, frames)
		spinner.Stop()
		if err == nil {
			err = <-errc
		}
		printSummary(logger, pipeline.Stats(), opts.dest, time.Since(now), err)
		return err
	}

	if preview == nil {
		return replay()
	}

	// The Gio event loop has to own the main thread, the replay runs aside.
	go func() {
		w, h := opts.width, opts.height
		if w == 0 || h == 0 {
			w, h = 720, 1280
		}
		if err := preview.Run(w, h); err != nil {
			logger.WithError(err).Error("preview window")
		}
		stop()
	}()
	go func() {
		err := replay()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, hat.ErrPreviewClosed) {
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()

	return nil
}

// viewSize returns the view of the painted frames. Either both dimensions are
// given or none, in which case every frame is shown at its own size.
func viewSize(width, height int) (image.Point, error) {
	if width < 0 || height < 0 || (width == 0) != (height == 0) {
		return image.Point{}, fmt.Errorf("invalid view size %dx%d: set both --width and --height or none", width, height)
	}
	return image.Pt(width, height), nil
}

// newCanvas creates the canvas painting the frames with the configured overlay and paints.
func newCanvas(view image.Point, opts *runOptions) (*hat.Canvas, error) {
	var (
		overlay *image.NRGBA
		err     error
	)
	if opts.overlay != "" {
		if overlay, err = hat.LoadOverlay(opts.overlay); err != nil {
			return nil, err
		}
	}
	canvas, err := hat.NewCanvas(view, overlay)
	if err != nil {
		return nil, err
	}
	canvas.Mirrored = opts.mirror
	if err := canvas.SetOps(opts.targetOp, opts.faceOp, opts.blend); err != nil {
		return nil, err
	}
	return canvas, nil
}

// newDetector loads the cascade and creates the pigo detector.
func newDetector(cascade string, configure func(*hat.PigoOptions)) (*hat.PigoDetector, error) {
	data, err := hat.LoadCascade(cascade)
	if err != nil {
		return nil, err
	}
	po := hat.DefaultPigoOptions()
	if configure != nil {
		configure(&po)
	}
	return hat.NewPigoDetector(data, po)
}

// multiRenderer forwards every instruction to each of its renderers.
type multiRenderer []hat.Renderer

func (m multiRenderer) Render(ctx context.Context, frame hat.Frame, instr hat.DrawInstruction) error {
	for _, r := range m {
		if err := r.Render(ctx, frame, instr); err != nil {
			return err
		}
	}
	return nil
}

// progress reports the current frame and state next to the spinner.
func progress(s *utils.Spinner) hat.Renderer {
	return hat.RendererFunc(func(_ context.Context, frame hat.Frame, instr hat.DrawInstruction) error {
		s.SetMessage(spinnerText(fmt.Sprintf("frame %d: %s", frame.Index, instr.State)))
		return nil
	})
}

func spinnerText(msg string) string {
	return fmt.Sprintf("%s %s",
		utils.DecorateText("🎩 HAT", utils.StatusMessage),
		utils.DecorateText("⇢ "+msg, utils.DefaultMessage),
	)
}

// printSummary displays the relevant information about the replay.
func printSummary(logger logrus.FieldLogger, st hat.Stats, dest string, d time.Duration, err error) {
	logger.WithFields(logrus.Fields{
		"frames":  st.Frames,
		"drawn":   st.Drawn,
		"failed":  st.Failed,
		"skipped": st.Skipped,
		"locked":  st.LockedOn,
	}).Info("replay finished")

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "\n%s\n", utils.DecorateText("Replay failed: "+err.Error(), utils.ErrorMessage))
		return
	}
	fmt.Fprintf(os.Stderr, "\n%d frames, %d drawn, %d locked, %d failed\n", st.Frames, st.Drawn, st.LockedOn, st.Failed)
	if dest != "" {
		fmt.Fprintf(os.Stderr, "The painted frames have been saved in: %s\n",
			utils.DecorateText(filepath.Clean(dest), utils.SuccessMessage))
	}
	fmt.Fprintf(os.Stderr, "Execution time: %s (%s)\n",
		utils.DecorateText(utils.FormatTime(d), utils.SuccessMessage),
		utils.FormatRate(st.Frames, d),
	)
}
