package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	hat "github.com/moubarak/mlkit-hat"
	"github.com/spf13/cobra"
)

func newDetectCmd() *cobra.Command {
	var (
		source   string
		cascade  string
		minSize  int
		tracking bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the faces detected in every frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cascade == "" {
				return errors.New("please specify a face classifier with the --cascade flag or HAT_CASCADE")
			}
			det, err := newDetector(cascade, func(po *hat.PigoOptions) {
				po.MinSize = minSize
				po.Tracking = tracking
			})
			if err != nil {
				return err
			}
			defer det.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ops := &hat.Ops{Src: source, PipeName: pipeName}
			return printDetections(ctx, cmd.OutOrStdout(), det, ops)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&source, "in", "i", pipeName, "Source image, frame directory, URL or - for stdin")
	f.StringVar(&cascade, "cascade", envOr("HAT_CASCADE", ""), "Pigo face cascade classifier")
	f.IntVar(&minSize, "min-size", hat.DefaultPigoOptions().MinSize, "Minimum face size in pixels")
	f.BoolVar(&tracking, "tracking", true, "Assign tracking ids to the detected faces")

	return cmd
}

// printDetections writes one line per frame: the frame index followed by every detected face.
// The face marked with * is the one the alignment tracker considers.
func printDetections(ctx context.Context, w io.Writer, det hat.Detector, ops *hat.Ops) error {
	frames, errc := ops.Frames(ctx)
	for frame := range frames {
		faces, err := det.Process(ctx, frame)
		if err != nil {
			fmt.Fprintf(w, "%05d error: %v\n", frame.Index, err)
			continue
		}
		fmt.Fprintf(w, "%05d %d face(s)", frame.Index, len(faces))
		for i, face := range faces {
			mark := ""
			if i == 0 {
				mark = "*"
			}
			fmt.Fprintf(w, " %s%s", mark, face)
		}
		fmt.Fprintln(w)
	}
	if err := <-errc; err != nil {
		return err
	}
	return ctx.Err()
}
