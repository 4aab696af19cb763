/*
Package hat implements a face alignment game driven by a face detection stream.

For every camera frame the detected face (if any) is compared against a fixed
target circle drawn at the center of the screen. Once the face circle matches the
target closely enough the tracker locks on the face's tracking id and a hat is
drawn over it, for as long as the detector keeps reporting the same id.

The package provides a command line interface replaying a sequence of frames.
To check the supported commands type:

	$ hat --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		hat "github.com/moubarak/mlkit-hat"
	)

	func main() {
		cascade, _ := hat.LoadCascade("facefinder")
		det, _ := hat.NewPigoDetector(cascade, hat.DefaultPigoOptions())

		p := hat.NewPipeline(hat.NewAdapter(det), hat.NewAlignmentTracker(), renderer)
		if err := p.Run(context.Background(), frames); err != nil {
			fmt.Printf("Error processing the frames: %s", err.Error())
		}
	}
*/
package hat
