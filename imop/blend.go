// Package imop implements the Porter-Duff composition operations and the
// separable blend modes used for mixing an overlay layer with the camera frame.
// The image/draw core package implements only the source-over-destination and
// source operations, this package provides the missing ones, among them the
// additive mode used to paint the target ring.
package imop

import (
	"fmt"

	"github.com/moubarak/mlkit-hat/utils"
)

const (
	Darken   = "darken"
	Lighten  = "lighten"
	Multiply = "multiply"
	Screen   = "screen"
	Overlay  = "overlay"
)

var blendModes = []string{Darken, Lighten, Multiply, Screen, Overlay}

// Blend holds the currently active blend mode.
type Blend struct {
	OpType string
}

// NewBlend initializes a new Blend.
func NewBlend() *Blend {
	return &Blend{}
}

// Set activates one of the supported blend modes.
func (o *Blend) Set(opType string) error {
	if !utils.Contains(blendModes, opType) {
		return fmt.Errorf("unsupported blend mode: %v", opType)
	}
	o.OpType = opType
	return nil
}

// Get returns the currently active blend mode.
func (o *Blend) Get() string {
	return o.OpType
}

// apply mixes the normalized source and backdrop channel values.
func (o *Blend) apply(s, b float64) float64 {
	switch o.OpType {
	case Darken:
		return utils.Min(s, b)
	case Lighten:
		return utils.Max(s, b)
	case Multiply:
		return s * b
	case Screen:
		return 1 - (1-s)*(1-b)
	case Overlay:
		if b <= 0.5 {
			return 2 * s * b
		}
		return 1 - 2*(1-s)*(1-b)
	}
	return s
}
