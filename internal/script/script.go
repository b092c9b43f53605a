// Package script supplements the opaque Script type spec.md §3 leaves
// duck-typed with one concrete, minimal shape: screens, each holding
// layers that carry a play function (system time -> media time) and a
// placement function (system time -> source/destination rects), built
// from piecewise-linear keyframe lists. internal/scriptrunner consumes
// scripts only through the narrow Evaluator interface, never the concrete
// Script type, exactly as spec.md §9's "duck-typed script shape" note
// asks: nothing outside this package depends on how a script is built.
//
// The declarative, YAML-decoded shape is grounded on
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/config/config.go's plain
// struct-per-section config (ROIDefinition, ModelConfig) generalized from
// static values to time-varying keyframes, since a script layer's
// position and playhead are functions of system time rather than fixed
// settings.
package script

import (
	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
)

// PlayFunc maps a system time to the media time a layer should display,
// returning ok=false when the layer has nothing to show yet (e.g. before
// its first keyframe).
type PlayFunc func(now pvtime.SystemTime) (mediaTime pvtime.Seconds, ok bool)

// PlacementFunc maps a system time to where a layer's image should be
// sampled from and drawn to, returning ok=false when the layer is hidden.
type PlacementFunc func(now pvtime.SystemTime) (src display.Rect, dst display.IntRect, ok bool)

// Layer is one media layer within a Screen: a source file plus the
// time-varying functions that decide what to show and where to place it.
type Layer struct {
	File      string
	Play      PlayFunc
	Placement PlacementFunc
}

// Screen is one display output's configuration: a connector, the mode to
// drive it at, and the layers composited onto it, ordered back to front.
type Screen struct {
	Connector string
	Mode      display.Mode
	Layers    []Layer
}

// Evaluator is the capability internal/scriptrunner consumes: a live
// script that can report its current screen/layer shape. Script
// implements it directly; any other representation (a future DSL, a
// remotely-pushed definition) only needs to implement this one method.
type Evaluator interface {
	Screens() []Screen
}

// Script is the concrete Evaluator this package supplies.
type Script struct {
	screens []Screen
}

// New wraps a fixed set of screens into a Script.
func New(screens []Screen) *Script {
	return &Script{screens: screens}
}

// Screens implements Evaluator.
func (s *Script) Screens() []Screen {
	return s.screens
}
