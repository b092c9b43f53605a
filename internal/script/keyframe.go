package script

import (
	"math"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
)

// Keyframe is one point in a piecewise-linear media-time track: at system
// time At (measured relative to the layer's activation), the media time is
// Value.
type Keyframe struct {
	At    pvtime.Seconds
	Value pvtime.Seconds
}

// PlayTrack is a sorted-by-At list of Keyframes describing how a layer's
// playhead advances relative to its activation time.
type PlayTrack []Keyframe

// Sample evaluates the track at elapsed system time, piecewise-linearly
// interpolating between bracketing keyframes. Before the first keyframe it
// reports ok=false. After the last keyframe, it either holds the final
// value or, if loop is true and the track spans a nonzero range, wraps
// elapsed time back into the track's span.
func (trk PlayTrack) Sample(elapsed pvtime.Seconds, loop bool) (pvtime.Seconds, bool) {
	if len(trk) == 0 {
		return 0, false
	}
	if elapsed < trk[0].At {
		return 0, false
	}

	e := elapsed
	last := trk[len(trk)-1]
	if e > last.At {
		span := last.At - trk[0].At
		if loop && span > 0 {
			offset := e - trk[0].At
			e = trk[0].At + pvtime.Seconds(math.Mod(float64(offset), float64(span)))
		} else {
			return last.Value, true
		}
	}

	for i := 0; i < len(trk)-1; i++ {
		a, b := trk[i], trk[i+1]
		if e >= a.At && e <= b.At {
			if b.At == a.At {
				return b.Value, true
			}
			frac := float64(e-a.At) / float64(b.At-a.At)
			return a.Value + pvtime.Seconds(frac)*(b.Value-a.Value), true
		}
	}
	return trk[0].Value, true
}

// PlacementKeyframe is one point in a placement track: at system time At
// (relative to activation), the layer samples from Src and draws to Dst.
type PlacementKeyframe struct {
	At  pvtime.Seconds
	Src display.Rect
	Dst display.IntRect
}

// PlacementTrack is a sorted-by-At list of PlacementKeyframes.
type PlacementTrack []PlacementKeyframe

// Sample evaluates the track at elapsed system time, linearly interpolating
// rect fields between bracketing keyframes and holding the last keyframe's
// placement once elapsed passes it. Before the first keyframe it reports
// ok=false.
func (trk PlacementTrack) Sample(elapsed pvtime.Seconds) (display.Rect, display.IntRect, bool) {
	if len(trk) == 0 {
		return display.Rect{}, display.IntRect{}, false
	}
	if elapsed < trk[0].At {
		return display.Rect{}, display.IntRect{}, false
	}

	last := trk[len(trk)-1]
	if elapsed >= last.At {
		return last.Src, last.Dst, true
	}

	for i := 0; i < len(trk)-1; i++ {
		a, b := trk[i], trk[i+1]
		if elapsed >= a.At && elapsed < b.At {
			if b.At == a.At {
				return b.Src, b.Dst, true
			}
			frac := float64(elapsed-a.At) / float64(b.At-a.At)
			return lerpRect(a.Src, b.Src, frac), lerpIntRect(a.Dst, b.Dst, frac), true
		}
	}
	return trk[0].Src, trk[0].Dst, true
}

func lerp(a, b, frac float64) float64 { return a + frac*(b-a) }

func lerpRect(a, b display.Rect, frac float64) display.Rect {
	return display.Rect{
		X: lerp(a.X, b.X, frac),
		Y: lerp(a.Y, b.Y, frac),
		W: lerp(a.W, b.W, frac),
		H: lerp(a.H, b.H, frac),
	}
}

func lerpIntRect(a, b display.IntRect, frac float64) display.IntRect {
	return display.IntRect{
		X: int(math.Round(lerp(float64(a.X), float64(b.X), frac))),
		Y: int(math.Round(lerp(float64(a.Y), float64(b.Y), frac))),
		W: int(math.Round(lerp(float64(a.W), float64(b.W), frac))),
		H: int(math.Round(lerp(float64(a.H), float64(b.H), frac))),
	}
}
