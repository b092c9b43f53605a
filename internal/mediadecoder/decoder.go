// Package mediadecoder defines the MediaDecoder capability this repository
// consumes from a pull-only demuxer/decoder (spec.md §6), plus the frame
// and info types it produces. The core never implements a codec; this
// package supplies the interface, a deterministic Mock used throughout the
// frameloader's tests, and an optional GStreamer-backed reference decoder
// (gstdecoder.go) for the example daemon.
package mediadecoder

import "github.com/e7canasta/pivid/internal/display"

// Info describes a media file's container/codec metadata, mirroring
// spec.md §6's MediaDecoder.info() contract and original_source's
// MediaInfo struct.
type Info struct {
	Container  string
	Codec      string
	PixelFormat string
	Width      *int
	Height     *int
	Duration   *float64 // seconds; nil if unknown (e.g. live source)
	FrameRate  *float64
	BitRate    *int64
}

// FrameType loosely classifies a decoded frame (I/P/B or similar); the core
// treats it as opaque beyond IsKeyFrame.
type FrameType string

// Frame is one decoded frame: a media time, one or more image layers
// (multi-plane formats may surface as several ImageBuffers), and flags.
type Frame struct {
	MediaTime  float64
	Layers     []display.ImageBuffer
	FrameType  FrameType
	IsKeyFrame bool
	IsCorrupt  bool
}

// Decoder is the capability consumed by internal/frameloader: open a file,
// expose info(), pull-only get_frame_if_ready(), reached_eof(), and a seek
// primitive. Implementations are not required to be safe for concurrent
// use by more than one goroutine; spec.md §4.2.3 mandates that only the
// loader's single worker goroutine ever touches a given Decoder.
type Decoder interface {
	// Info returns the decoder's static metadata for this file.
	Info() Info

	// Seek is idempotent and best-effort: it should land at or before the
	// nearest keyframe at or before the requested media time.
	Seek(mediaTime float64) error

	// GetFrameIfReady performs a non-blocking pull. It returns (nil, nil)
	// if the decoder is still waiting on I/O - the caller should poll
	// again rather than treat that as an error or as EOF.
	GetFrameIfReady() (*Frame, error)

	// ReachedEOF reports whether decoding has run past the last frame.
	ReachedEOF() bool

	// Close releases any resources (file descriptors, pipeline elements)
	// held by the decoder.
	Close() error
}

// OpenFunc opens a Decoder for the given filename. internal/frameloader is
// parameterized over this so tests can inject a Mock factory instead of a
// real codec, per spec.md §9's "polymorphism... dependency injection in
// tests" design note.
type OpenFunc func(filename string) (Decoder, error)
