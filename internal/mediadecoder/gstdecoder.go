package mediadecoder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstDecoder is a reference Decoder backed by GStreamer, grounded on the
// pipeline-construction and teardown discipline of
// stream-capture/internal/rtsp/pipeline.go: build a decodebin-based
// pipeline, pull samples from an appsink, and tear every element down
// explicitly on Close. Unlike the RTSP capture pipeline it reads a local
// file and supports seeking, matching spec.md §6's MediaDecoder contract
// rather than the live-stream StreamProvider contract.
//
// GstDecoder is not a codec implementation; it is exactly the "pull-only
// demuxer/decoder" external collaborator spec.md §1 scopes out of the
// core, made concrete so the example daemon has something real to run
// against GStreamer-readable files.
type GstDecoder struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	info     Info
	eof      bool
	closed   bool
}

// OpenGst opens filename with a decodebin-based GStreamer pipeline and
// returns a Decoder. It implements the mediadecoder.OpenFunc shape.
func OpenGst(filename string) (Decoder, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create pipeline: %w", err)
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create filesrc: %w", err)
	}
	if err := filesrc.SetProperty("location", filename); err != nil {
		return nil, fmt.Errorf("mediadecoder: set location: %w", err)
	}

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create decodebin: %w", err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create videoconvert: %w", err)
	}

	caps, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create capsfilter: %w", err)
	}
	if err := caps.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA")); err != nil {
		return nil, fmt.Errorf("mediadecoder: set caps: %w", err)
	}

	sinkElem, err := gst.NewElement("appsink")
	if err != nil {
		return nil, fmt.Errorf("mediadecoder: create appsink: %w", err)
	}
	sink := app.SinkFromElement(sinkElem)
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", uint(4))
	sink.SetProperty("drop", false)

	if err := pipeline.AddMany(filesrc, decodebin, convert, caps, sinkElem); err != nil {
		return nil, fmt.Errorf("mediadecoder: add elements: %w", err)
	}
	if err := filesrc.Link(decodebin); err != nil {
		return nil, fmt.Errorf("mediadecoder: link filesrc->decodebin: %w", err)
	}
	if err := convert.Link(caps); err != nil {
		return nil, fmt.Errorf("mediadecoder: link convert->caps: %w", err)
	}
	if err := caps.Link(sinkElem); err != nil {
		return nil, fmt.Errorf("mediadecoder: link caps->sink: %w", err)
	}

	// decodebin exposes its source pad dynamically once it has sniffed
	// the container; wire it to videoconvert's sink pad when it appears,
	// mirroring the rtsph264depay pad-added pattern in
	// stream-capture/rtsp.go.
	decodebin.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := convert.GetStaticPad("sink")
		if sinkPad != nil && !sinkPad.IsLinked() {
			srcPad.Link(sinkPad)
		}
	})

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return nil, fmt.Errorf("mediadecoder: pipeline to PAUSED: %w", err)
	}

	d := &GstDecoder{
		pipeline: pipeline,
		sink:     sink,
		info:     probeInfo(pipeline, filename),
	}
	return d, nil
}

func probeInfo(pipeline *gst.Pipeline, filename string) Info {
	info := Info{Container: "unknown", Codec: "unknown", PixelFormat: string(display.FormatRGBA)}
	if dur, ok := pipeline.QueryDuration(gst.FormatTime); ok {
		seconds := float64(dur) / float64(gst.SecondVal)
		info.Duration = &seconds
	}
	return info
}

// Info implements Decoder.
func (d *GstDecoder) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Seek implements Decoder, issuing a GStreamer flushing key-unit seek -
// best-effort to the nearest prior keyframe, matching spec.md §6's
// idempotent-seek contract.
func (d *GstDecoder) Seek(mediaTime float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("mediadecoder: seek on closed decoder")
	}

	ns := gst.ClockTime(mediaTime * float64(gst.SecondVal))
	ok := d.pipeline.SeekSimple(
		gst.FormatTime,
		gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		int64(ns),
	)
	if !ok {
		return fmt.Errorf("mediadecoder: seek to %.3fs failed", mediaTime)
	}
	d.eof = false
	return nil
}

// GetFrameIfReady implements Decoder via a non-blocking appsink pull.
func (d *GstDecoder) GetFrameIfReady() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("mediadecoder: pull on closed decoder")
	}

	if d.sink.IsEOS() {
		d.eof = true
		return nil, nil
	}

	sample, err := d.sink.TryPullSample(0)
	if err != nil {
		// No sample ready yet: this is the "waiting on I/O" case, not an
		// error, per spec.md §6.
		return nil, nil
	}
	if sample == nil {
		return nil, nil
	}
	defer sample.Unref()

	buf := sample.GetBuffer()
	if buf == nil {
		return nil, nil
	}

	pts := buf.PresentationTimestamp()
	mediaTime := float64(pts) / float64(gst.SecondVal)

	mapped := buf.Map(gst.MapRead)
	if mapped == nil {
		return nil, fmt.Errorf("mediadecoder: failed to map buffer")
	}
	defer buf.Unmap()
	data := append([]byte(nil), mapped.Bytes()...)

	image := display.NewImageBuffer(0, 0, display.FormatRGBA, nil, [][]byte{data}, nil)

	return &Frame{
		MediaTime:  mediaTime,
		Layers:     []display.ImageBuffer{image},
		FrameType:  "video",
		IsKeyFrame: !buf.HasFlags(gst.BufferFlagDeltaUnit),
	}, nil
}

// ReachedEOF implements Decoder.
func (d *GstDecoder) ReachedEOF() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eof || d.sink.IsEOS()
}

// Close implements Decoder, tearing the pipeline down the way
// stream-capture.RTSPStream.Stop destroys its pipeline.
func (d *GstDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		slog.Error("mediadecoder: failed to null pipeline", "error", err)
		return fmt.Errorf("mediadecoder: close: %w", err)
	}
	return nil
}
