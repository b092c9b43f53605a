package frameloader

import (
	"fmt"
	"math"
	"time"

	"github.com/e7canasta/pivid/internal/intervalset"
	"github.com/e7canasta/pivid/internal/mediadecoder"
	"github.com/e7canasta/pivid/internal/pverr"
	"github.com/e7canasta/pivid/internal/pvtime"
)

// idleWait bounds how long the worker blocks when a request is fully
// satisfied, so it still notices things that don't flow through wake: a
// late EOF discovery on the next decode attempt is not possible once a
// request is satisfied, but bounding the wait costs nothing and keeps the
// loop responsive if a future change adds one.
const idleWait = 100 * time.Millisecond

// pollWait is how long the worker waits between "waiting on I/O" pulls.
const pollWait = 5 * time.Millisecond

func (l *Loader) run() {
	defer l.wg.Done()

	for !l.stopped() {
		l.mu.Lock()
		req := l.request.Clone()
		frozen := l.frozen
		l.mu.Unlock()

		if frozen || req.IsEmpty() {
			l.wake.WaitFor(idleWait)
			continue
		}

		if l.decoder == nil {
			dec, err := l.open(l.filename)
			if err != nil {
				l.freeze(fmt.Errorf("frameloader: open %s: %w", l.filename, err))
				continue
			}
			l.mu.Lock()
			l.decoder = dec
			l.mu.Unlock()
		}

		progressed, err := l.reconcileOnce(req)
		if err != nil {
			l.freeze(err)
			continue
		}
		if !progressed {
			l.wake.WaitFor(idleWait)
		}
	}
}

func (l *Loader) freeze(err error) {
	l.mu.Lock()
	l.frozen = true
	l.err = err
	notify := l.notify
	l.mu.Unlock()
	l.logf("frozen: %v", err)
	if notify != nil {
		notify.Set()
	}
}

func (l *Loader) notifyChanged() {
	l.mu.Lock()
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify.Set()
	}
}

// versionAt reports whether SetRequest has advanced the version past v,
// signaling that the current decode run's target may no longer matter.
func (l *Loader) versionAt(v uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version != v
}

// reconcileOnce performs one pass of spec.md §4.2.1's six-step algorithm:
// evict what's no longer wanted, compute what's missing, seek or continue
// the decoder toward the earliest missing point, and pump frames until
// either that gap closes, the request changes, EOF is hit, or an error
// occurs. It returns progressed=true if it did any work (so the caller
// should immediately re-reconcile rather than sleep), or an error if the
// decoder surfaced a terminal failure.
func (l *Loader) reconcileOnce(req intervalset.Set[pvtime.Seconds]) (bool, error) {
	l.mu.Lock()
	version := l.version

	// Step 1: evict frames outside the new request and shrink have to
	// only what's still wanted.
	surplus := l.have.Difference(req)
	for _, iv := range surplus.Intervals() {
		for t, img := range l.frames {
			if t >= iv.Lo && t < iv.Hi {
				img.Release()
				delete(l.frames, t)
			}
		}
	}
	l.have = l.have.Intersection(req)

	// Step 2: compute what's missing, clamped by EOF - nothing past the
	// end of the file will ever become available.
	missing := req.Difference(l.have)
	if l.eof != nil {
		missing = missing.Intersection(intervalset.New(intervalset.Interval[pvtime.Seconds]{
			Lo: pvtime.Seconds(math.Inf(-1)),
			Hi: *l.eof,
		}))
	}
	have := l.have.Clone()
	eof := l.eof
	l.mu.Unlock()

	if missing.IsEmpty() {
		return false, nil
	}

	// Step 3: earliest missing point, and the contiguous missing run it
	// opens - pump decodes straight through that whole run before coming
	// back here, rather than returning after every single frame.
	p := missing.Intervals()[0].Lo
	runEnd := missing.Intervals()[0].Hi

	// Step 4: seek if the decoder isn't already positioned usefully close
	// to p, otherwise keep decoding forward from where it is.
	runStart := p
	if l.decoderPosition == nil || p < *l.decoderPosition || p-*l.decoderPosition > l.cfg.SeekThreshold {
		if err := l.decoder.Seek(float64(p)); err != nil {
			if pverr.IsTransient(err) {
				// Not progressed: run waits idleWait, then retries the seek.
				return false, nil
			}
			return false, l.classify(err, pverr.KindDecode)
		}
		l.decoderPosition = nil
	} else {
		runStart = *l.decoderPosition
	}

	return l.pump(req, have, eof, version, runStart, runEnd)
}

// pump repeatedly pulls frames from the decoder until it has decoded
// through the contiguous missing run that ends at runEnd, the request
// version changes, EOF is discovered, stop is requested, or a terminal
// error occurs.
func (l *Loader) pump(req, have intervalset.Set[pvtime.Seconds], eof *pvtime.Seconds, version uint64, runStart, runEnd pvtime.Seconds) (bool, error) {
	backoff := l.cfg.BackoffInitial
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}

	for {
		if l.stopped() {
			return true, nil
		}
		if l.versionAt(version) {
			return true, nil
		}

		frame, err := l.decoder.GetFrameIfReady()
		if err != nil {
			if pverr.IsTransient(err) {
				l.wake.WaitFor(backoff)
				backoff *= 2
				if max := l.cfg.BackoffMax; max > 0 && backoff > max {
					backoff = max
				}
				continue
			}
			return false, l.classify(err, pverr.KindDecode)
		}
		backoff = l.cfg.BackoffInitial
		if backoff <= 0 {
			backoff = 10 * time.Millisecond
		}

		if frame == nil {
			if l.decoder.ReachedEOF() {
				return true, l.handleEOF(req, runStart)
			}
			l.wake.WaitFor(pollWait)
			continue
		}

		t := pvtime.Seconds(frame.MediaTime)

		if t < runStart {
			// A keyframe landed before our target, from the seek snapping
			// backward. Keep it if it's close enough to be worth caching
			// for reuse, otherwise drop it uncached.
			if runStart-t > l.cfg.KeyframePrefetchTolerance {
				releaseFrameLayers(frame)
				continue
			}
			stopped, err := l.cacheFrameRetrying(version, t, frame)
			if stopped {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			pos := t
			l.decoderPosition = &pos
			continue
		}

		stopped, err := l.cacheFrameRetrying(version, t, frame)
		if stopped {
			return true, nil
		}
		if err != nil {
			return false, err
		}

		l.mu.Lock()
		l.have.Insert(runStart, t)
		have = l.have.Clone()
		l.mu.Unlock()
		runStart = t
		pos := t
		l.decoderPosition = &pos
		l.notifyChanged()

		if t >= runEnd {
			// Decoded through the whole contiguous run that was missing
			// when this pump started; let the caller re-reconcile in case
			// a newer, disjoint gap now warrants a seek.
			return true, nil
		}

		missing := req.Difference(have)
		if eof != nil {
			missing = missing.Intersection(intervalset.New(intervalset.Interval[pvtime.Seconds]{
				Lo: pvtime.Seconds(math.Inf(-1)),
				Hi: *eof,
			}))
		}
		if missing.IsEmpty() {
			return true, nil
		}
	}
}

// handleEOF records the end-of-file point discovered by the decoder and
// extends have up to it, intersected with what was actually wanted.
func (l *Loader) handleEOF(req intervalset.Set[pvtime.Seconds], runStart pvtime.Seconds) error {
	l.mu.Lock()
	pos := runStart
	if l.decoderPosition != nil {
		pos = *l.decoderPosition
	}
	e := pos
	l.eof = &e
	l.have.Insert(runStart, e)
	l.have = l.have.Intersection(req)
	notify := l.notify
	l.mu.Unlock()

	l.logf("eof at %v", e)
	if notify != nil {
		notify.Set()
	}
	return nil
}

// cacheFrame imports a decoded frame's primary layer into driver memory and
// stores it, replacing and releasing any prior frame at the same key.
//
// MediaFrame.Layers is plural (multi-plane formats may produce more than
// one ImageBuffer) but LoaderContent.Frames holds a single LoadedImage per
// time key, so only Layers[0] becomes the cached image; any further layers
// are released unimported.
//
// A transient import error (GPU OOM, EAGAIN) leaves frame.Layers unreleased
// so cacheFrameRetrying can retry the same buffer; any other error releases
// them before returning.
func (l *Loader) cacheFrame(t pvtime.Seconds, frame *mediadecoder.Frame) error {
	if len(frame.Layers) == 0 {
		return nil
	}
	primary := frame.Layers[0]
	loaded, err := l.driver.ImportImage(primary)
	if err != nil {
		if pverr.IsTransient(err) {
			return err
		}
		for _, layer := range frame.Layers {
			layer.Release()
		}
		return l.classify(err, pverr.KindImport)
	}
	for _, layer := range frame.Layers[1:] {
		layer.Release()
	}

	l.mu.Lock()
	if old, ok := l.frames[t]; ok {
		old.Release()
	}
	l.frames[t] = loaded
	l.mu.Unlock()
	return nil
}

// cacheFrameRetrying calls cacheFrame, backing off and retrying on a
// transient import error (starting at cfg.BackoffInitial, capped at
// cfg.BackoffMax) the same way pump retries a transient decode error,
// per spec.md §4.2.4's "OOM on frame import is transient, back off and
// retry, never freeze." It gives up and releases frame's buffers only if
// the loader is stopped or the request version moves on during the wait.
func (l *Loader) cacheFrameRetrying(version uint64, t pvtime.Seconds, frame *mediadecoder.Frame) (stopped bool, err error) {
	backoff := l.cfg.BackoffInitial
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	for {
		if l.stopped() || l.versionAt(version) {
			releaseFrameLayers(frame)
			return true, nil
		}
		err := l.cacheFrame(t, frame)
		if err == nil {
			return false, nil
		}
		if !pverr.IsTransient(err) {
			return false, err
		}
		l.wake.WaitFor(backoff)
		backoff *= 2
		if max := l.cfg.BackoffMax; max > 0 && backoff > max {
			backoff = max
		}
	}
}

func releaseFrameLayers(frame *mediadecoder.Frame) {
	for _, layer := range frame.Layers {
		layer.Release()
	}
}

// classify wraps a raw decoder/driver error with a Kind if it isn't already
// a classified *pverr.Error, applying fallback as the default for the call
// site that produced it. A transient-classified error never reaches here:
// pump, cacheFrameRetrying and reconcileOnce's seek handle
// pverr.KindTransient inline and retry instead of returning it.
func (l *Loader) classify(err error, fallback pverr.Kind) error {
	if pverr.ClassifyOf(err) != pverr.KindUnknown {
		return err
	}
	return pverr.New(fallback, err)
}
