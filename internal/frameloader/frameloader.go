// Package frameloader implements the hardest component in this repository
// (spec.md §4.2): a per-file background worker that, given a request (a
// set of media-time intervals), maintains a set of decoded frames covering
// those intervals while minimizing re-decodes across request changes. It
// sits between internal/mediadecoder's pull-only Decoder and the script
// runner / frame player that consume its cached content.
//
// The worker goroutine topology and lock discipline follow
// framesupplier/internal/supplier.go's single distributionLoop pattern: one
// goroutine owns the decoder exclusively, a mutex guards only the small
// piece of shared state (request, have, frames, eof, version, err), and a
// latching unixsystem.Signal wakes the worker on request changes - the Go
// analogue of that file's sync.Cond-based inbox wait.
package frameloader

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/intervalset"
	"github.com/e7canasta/pivid/internal/mediadecoder"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

// Config carries the tunables spec.md leaves open (§4.2.1's seek
// threshold, §9's "configurable upper bound on per-loader frame count" and
// "configurable" key-match tolerance).
type Config struct {
	// SeekThreshold is the media-time gap (forward) beyond which the
	// worker issues a seek instead of decoding sequentially to catch up.
	// spec.md §4.2.1 calls out "~2 s" as typical.
	SeekThreshold pvtime.Seconds

	// KeyframePrefetchTolerance bounds how far before the current seek
	// target a decoded frame may lag and still be kept, per spec.md
	// §4.2.1 step 4.
	KeyframePrefetchTolerance pvtime.Seconds

	// MaxFrames is carried in the configuration but the worker does not
	// read it: no frame-count cap is applied, and the number of frames held
	// is bounded only by the current request, since every frame outside
	// the request is evicted on the next reconcile pass.
	MaxFrames int

	// BackoffInitial/BackoffMax bound the exponential backoff applied to
	// transient errors (spec.md §4.2.4): starting 10ms, capped at 1s by
	// default.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultConfig returns the tunables named as typical in spec.md.
func DefaultConfig() Config {
	return Config{
		SeekThreshold:             2.0,
		KeyframePrefetchTolerance: 0.05,
		MaxFrames:                 0,
		BackoffInitial:            10 * time.Millisecond,
		BackoffMax:                time.Second,
	}
}

// Content is the loader's cheap, lock-copied snapshot, matching
// spec.md §3's LoaderContent exactly: frames, cover, and eof, plus an
// error field spec.md §4.2.4 says implementors should add.
type Content struct {
	Frames map[pvtime.Seconds]display.LoadedImage
	Cover  intervalset.Set[pvtime.Seconds]
	EOF    *pvtime.Seconds
	Err    error
}

// Loader is a FrameLoader: one background worker per file, maintaining a
// mutex-guarded state object per spec.md §4.2.
type Loader struct {
	filename string
	driver   display.Driver
	open     mediadecoder.OpenFunc
	cfg      Config

	mu      sync.Mutex
	request intervalset.Set[pvtime.Seconds]
	have    intervalset.Set[pvtime.Seconds]
	frames  map[pvtime.Seconds]display.LoadedImage
	eof     *pvtime.Seconds
	version uint64
	err     error
	frozen  bool
	notify  *unixsystem.Signal

	decoder         mediadecoder.Decoder
	decoderPosition *pvtime.Seconds

	wake *unixsystem.Signal
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a loader for filename and starts its worker goroutine
// immediately. The decoder is opened lazily, on the worker's first wake,
// so New itself never blocks (spec.md §4.4's lifecycle note: loaders are
// created on first reference to a file; the open happens off the caller's
// goroutine).
func New(filename string, driver display.Driver, open mediadecoder.OpenFunc, cfg Config) *Loader {
	l := &Loader{
		filename: filename,
		driver:   driver,
		open:     open,
		cfg:      cfg,
		frames:   make(map[pvtime.Seconds]display.LoadedImage),
		wake:     unixsystem.NewSignal(),
		stop:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// SetRequest replaces the current request and wakes the worker. It never
// blocks on decoding (spec.md §4.2.3): it only updates shared state and
// bumps a version counter under the loader's mutex. notify, if non-nil,
// replaces the signal raised whenever content() changes meaningfully.
func (l *Loader) SetRequest(req intervalset.Set[pvtime.Seconds], notify *unixsystem.Signal) {
	l.mu.Lock()
	l.request = req.Clone()
	l.notify = notify
	l.version++
	l.mu.Unlock()

	l.wake.Set()
}

// Content returns a cheap, lock-copied snapshot: shared references to
// LoadedImages plus a copy of cover/eof/err. The caller may outlive the
// loader for any frame it already holds, because LoadedImage is
// refcounted (spec.md §4.2.3).
func (l *Loader) Content() Content {
	l.mu.Lock()
	defer l.mu.Unlock()

	frames := make(map[pvtime.Seconds]display.LoadedImage, len(l.frames))
	for k, v := range l.frames {
		frames[k] = v
	}

	var eof *pvtime.Seconds
	if l.eof != nil {
		e := *l.eof
		eof = &e
	}

	return Content{
		Frames: frames,
		Cover:  l.have.Clone(),
		EOF:    eof,
		Err:    l.err,
	}
}

// Close signals stop, joins the worker, and releases all frames - the
// FrameLoader destructor contract of spec.md §4.2.
func (l *Loader) Close() error {
	close(l.stop)
	l.wake.Set()
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, img := range l.frames {
		img.Release()
		delete(l.frames, k)
	}
	if l.decoder != nil {
		if err := l.decoder.Close(); err != nil {
			return fmt.Errorf("frameloader: close decoder for %s: %w", l.filename, err)
		}
	}
	return nil
}

// Filename returns the file this loader was opened against.
func (l *Loader) Filename() string { return l.filename }

func (l *Loader) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Loader) logf(format string, args ...any) {
	slog.Debug("frameloader: "+format, append([]any{"file", l.filename}, args...)...)
}
