// Package scriptrunner implements the orchestrator that ties a live
// script to a pool of frame loaders and frame players (spec.md §4.4): it
// owns loaders keyed by file path and players keyed by (connector, mode),
// and on a tick drives both from the current script's layers.
//
// The orchestrator shape - one struct holding long-lived component maps
// behind a mutex, a Run(ctx) that ticks inline in a select against a
// ticker, a wake channel and <-ctx.Done(), and a Shutdown tearing
// components down in dependency
// order - is grounded directly on
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/core/orion.go's Orion struct.
package scriptrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/frameloader"
	"github.com/e7canasta/pivid/internal/frameplayer"
	"github.com/e7canasta/pivid/internal/mediadecoder"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/script"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

// Config carries the tunables spec.md §4.4 names as "typical values"
// rather than fixed constants.
type Config struct {
	// Horizon (H) is the prefetch/schedule window, in system-time seconds,
	// the runner plans ahead of each tick.
	Horizon pvtime.Seconds

	// HorizonSteps is how many equal sub-intervals the runner splits the
	// horizon into (sampling HorizonSteps+1 points, both ends included)
	// when translating a layer's play function into the media-time
	// intervals a loader should hold. More steps track a
	// non-monotonic or looping play function more faithfully, at the
	// cost of a denser interval union.
	HorizonSteps int

	// Grace (G) is how long an unreferenced loader survives before the
	// runner closes it, absorbing brief script edits without a re-decode.
	Grace time.Duration

	// TickInterval is the runner's reconcile cadence.
	TickInterval time.Duration

	// FileInfoTimeout bounds how long FileInfo will wait on a decoder
	// open before giving up.
	FileInfoTimeout time.Duration

	// FrameMatchTolerance bounds how far a cached frame's media time may
	// differ from a requested sample point and still be used for it.
	FrameMatchTolerance pvtime.Seconds

	LoaderConfig frameloader.Config
}

// DefaultConfig returns the tunables spec.md calls typical: H around
// 0.5-2.0s, G around 5s.
func DefaultConfig() Config {
	return Config{
		Horizon:             1.0,
		HorizonSteps:        8,
		Grace:               5 * time.Second,
		TickInterval:        50 * time.Millisecond,
		FileInfoTimeout:     2 * time.Second,
		FrameMatchTolerance: 1.0 / 15.0,
		LoaderConfig:        frameloader.DefaultConfig(),
	}
}

type loaderEntry struct {
	loader        *frameloader.Loader
	graceDeadline *pvtime.SystemTime
}

type playerKey struct {
	ConnectorID uint32
	Mode        display.Mode
}

// Runner is the ScriptRunner orchestrator.
type Runner struct {
	driver display.Driver
	open   mediadecoder.OpenFunc
	sys    unixsystem.System
	cfg    Config

	started time.Time

	mu          sync.Mutex
	script      script.Evaluator
	activatedAt pvtime.SystemTime
	loaders     map[string]*loaderEntry
	players     map[playerKey]*frameplayer.Player
	fileInfo    map[string]mediadecoder.Info

	wakeCh  chan struct{}
	running bool
}

// New creates a Runner. It does nothing until Run is called.
func New(driver display.Driver, open mediadecoder.OpenFunc, sys unixsystem.System, cfg Config) *Runner {
	return &Runner{
		driver:   driver,
		open:     open,
		sys:      sys,
		cfg:      cfg,
		started:  time.Now(),
		loaders:  make(map[string]*loaderEntry),
		players:  make(map[playerKey]*frameplayer.Player),
		fileInfo: make(map[string]mediadecoder.Info),
		wakeCh:   make(chan struct{}, 1),
	}
}

// Update atomically swaps in a new live script and signals the tick loop,
// per spec.md §4.4 step 1. The runner does not re-anchor the script: its
// play and placement functions map system time to media time on their
// own (script.Build anchors them at the activation time passed to it).
func (r *Runner) Update(s script.Evaluator) {
	r.mu.Lock()
	r.script = s
	r.activatedAt = r.sys.SystemTime()
	r.mu.Unlock()

	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// FileInfo blocks briefly opening path to fetch its codec/duration
// metadata, bounded by cfg.FileInfoTimeout, and caches the result
// indefinitely - spec.md §4.4 step 3.
func (r *Runner) FileInfo(path string) (mediadecoder.Info, error) {
	r.mu.Lock()
	if info, ok := r.fileInfo[path]; ok {
		r.mu.Unlock()
		return info, nil
	}
	r.mu.Unlock()

	type result struct {
		dec mediadecoder.Decoder
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dec, err := r.open(path)
		ch <- result{dec, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return mediadecoder.Info{}, fmt.Errorf("scriptrunner: open %s: %w", path, res.err)
		}
		info := res.dec.Info()
		if err := res.dec.Close(); err != nil {
			slog.Warn("scriptrunner: closing probe decoder", "file", path, "error", err)
		}
		r.mu.Lock()
		r.fileInfo[path] = info
		r.mu.Unlock()
		return info, nil
	case <-time.After(r.cfg.FileInfoTimeout):
		return mediadecoder.Info{}, fmt.Errorf("scriptrunner: open %s: timed out after %s", path, r.cfg.FileInfoTimeout)
	}
}

// Run starts the tick loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("scriptrunner: already running")
	}
	r.running = true
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("scriptrunner: running", "horizon_s", float64(r.cfg.Horizon), "grace", r.cfg.Grace)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scriptrunner: run loop exiting")
			return nil
		case <-ticker.C:
			r.tick()
		case <-r.wakeCh:
			r.tick()
		}
	}
}

// Shutdown tears down every loader and player the runner owns, in
// dependency order: players (consumers of loader content) first, then
// loaders - mirroring Orion.Shutdown's "stop workers first, they depend
// on stream frames" ordering applied to this repo's producer/consumer
// pair.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	players := r.players
	r.players = make(map[playerKey]*frameplayer.Player)
	loaders := r.loaders
	r.loaders = make(map[string]*loaderEntry)
	r.running = false
	r.mu.Unlock()

	for key, p := range players {
		if err := p.Close(); err != nil {
			slog.Error("scriptrunner: closing player", "connector_id", key.ConnectorID, "error", err)
		}
	}
	for file, entry := range loaders {
		if err := entry.loader.Close(); err != nil {
			slog.Error("scriptrunner: closing loader", "file", file, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
