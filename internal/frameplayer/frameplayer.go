// Package frameplayer implements the per-output presenter (spec.md §4.3):
// one goroutine per display connector that waits for the driver's vsync
// gate and the nearest eligible schedule entry, then commits it. Polling
// style is grounded on modules/stream-capture/rtsp.go's monitorPipeline bus
// loop (short-timeout polling for responsive shutdown); the
// replace-everything semantics of SetTimeline follow the "drop, never
// queue" philosophy documented in modules/framebus/bus.go's package doc,
// applied here to schedule entries instead of frames: a fresh timeline
// always wins over whatever was pending, nothing is merged or queued.
package frameplayer

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

// ScheduleEntry is one (system_time, layers) pair in a player's timeline,
// matching spec.md §4.3's set_timeline contract exactly.
type ScheduleEntry struct {
	SystemTime pvtime.SystemTime
	Layers     []display.DisplayLayer
}

// Config carries the tunables spec.md leaves as "typical values" rather
// than fixed constants.
type Config struct {
	// RefreshTolerance is how far past now an entry may be presented
	// early ("system_time <= now + one_refresh_tolerance").
	RefreshTolerance pvtime.Seconds

	// StaleAge is how far behind now an entry must fall before it's
	// discarded outright ("system_time < now - one_refresh").
	StaleAge pvtime.Seconds

	// ReadyPollInterval bounds how often the player re-checks the
	// driver's ready_for_update gate while an eligible entry is pending.
	ReadyPollInterval time.Duration

	// IdleWait bounds how long the player sleeps when the schedule is
	// empty or entirely in the future, between re-checks.
	IdleWait time.Duration
}

// DefaultConfig derives tolerances from a display mode's refresh rate,
// falling back to 60Hz if the mode is silent on it.
func DefaultConfig(mode display.Mode) Config {
	hz := mode.RefreshHz
	if hz <= 0 {
		hz = 60
	}
	refresh := pvtime.Seconds(1.0 / hz)
	return Config{
		RefreshTolerance:  refresh,
		StaleAge:          refresh,
		ReadyPollInterval: 4 * time.Millisecond,
		IdleWait:          20 * time.Millisecond,
	}
}

// Player is a FramePlayer: one background presenter goroutine per display
// connector.
type Player struct {
	connectorID uint32
	mode        display.Mode
	driver      display.Driver
	sys         unixsystem.System
	cfg         Config

	mu            sync.Mutex
	schedule      []ScheduleEntry
	version       uint64
	lastPresented *pvtime.SystemTime

	wake *unixsystem.Signal
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Player for connectorID/mode and starts its presenter
// goroutine immediately.
func New(connectorID uint32, mode display.Mode, driver display.Driver, sys unixsystem.System, cfg Config) *Player {
	p := &Player{
		connectorID: connectorID,
		mode:        mode,
		driver:      driver,
		sys:         sys,
		cfg:         cfg,
		wake:        unixsystem.NewSignal(),
		stop:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// SetTimeline replaces the upcoming schedule entirely - spec.md §4.3's
// "replaces the upcoming schedule" - and wakes the presenter. The slice is
// cloned and sorted by SystemTime so callers don't need to pre-sort.
func (p *Player) SetTimeline(schedule []ScheduleEntry) {
	sorted := make([]ScheduleEntry, len(schedule))
	copy(sorted, schedule)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SystemTime < sorted[j].SystemTime })

	p.mu.Lock()
	p.schedule = sorted
	p.version++
	p.mu.Unlock()

	p.wake.Set()
}

// LastPresented returns the SystemTime of the most recently committed
// entry, or nil if nothing has been presented yet.
func (p *Player) LastPresented() *pvtime.SystemTime {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPresented == nil {
		return nil
	}
	t := *p.lastPresented
	return &t
}

// Close stops the presenter goroutine and joins it.
func (p *Player) Close() error {
	close(p.stop)
	p.wake.Set()
	p.wg.Wait()
	return nil
}

func (p *Player) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *Player) logf(format string, args ...any) {
	slog.Debug("frameplayer: "+format, append([]any{"connector_id", p.connectorID}, args...)...)
}
