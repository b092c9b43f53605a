package frameplayer

import (
	"testing"
	"time"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

func testMode() display.Mode {
	return display.Mode{Width: 1920, Height: 1080, RefreshHz: 60}
}

func entryAt(t pvtime.SystemTime) ScheduleEntry {
	return ScheduleEntry{SystemTime: t}
}

func waitUntilPresented(t *testing.T, p *Player, want pvtime.SystemTime, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if lp := p.LastPresented(); lp != nil && *lp == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for presentation of %v; last=%v", want, p.LastPresented())
}

func TestPlayerPresentsEligibleEntry(t *testing.T) {
	driver := display.NewSoftwareDriver(display.Status{ConnectorID: 1, Detected: true})
	sys := unixsystem.NewFake(10.0)
	cfg := DefaultConfig(testMode())
	cfg.IdleWait = time.Millisecond
	cfg.ReadyPollInterval = time.Millisecond

	p := New(1, testMode(), driver, sys, cfg)
	defer p.Close()

	p.SetTimeline([]ScheduleEntry{entryAt(10.0)})
	waitUntilPresented(t, p, 10.0, time.Second)
}

func TestPlayerNeverPresentsOlderAfterNewer(t *testing.T) {
	driver := display.NewSoftwareDriver(display.Status{ConnectorID: 1, Detected: true})
	sys := unixsystem.NewFake(10.0)
	cfg := DefaultConfig(testMode())
	cfg.IdleWait = time.Millisecond
	cfg.ReadyPollInterval = time.Millisecond

	p := New(1, testMode(), driver, sys, cfg)
	defer p.Close()

	p.SetTimeline([]ScheduleEntry{entryAt(10.0), entryAt(10.01)})
	waitUntilPresented(t, p, 10.01, time.Second)

	// A fresh timeline containing only older entries must not regress the
	// presenter.
	p.SetTimeline([]ScheduleEntry{entryAt(9.5)})
	time.Sleep(20 * time.Millisecond)
	if lp := p.LastPresented(); lp == nil || *lp != 10.01 {
		t.Fatalf("presenter regressed: last=%v, want 10.01", lp)
	}
}

func TestPlayerDiscardsStaleEntries(t *testing.T) {
	driver := display.NewSoftwareDriver(display.Status{ConnectorID: 1, Detected: true})
	sys := unixsystem.NewFake(100.0)
	cfg := DefaultConfig(testMode())
	cfg.StaleAge = 0.01
	cfg.IdleWait = time.Millisecond
	cfg.ReadyPollInterval = time.Millisecond

	p := New(1, testMode(), driver, sys, cfg)
	defer p.Close()

	// Far in the past relative to StaleAge: must never be presented.
	p.SetTimeline([]ScheduleEntry{entryAt(1.0)})
	time.Sleep(20 * time.Millisecond)
	if lp := p.LastPresented(); lp != nil {
		t.Fatalf("stale entry was presented: %v", *lp)
	}
}

func TestPlayerCommitsWithPlayerMode(t *testing.T) {
	driver := display.NewSoftwareDriver(display.Status{ConnectorID: 1, Detected: true})
	driver.SetDetected(1, true)
	sys := unixsystem.NewFake(10.0)
	cfg := DefaultConfig(testMode())
	cfg.IdleWait = time.Millisecond
	cfg.ReadyPollInterval = time.Millisecond

	p := New(1, testMode(), driver, sys, cfg)
	defer p.Close()

	p.SetTimeline([]ScheduleEntry{entryAt(10.0)})
	waitUntilPresented(t, p, 10.0, time.Second)

	layers, mode, ok := driver.LastCommit(1)
	if !ok {
		t.Fatal("expected a commit to have been recorded")
	}
	if mode != testMode() {
		t.Errorf("committed mode = %v, want %v", mode, testMode())
	}
	_ = layers
}

func TestPickEntrySelectsGreatestEligible(t *testing.T) {
	cfg := Config{RefreshTolerance: 0.02, StaleAge: 0.02}
	sched := []ScheduleEntry{entryAt(9.99), entryAt(10.0), entryAt(10.5)}
	best, future := pickEntry(sched, 10.0, nil, cfg)
	if best == nil || best.SystemTime != 10.0 {
		t.Fatalf("best = %v, want 10.0", best)
	}
	if future == nil || future.SystemTime != 10.5 {
		t.Fatalf("future = %v, want 10.5", future)
	}
}

func TestPickEntrySkipsAlreadyPresented(t *testing.T) {
	cfg := Config{RefreshTolerance: 0.02, StaleAge: 0.02}
	last := pvtime.SystemTime(10.0)
	sched := []ScheduleEntry{entryAt(10.0), entryAt(9.9)}
	best, _ := pickEntry(sched, 10.0, &last, cfg)
	if best != nil {
		t.Fatalf("expected no eligible entry past last presented, got %v", best)
	}
}
