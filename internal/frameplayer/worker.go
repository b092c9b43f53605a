package frameplayer

import (
	"github.com/e7canasta/pivid/internal/pverr"
	"github.com/e7canasta/pivid/internal/pvtime"
)

func (p *Player) run() {
	defer p.wg.Done()

	for !p.stopped() {
		p.mu.Lock()
		sched := p.schedule
		last := p.lastPresented
		p.mu.Unlock()

		now := p.sys.SystemTime()
		best, _ := pickEntry(sched, now, last, p.cfg)

		if best == nil {
			p.wake.WaitFor(p.cfg.IdleWait)
			continue
		}

		if !p.driver.ReadyForUpdate(p.connectorID) {
			p.wake.WaitFor(p.cfg.ReadyPollInterval)
			continue
		}

		if err := p.driver.UpdateOutput(p.connectorID, p.mode, best.Layers); err != nil {
			if pverr.IsTransient(err) {
				// A commit rejection is the driver's business to recover
				// from on the next vsync; retry with whatever is eligible
				// then, never blocking the presenter thread on it.
				p.wake.WaitFor(p.cfg.ReadyPollInterval)
				continue
			}
			// A lost connector or other terminal driver error: spec.md §7
			// says this is logged and the player discards its schedule
			// until SetTimeline replaces it, rather than looping forever
			// on an entry the driver will never accept.
			classified := err
			if pverr.ClassifyOf(err) == pverr.KindUnknown {
				classified = pverr.New(pverr.KindDriver, err)
			}
			p.logf("terminal update error, discarding schedule: %v", classified)
			p.mu.Lock()
			p.schedule = nil
			p.mu.Unlock()
			p.wake.WaitFor(p.cfg.ReadyPollInterval)
			continue
		}

		t := best.SystemTime
		p.mu.Lock()
		p.lastPresented = &t
		p.mu.Unlock()
	}
}

// pickEntry selects the schedule entry with the greatest SystemTime that
// is still <= now+tolerance and strictly after whatever was last
// presented (spec.md §4.3's ordering guarantee: never present an older
// list after a newer one), discarding anything older than now-StaleAge
// outright. It also returns the earliest entry still in the future
// (beyond now+tolerance), or nil if there is none.
func pickEntry(sched []ScheduleEntry, now pvtime.SystemTime, last *pvtime.SystemTime, cfg Config) (best, future *ScheduleEntry) {
	for i := range sched {
		e := &sched[i]
		if last != nil && e.SystemTime <= *last {
			continue
		}
		if e.SystemTime < now-cfg.StaleAge {
			continue
		}
		if e.SystemTime <= now+cfg.RefreshTolerance {
			if best == nil || e.SystemTime > best.SystemTime {
				best = e
			}
			continue
		}
		if future == nil || e.SystemTime < future.SystemTime {
			future = e
		}
	}
	return best, future
}
