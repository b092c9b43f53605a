package scriptrunner

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/frameloader"
	"github.com/e7canasta/pivid/internal/frameplayer"
	"github.com/e7canasta/pivid/internal/intervalset"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/script"
)

// tick runs one full reconcile: it samples the current script across the
// prefetch horizon, reconciles the loader pool against the media-time
// intervals that came out of that sampling, then reconciles the player
// pool and pushes each a fresh timeline - spec.md §4.4's three-step tick.
//
// Every tick gets its own trace id, logged alongside loader/player
// lifecycle events and layer-resolution misses, the way
// stream-capture/types.go correlates a pipeline's log lines via
// Frame.TraceID.
func (r *Runner) tick() {
	r.mu.Lock()
	s := r.script
	r.mu.Unlock()
	if s == nil {
		return
	}

	traceID := uuid.New().String()
	now := r.sys.SystemTime()
	screens := s.Screens()

	fileReqs := computeFileRequests(screens, now, r.cfg.Horizon, r.cfg.HorizonSteps)
	loaders := r.reconcileLoaders(fileReqs, now, traceID)

	connectorIDs := r.resolveConnectors(screens, traceID)
	schedules := buildSchedules(screens, connectorIDs, now, r.cfg.Horizon, loaders, r.cfg.FrameMatchTolerance, traceID)
	r.reconcilePlayers(schedules, traceID)
}

// reconcileLoaders ensures a loader exists for every file in fileReqs,
// pushes each its new request, and closes any loader that has gone
// unreferenced for longer than cfg.Grace - spec.md §4.4 step 1's "absorb
// brief edits without a re-decode" loader lifecycle.
func (r *Runner) reconcileLoaders(fileReqs map[string]intervalset.Set[pvtime.Seconds], now pvtime.SystemTime, traceID string) map[string]*frameloader.Loader {
	r.mu.Lock()
	defer r.mu.Unlock()

	for file, req := range fileReqs {
		entry, ok := r.loaders[file]
		if !ok {
			entry = &loaderEntry{loader: frameloader.New(file, r.driver, r.open, r.cfg.LoaderConfig)}
			r.loaders[file] = entry
			slog.Info("scriptrunner: loader created", "file", file, "trace_id", traceID)
		}
		entry.graceDeadline = nil
		entry.loader.SetRequest(req, nil)
	}

	for file, entry := range r.loaders {
		if _, referenced := fileReqs[file]; referenced {
			continue
		}
		if entry.graceDeadline == nil {
			deadline := now + pvtime.FromDuration(r.cfg.Grace)
			entry.graceDeadline = &deadline
			continue
		}
		if now >= *entry.graceDeadline {
			if err := entry.loader.Close(); err != nil {
				slog.Error("scriptrunner: closing unreferenced loader", "file", file, "error", err, "trace_id", traceID)
			}
			delete(r.loaders, file)
			slog.Info("scriptrunner: loader retired", "file", file, "trace_id", traceID)
		}
	}

	snapshot := make(map[string]*frameloader.Loader, len(r.loaders))
	for file, entry := range r.loaders {
		snapshot[file] = entry.loader
	}
	return snapshot
}

// reconcilePlayers ensures a player exists for every key in schedules,
// closes players no longer referenced by the script, and pushes each
// surviving player its new timeline.
func (r *Runner) reconcilePlayers(schedules map[playerKey][]frameplayer.ScheduleEntry, traceID string) {
	r.mu.Lock()
	for key := range schedules {
		if _, ok := r.players[key]; ok {
			continue
		}
		p := frameplayer.New(key.ConnectorID, key.Mode, r.driver, r.sys, frameplayer.DefaultConfig(key.Mode))
		r.players[key] = p
		slog.Info("scriptrunner: player created", "connector_id", key.ConnectorID, "mode", key.Mode, "trace_id", traceID)
	}
	for key, p := range r.players {
		if _, ok := schedules[key]; ok {
			continue
		}
		if err := p.Close(); err != nil {
			slog.Error("scriptrunner: closing unreferenced player", "connector_id", key.ConnectorID, "error", err, "trace_id", traceID)
		}
		delete(r.players, key)
		slog.Info("scriptrunner: player retired", "connector_id", key.ConnectorID, "trace_id", traceID)
	}
	snapshot := make(map[playerKey]*frameplayer.Player, len(r.players))
	for key, p := range r.players {
		snapshot[key] = p
	}
	r.mu.Unlock()

	for key, entries := range schedules {
		if p, ok := snapshot[key]; ok {
			p.SetTimeline(entries)
		}
	}
}

// resolveConnectors maps each screen's connector name to the connector ID
// the driver currently exposes it under. Screens whose connector isn't
// currently scanned out are dropped with a warning rather than failing the
// whole tick.
func (r *Runner) resolveConnectors(screens []script.Screen, traceID string) map[string]uint32 {
	byName := make(map[string]uint32)
	statuses, err := r.driver.ScanOutputs()
	if err != nil {
		slog.Warn("scriptrunner: scan outputs", "error", err, "trace_id", traceID)
		return byName
	}
	names := make(map[string]uint32, len(statuses))
	for _, st := range statuses {
		names[st.Name] = st.ConnectorID
	}
	for _, sc := range screens {
		if id, ok := names[sc.Connector]; ok {
			byName[sc.Connector] = id
		} else {
			slog.Warn("scriptrunner: connector not detected", "connector", sc.Connector, "trace_id", traceID)
		}
	}
	return byName
}

// computeFileRequests samples every layer's play function at HorizonSteps+1
// evenly-spaced points across [now, now+horizon], and for each consecutive
// pair of samples unions the media-time span they cover into that layer's
// file's requested interval set. Sampling densely rather than taking just
// the two endpoints lets this track a looping or otherwise non-monotonic
// play function without special-casing it.
func computeFileRequests(screens []script.Screen, now pvtime.SystemTime, horizon pvtime.Seconds, steps int) map[string]intervalset.Set[pvtime.Seconds] {
	if steps < 1 {
		steps = 1
	}
	out := make(map[string]intervalset.Set[pvtime.Seconds])

	for _, sc := range screens {
		for _, ly := range sc.Layers {
			prevMT, prevOK := ly.Play(now)
			for i := 1; i <= steps; i++ {
				t := now + horizon*pvtime.Seconds(float64(i)/float64(steps))
				mt, ok := ly.Play(t)
				if prevOK && ok {
					lo, hi := float64(prevMT), float64(mt)
					if lo > hi {
						lo, hi = hi, lo
					}
					s := out[ly.File]
					s.Insert(pvtime.Seconds(lo), pvtime.Seconds(hi))
					out[ly.File] = s
				}
				prevMT, prevOK = mt, ok
			}
		}
	}
	return out
}

// buildSchedules samples every screen's layers at each vsync slot within
// the horizon, resolving each layer's current media time and placement
// against its loader's cached content, and accumulates the results into
// one ScheduleEntry per slot per player - spec.md §4.4 step 2.
func buildSchedules(
	screens []script.Screen,
	connectorIDs map[string]uint32,
	now pvtime.SystemTime,
	horizon pvtime.Seconds,
	loaders map[string]*frameloader.Loader,
	tolerance pvtime.Seconds,
	traceID string,
) map[playerKey][]frameplayer.ScheduleEntry {
	out := make(map[playerKey][]frameplayer.ScheduleEntry)

	content := make(map[string]frameloader.Content, len(loaders))
	for file, l := range loaders {
		content[file] = l.Content()
	}

	for _, sc := range screens {
		connectorID, ok := connectorIDs[sc.Connector]
		if !ok {
			continue
		}
		key := playerKey{ConnectorID: connectorID, Mode: sc.Mode}

		period := pvtime.Seconds(1.0 / sc.Mode.RefreshHz)
		if sc.Mode.RefreshHz <= 0 {
			period = pvtime.Seconds(1.0 / 60.0)
		}
		slots := int(math.Ceil(float64(horizon) / float64(period)))
		if slots < 1 {
			slots = 1
		}

		entries := make([]frameplayer.ScheduleEntry, 0, slots+1)
		for i := 0; i <= slots; i++ {
			t := now + period*pvtime.Seconds(i)
			layers := layersAt(sc.Layers, t, content, tolerance, traceID)
			entries = append(entries, frameplayer.ScheduleEntry{SystemTime: t, Layers: layers})
		}
		out[key] = append(out[key], entries...)
	}
	return out
}

// layersAt resolves every layer's image and placement at system time t,
// skipping layers that are hidden (play or placement reports ok=false) or
// whose loader has no frame close enough to the requested media time. A
// skipped layer never fails the slot: the rest of the composite still
// presents, per spec.md §8's "missing frames skip the layer, not the
// presentation".
func layersAt(layers []script.Layer, t pvtime.SystemTime, content map[string]frameloader.Content, tolerance pvtime.Seconds, traceID string) []display.DisplayLayer {
	var out []display.DisplayLayer
	for _, ly := range layers {
		mt, ok := ly.Play(t)
		if !ok {
			continue
		}
		src, dst, ok := ly.Placement(t)
		if !ok {
			continue
		}
		c, ok := content[ly.File]
		if !ok {
			continue
		}
		img, ok := nearestFrame(c, mt, tolerance)
		if !ok {
			slog.Debug("scriptrunner: no frame near media time", "file", ly.File, "media_time", float64(mt), "trace_id", traceID)
			continue
		}
		out = append(out, display.DisplayLayer{Image: img, Src: src, Dst: dst})
	}
	return out
}

// nearestFrame linearly scans a loader's cached frames for the one at the
// nearest key <= mediaTime, accepting it only if within tolerance - the
// current frame is held until the next one is reached, never a frame
// decoded for a media time still ahead of the playhead. The frame maps
// loaders hold are small (bounded by the request window), so
// a linear scan here is simpler than maintaining a sorted index purely for
// this lookup.
func nearestFrame(c frameloader.Content, mediaTime pvtime.Seconds, tolerance pvtime.Seconds) (display.LoadedImage, bool) {
	var best display.LoadedImage
	bestDiff := pvtime.Seconds(math.Inf(1))
	found := false
	for k, img := range c.Frames {
		if k > mediaTime {
			continue
		}
		d := mediaTime - k
		if d < bestDiff {
			bestDiff, best, found = d, img, true
		}
	}
	if !found || bestDiff > tolerance {
		return display.LoadedImage{}, false
	}
	return best, true
}
