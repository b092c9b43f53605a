package frameloader

import (
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/intervalset"
	"github.com/e7canasta/pivid/internal/mediadecoder"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond
	return cfg
}

func reqOf(lo, hi float64) intervalset.Set[pvtime.Seconds] {
	return intervalset.New(intervalset.Interval[pvtime.Seconds]{Lo: pvtime.Seconds(lo), Hi: pvtime.Seconds(hi)})
}

func waitForCover(t *testing.T, l *Loader, lo, hi float64, timeout time.Duration) Content {
	t.Helper()
	want := reqOf(lo, hi)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c := l.Content()
		if c.Err != nil {
			t.Fatalf("loader error while waiting for cover: %v", c.Err)
		}
		if want.Difference(c.Cover).IsEmpty() {
			return c
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for cover [%v,%v); last cover: %v", lo, hi, l.Content().Cover)
	return Content{}
}

func newTestLoader(cfg mediadecoder.MockConfig) (*Loader, *unixsystem.Signal) {
	driver := display.NewSoftwareDriver()
	open := mediadecoder.OpenMock(cfg)
	notify := unixsystem.NewSignal()
	l := New("clip.mp4", driver, open, testConfig())
	l.SetRequest(intervalset.Set[pvtime.Seconds]{}, notify)
	return l, notify
}

func TestLoaderSingleClipCoversRequest(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 5, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	defer l.Close()

	l.SetRequest(reqOf(0, 2), notify)
	c := waitForCover(t, l, 0, 1.9, time.Second)
	if len(c.Frames) == 0 {
		t.Fatal("expected cached frames after covering request")
	}
}

func TestLoaderSlideForwardReusesFrames(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 10, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	defer l.Close()

	l.SetRequest(reqOf(0, 2), notify)
	waitForCover(t, l, 0, 1.9, time.Second)

	mock := mustMock(t, l)
	seeksBefore := mock.SeekCount()

	// Sliding the window forward while overlapping the old one should not
	// require a fresh seek back to zero; the tail end just keeps decoding.
	l.SetRequest(reqOf(1, 3), notify)
	waitForCover(t, l, 1, 2.9, time.Second)

	if mock.SeekCount() != seeksBefore {
		t.Errorf("slide forward triggered an extra seek: before=%d after=%d", seeksBefore, mock.SeekCount())
	}
}

func TestLoaderSeekBackwardReseeksDecoder(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 10, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	defer l.Close()

	l.SetRequest(reqOf(5, 7), notify)
	waitForCover(t, l, 5, 6.9, time.Second)

	mock := mustMock(t, l)
	seeksBefore := mock.SeekCount()

	l.SetRequest(reqOf(0, 1), notify)
	waitForCover(t, l, 0, 0.9, time.Second)

	if mock.SeekCount() <= seeksBefore {
		t.Errorf("seeking backward should issue a new seek: before=%d after=%d", seeksBefore, mock.SeekCount())
	}
}

func TestLoaderEvictsFramesOutsideRequest(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 10, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	defer l.Close()

	l.SetRequest(reqOf(0, 2), notify)
	waitForCover(t, l, 0, 1.9, time.Second)

	l.SetRequest(reqOf(5, 6), notify)
	waitForCover(t, l, 5, 5.9, time.Second)

	c := l.Content()
	for tm := range c.Frames {
		if tm < 5 || tm >= 6 {
			t.Errorf("frame at %v survived eviction outside [5,6)", tm)
		}
	}
}

func TestLoaderDiscoversEOF(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 1, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	defer l.Close()

	l.SetRequest(reqOf(0, 5), notify)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c := l.Content(); c.EOF != nil {
			if *c.EOF > 1.1 {
				t.Errorf("EOF reported at %v, want near 1.0", *c.EOF)
			}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("loader never discovered EOF")
}

func TestLoaderFreezesOnTerminalDecodeError(t *testing.T) {
	driver := display.NewSoftwareDriver()
	mock := mediadecoder.NewMock(mediadecoder.MockConfig{Duration: 10, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	wantErr := errors.New("boom")
	mock.InjectDecodeError(wantErr)

	open := func(string) (mediadecoder.Decoder, error) { return mock, nil }
	notify := unixsystem.NewSignal()
	l := New("clip.mp4", driver, open, testConfig())
	defer l.Close()

	l.SetRequest(reqOf(0, 1), notify)

	if !notify.WaitFor(time.Second) {
		t.Fatal("expected notify on freeze")
	}
	c := l.Content()
	if c.Err == nil {
		t.Fatal("expected loader to surface a terminal error")
	}

	// A SetRequest after freezing must not panic or deadlock; it is
	// accepted as a no-op.
	l.SetRequest(reqOf(2, 3), notify)
	time.Sleep(10 * time.Millisecond)
	if c2 := l.Content(); c2.Err == nil {
		t.Fatal("loader should remain frozen after SetRequest")
	}
}

func TestLoaderClosedReleasesFrames(t *testing.T) {
	l, notify := newTestLoader(mediadecoder.MockConfig{Duration: 5, FrameRate: 30, KeyframeInterval: 1, Width: 4, Height: 4})
	l.SetRequest(reqOf(0, 2), notify)
	waitForCover(t, l, 0, 1.9, time.Second)

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c := l.Content()
	if len(c.Frames) != 0 {
		t.Errorf("expected no frames retained in loader bookkeeping after Close, got %d", len(c.Frames))
	}
}

// mustMock reaches into the loader's decoder once it has been opened by the
// worker, retrying briefly since opening happens asynchronously.
func mustMock(t *testing.T, l *Loader) *mediadecoder.Mock {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		dec := l.decoder
		l.mu.Unlock()
		if m, ok := dec.(*mediadecoder.Mock); ok {
			return m
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("decoder never opened")
	return nil
}
