package mediadecoder

import (
	"fmt"
	"sync"

	"github.com/e7canasta/pivid/internal/display"
)

// MockConfig parameterizes a deterministic, synthetic Decoder used by this
// repository's own tests (spec.md §8's literal end-to-end scenarios name
// exactly this shape: "keyframes every 1.0 s, 30 fps, duration 10 s").
type MockConfig struct {
	Duration         float64 // seconds; 0 means unbounded (no EOF)
	FrameRate        float64 // frames per second
	KeyframeInterval float64 // seconds between keyframes; 0 means every frame is a keyframe
	Width, Height    int

	// StutterEvery, if > 0, makes every Nth pull return (nil, nil) - the
	// decoder "waiting on I/O" case from spec.md §6.
	StutterEvery int
}

// Mock is a deterministic mediadecoder.Decoder: it synthesizes frames at a
// fixed cadence from MockConfig, advancing a cursor on each successful
// pull and snapping to the nearest prior keyframe on Seek. It never reads
// real media; it exists to drive internal/frameloader's scenario tests
// without a real codec, per spec.md §9's dependency-injection note.
type Mock struct {
	cfg MockConfig

	mu        sync.Mutex
	cursor    float64
	eof       bool
	seekCount int
	pullCount int
	closed    bool

	seekErr    error
	injectErr  error // returned once, then cleared
	injectedAt float64
}

// NewMock creates a Mock decoder with the given configuration.
func NewMock(cfg MockConfig) *Mock {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &Mock{cfg: cfg}
}

// Info implements Decoder.
func (m *Mock) Info() Info {
	info := Info{
		Container:   "mock",
		Codec:       "mock",
		PixelFormat: string(display.FormatRGBA),
		FrameRate:   &m.cfg.FrameRate,
	}
	if m.cfg.Width > 0 {
		info.Width = &m.cfg.Width
	}
	if m.cfg.Height > 0 {
		info.Height = &m.cfg.Height
	}
	if m.cfg.Duration > 0 {
		d := m.cfg.Duration
		info.Duration = &d
	}
	return info
}

// Seek implements Decoder: it snaps to the nearest keyframe at or before t.
func (m *Mock) Seek(t float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seekErr != nil {
		return m.seekErr
	}
	if t < 0 {
		t = 0
	}

	m.seekCount++
	if m.cfg.KeyframeInterval > 0 {
		m.cursor = float64(int(t/m.cfg.KeyframeInterval)) * m.cfg.KeyframeInterval
	} else {
		m.cursor = t
	}
	m.eof = false
	return nil
}

// GetFrameIfReady implements Decoder.
func (m *Mock) GetFrameIfReady() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.injectErr != nil {
		err := m.injectErr
		m.injectErr = nil
		return nil, err
	}

	if m.cfg.Duration > 0 && m.cursor >= m.cfg.Duration {
		m.eof = true
		return nil, nil
	}

	m.pullCount++
	if m.cfg.StutterEvery > 0 && m.pullCount%m.cfg.StutterEvery == 0 {
		return nil, nil
	}

	isKey := m.cfg.KeyframeInterval <= 0
	if m.cfg.KeyframeInterval > 0 {
		frac := m.cursor / m.cfg.KeyframeInterval
		isKey = frac == float64(int(frac))
	}

	data := make([]byte, 4)
	buf := display.NewImageBuffer(m.cfg.Width, m.cfg.Height, display.FormatRGBA, []int{4}, [][]byte{data}, nil)

	frame := &Frame{
		MediaTime:  m.cursor,
		Layers:     []display.ImageBuffer{buf},
		FrameType:  "mock",
		IsKeyFrame: isKey,
	}

	m.cursor += 1.0 / m.cfg.FrameRate
	return frame, nil
}

// ReachedEOF implements Decoder.
func (m *Mock) ReachedEOF() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eof
}

// Close implements Decoder.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// InjectDecodeError arranges for the next GetFrameIfReady call to return
// err instead of a frame. Used by tests exercising spec.md §4.2.4's
// terminal-error freeze behavior.
func (m *Mock) InjectDecodeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injectErr = err
}

// FailSeeksWith makes every subsequent Seek call return err.
func (m *Mock) FailSeeksWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekErr = err
}

// SeekCount returns how many times Seek has been called, for assertions
// that a given request transition did or did not trigger a seek.
func (m *Mock) SeekCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seekCount
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OpenMock adapts NewMock into an OpenFunc for a fixed configuration,
// ignoring the filename - convenient for tests that only need one decoder
// shape across every file the loader pool might open.
func OpenMock(cfg MockConfig) OpenFunc {
	return func(filename string) (Decoder, error) {
		if filename == "" {
			return nil, fmt.Errorf("mediadecoder: empty filename")
		}
		return NewMock(cfg), nil
	}
}
