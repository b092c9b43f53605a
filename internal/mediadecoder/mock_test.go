package mediadecoder

import (
	"errors"
	"testing"
)

func TestMockProducesFramesAtFrameRate(t *testing.T) {
	m := NewMock(MockConfig{Duration: 1.0, FrameRate: 30, KeyframeInterval: 1.0, Width: 4, Height: 4})

	count := 0
	var lastTime float64 = -1
	for {
		f, err := m.GetFrameIfReady()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f == nil {
			break
		}
		if f.MediaTime <= lastTime {
			t.Fatalf("frames out of order: %v after %v", f.MediaTime, lastTime)
		}
		lastTime = f.MediaTime
		count++
	}

	if !m.ReachedEOF() {
		t.Fatal("expected EOF after exhausting duration")
	}
	if count < 29 || count > 31 {
		t.Fatalf("got %d frames, want ~30", count)
	}
}

func TestMockSeekSnapsToKeyframe(t *testing.T) {
	m := NewMock(MockConfig{Duration: 10, FrameRate: 30, KeyframeInterval: 1.0})

	if err := m.Seek(3.7); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	f, err := m.GetFrameIfReady()
	if err != nil || f == nil {
		t.Fatalf("GetFrameIfReady after seek: %v, %v", f, err)
	}
	if f.MediaTime != 3.0 {
		t.Errorf("expected snap to keyframe at 3.0, got %v", f.MediaTime)
	}
	if !f.IsKeyFrame {
		t.Error("expected first frame after seek to be a keyframe")
	}
	if m.SeekCount() != 1 {
		t.Errorf("SeekCount() = %d, want 1", m.SeekCount())
	}
}

func TestMockStutterReturnsNilNil(t *testing.T) {
	m := NewMock(MockConfig{Duration: 10, FrameRate: 30, StutterEvery: 2})

	f1, err1 := m.GetFrameIfReady()
	if err1 != nil || f1 == nil {
		t.Fatalf("first pull should succeed: %v %v", f1, err1)
	}
	f2, err2 := m.GetFrameIfReady()
	if err2 != nil || f2 != nil {
		t.Fatalf("second pull should stutter (nil, nil): %v %v", f2, err2)
	}
}

func TestMockInjectDecodeError(t *testing.T) {
	m := NewMock(MockConfig{Duration: 10, FrameRate: 30})
	wantErr := errors.New("boom")
	m.InjectDecodeError(wantErr)

	_, err := m.GetFrameIfReady()
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected injected error, got %v", err)
	}

	// Error is consumed; subsequent pulls succeed again.
	f, err := m.GetFrameIfReady()
	if err != nil || f == nil {
		t.Fatalf("expected normal pull after injected error consumed: %v %v", f, err)
	}
}

func TestMockFailSeeksWith(t *testing.T) {
	m := NewMock(MockConfig{Duration: 10, FrameRate: 30})
	wantErr := errors.New("seek broken")
	m.FailSeeksWith(wantErr)

	if err := m.Seek(5); !errors.Is(err, wantErr) {
		t.Fatalf("expected seek error, got %v", err)
	}
}

func TestOpenMockRejectsEmptyFilename(t *testing.T) {
	open := OpenMock(MockConfig{Duration: 1, FrameRate: 30})
	if _, err := open(""); err == nil {
		t.Fatal("expected error for empty filename")
	}
}
