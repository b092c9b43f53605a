package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
)

func TestPlayTrackInterpolatesLinearly(t *testing.T) {
	trk := PlayTrack{{At: 0, Value: 0}, {At: 2, Value: 2}}

	v, ok := trk.Sample(1, false)
	if !ok || v != 1 {
		t.Fatalf("Sample(1) = (%v, %v), want (1, true)", v, ok)
	}
}

func TestPlayTrackBeforeFirstKeyframe(t *testing.T) {
	trk := PlayTrack{{At: 5, Value: 0}}
	if _, ok := trk.Sample(1, false); ok {
		t.Fatal("expected ok=false before first keyframe")
	}
}

func TestPlayTrackHoldsAfterLastWithoutLoop(t *testing.T) {
	trk := PlayTrack{{At: 0, Value: 0}, {At: 1, Value: 1}}
	v, ok := trk.Sample(10, false)
	if !ok || v != 1 {
		t.Fatalf("Sample(10) = (%v, %v), want (1, true)", v, ok)
	}
}

func TestPlayTrackLoops(t *testing.T) {
	trk := PlayTrack{{At: 0, Value: 0}, {At: 2, Value: 2}}
	v, ok := trk.Sample(5, true) // 5 mod 2 = 1
	if !ok || v != 1 {
		t.Fatalf("Sample(5, loop) = (%v, %v), want (1, true)", v, ok)
	}
}

func TestPlacementTrackInterpolatesAndHolds(t *testing.T) {
	trk := PlacementTrack{
		{At: 0, Dst: display.IntRect{X: 0, Y: 0, W: 100, H: 100}},
		{At: 2, Dst: display.IntRect{X: 100, Y: 0, W: 100, H: 100}},
	}

	_, dst, ok := trk.Sample(1)
	if !ok || dst.X != 50 {
		t.Fatalf("Sample(1).Dst.X = %v, want 50", dst.X)
	}

	_, dst, ok = trk.Sample(100)
	if !ok || dst.X != 100 {
		t.Fatalf("Sample(100).Dst.X = %v, want 100 (held)", dst.X)
	}
}

func TestBuildFromConfig(t *testing.T) {
	cfg := &Config{
		Screens: []ScreenConfig{{
			Connector: "HDMI-A-1",
			Mode:      ModeConfig{Width: 1920, Height: 1080},
			Layers: []LayerConfig{{
				File: "clip.mp4",
				Play: []KeyframeConfig{{AtS: 0, MediaS: 0}, {AtS: 10, MediaS: 10}},
			}},
		}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	activated := pvtime.SystemTime(100)
	s := Build(cfg, activated)

	screens := s.Screens()
	if len(screens) != 1 || len(screens[0].Layers) != 1 {
		t.Fatalf("unexpected shape: %+v", screens)
	}
	layer := screens[0].Layers[0]

	mt, ok := layer.Play(pvtime.SystemTime(105))
	if !ok || mt != 5 {
		t.Fatalf("Play(105) = (%v, %v), want (5, true)", mt, ok)
	}

	// No explicit placement track: defaults to full-screen from the
	// moment the layer starts playing.
	_, dst, ok := layer.Placement(pvtime.SystemTime(105))
	if !ok || dst.W != 1920 || dst.H != 1080 {
		t.Fatalf("default placement = %+v, ok=%v", dst, ok)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []*Config{
		{},
		{Screens: []ScreenConfig{{Mode: ModeConfig{Width: 1, Height: 1}, Layers: []LayerConfig{{File: "a"}}}}},
		{Screens: []ScreenConfig{{Connector: "x", Layers: []LayerConfig{{File: "a"}}}}},
		{Screens: []ScreenConfig{{Connector: "x", Mode: ModeConfig{Width: 1, Height: 1}}}},
	}
	for i, cfg := range cases {
		if err := Validate(cfg); err == nil {
			t.Errorf("case %d: expected validation error, got nil", i)
		}
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.yaml")
	yamlContent := `
screens:
  - connector: HDMI-A-1
    mode:
      width: 1920
      height: 1080
      refresh_hz: 60
    layers:
      - file: clip.mp4
        play:
          - at_s: 0
            media_s: 0
          - at_s: 10
            media_s: 10
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	s, err := FromYAML(path, pvtime.SystemTime(0))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if len(s.Screens()) != 1 {
		t.Fatalf("expected 1 screen, got %d", len(s.Screens()))
	}
}
