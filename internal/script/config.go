package script

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/pvtime"
)

// Config is the YAML-decoded shape of a script, mirroring
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/config/config.go's
// Load/Validate split: a plain struct decoded with yaml.v3, then checked
// and defaulted by Validate before use.
type Config struct {
	Screens []ScreenConfig `yaml:"screens"`
}

// ScreenConfig is one display output's declarative configuration.
type ScreenConfig struct {
	Connector string        `yaml:"connector"`
	Mode      ModeConfig    `yaml:"mode"`
	Layers    []LayerConfig `yaml:"layers"`
}

// ModeConfig is the YAML shape of display.Mode.
type ModeConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	RefreshHz float64 `yaml:"refresh_hz"`
}

// LayerConfig is one layer's declarative configuration: a source file plus
// its play and placement keyframe tracks, expressed relative to the
// script's activation time.
type LayerConfig struct {
	File      string                  `yaml:"file"`
	Loop      bool                    `yaml:"loop"`
	Play      []KeyframeConfig        `yaml:"play"`
	Placement []PlacementKeyframeConfig `yaml:"placement"`
}

// KeyframeConfig is one point of a LayerConfig's play track.
type KeyframeConfig struct {
	AtS    float64 `yaml:"at_s"`
	MediaS float64 `yaml:"media_s"`
}

// PlacementKeyframeConfig is one point of a LayerConfig's placement track.
type PlacementKeyframeConfig struct {
	AtS float64    `yaml:"at_s"`
	Src RectConfig `yaml:"src"`
	Dst RectConfig `yaml:"dst"`
}

// RectConfig is the YAML shape shared by both the (real-valued) source
// rect and the (rounded-to-int on build) destination rect.
type RectConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// LoadConfig reads and parses a script YAML file, then validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("script: parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("script: invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks a Config for correctness, applying defaults for fields
// left unset the way _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/config/validator.go
// defaults buffer sizes and MQTT topics.
func Validate(cfg *Config) error {
	if len(cfg.Screens) == 0 {
		return fmt.Errorf("at least one screen is required")
	}
	seen := make(map[string]bool, len(cfg.Screens))
	for i := range cfg.Screens {
		sc := &cfg.Screens[i]
		if sc.Connector == "" {
			return fmt.Errorf("screen %d: connector is required", i)
		}
		if seen[sc.Connector] {
			return fmt.Errorf("screen %d: duplicate connector %q", i, sc.Connector)
		}
		seen[sc.Connector] = true

		if sc.Mode.Width <= 0 || sc.Mode.Height <= 0 {
			return fmt.Errorf("screen %q: mode width/height must be > 0", sc.Connector)
		}
		if sc.Mode.RefreshHz <= 0 {
			sc.Mode.RefreshHz = 60
		}

		if len(sc.Layers) == 0 {
			return fmt.Errorf("screen %q: at least one layer is required", sc.Connector)
		}
		for j := range sc.Layers {
			ly := &sc.Layers[j]
			if ly.File == "" {
				return fmt.Errorf("screen %q, layer %d: file is required", sc.Connector, j)
			}
			if len(ly.Play) == 0 {
				return fmt.Errorf("screen %q, layer %d (%s): at least one play keyframe is required", sc.Connector, j, ly.File)
			}
			if err := checkAscending(ly.Play); err != nil {
				return fmt.Errorf("screen %q, layer %d (%s): play track: %w", sc.Connector, j, ly.File, err)
			}
			if err := checkPlacementAscending(ly.Placement); err != nil {
				return fmt.Errorf("screen %q, layer %d (%s): placement track: %w", sc.Connector, j, ly.File, err)
			}
		}
	}
	return nil
}

func checkAscending(kfs []KeyframeConfig) error {
	for i := 1; i < len(kfs); i++ {
		if kfs[i].AtS < kfs[i-1].AtS {
			return fmt.Errorf("keyframe %d at_s=%v precedes keyframe %d at_s=%v", i, kfs[i].AtS, i-1, kfs[i-1].AtS)
		}
	}
	return nil
}

func checkPlacementAscending(kfs []PlacementKeyframeConfig) error {
	for i := 1; i < len(kfs); i++ {
		if kfs[i].AtS < kfs[i-1].AtS {
			return fmt.Errorf("keyframe %d at_s=%v precedes keyframe %d at_s=%v", i, kfs[i].AtS, i-1, kfs[i-1].AtS)
		}
	}
	return nil
}

// Build converts a validated Config into a live Script, anchoring every
// layer's play/placement tracks at activatedAt - the system time the
// script was applied, against which every keyframe's at_s is relative.
func Build(cfg *Config, activatedAt pvtime.SystemTime) *Script {
	screens := make([]Screen, len(cfg.Screens))
	for i, sc := range cfg.Screens {
		layers := make([]Layer, len(sc.Layers))
		for j, ly := range sc.Layers {
			playTrack := make(PlayTrack, len(ly.Play))
			for k, kf := range ly.Play {
				playTrack[k] = Keyframe{At: pvtime.Seconds(kf.AtS), Value: pvtime.Seconds(kf.MediaS)}
			}

			var placementTrack PlacementTrack
			if len(ly.Placement) > 0 {
				placementTrack = make(PlacementTrack, len(ly.Placement))
				for k, kf := range ly.Placement {
					placementTrack[k] = PlacementKeyframe{
						At:  pvtime.Seconds(kf.AtS),
						Src: display.Rect{X: kf.Src.X, Y: kf.Src.Y, W: kf.Src.W, H: kf.Src.H},
						Dst: display.IntRect{X: int(math.Round(kf.Dst.X)), Y: int(math.Round(kf.Dst.Y)), W: int(math.Round(kf.Dst.W)), H: int(math.Round(kf.Dst.H))},
					}
				}
			} else {
				// No explicit placement track: default to a full-screen
				// fit for the screen's mode, active from the moment the
				// layer starts playing.
				placementTrack = PlacementTrack{{
					At:  playTrack[0].At,
					Src: display.Rect{X: 0, Y: 0, W: 1, H: 1},
					Dst: display.IntRect{X: 0, Y: 0, W: sc.Mode.Width, H: sc.Mode.Height},
				}}
			}

			loop := ly.Loop
			layers[j] = Layer{
				File:      ly.File,
				Play:      playFunc(activatedAt, playTrack, loop),
				Placement: placementFunc(activatedAt, placementTrack),
			}
		}

		screens[i] = Screen{
			Connector: sc.Connector,
			Mode:      display.Mode{Width: sc.Mode.Width, Height: sc.Mode.Height, RefreshHz: sc.Mode.RefreshHz},
			Layers:    layers,
		}
	}
	return New(screens)
}

// FromYAML loads, validates, and builds a script in one step.
func FromYAML(path string, activatedAt pvtime.SystemTime) (*Script, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return Build(cfg, activatedAt), nil
}

func playFunc(activatedAt pvtime.SystemTime, track PlayTrack, loop bool) PlayFunc {
	return func(now pvtime.SystemTime) (pvtime.Seconds, bool) {
		return track.Sample(now-activatedAt, loop)
	}
}

func placementFunc(activatedAt pvtime.SystemTime, track PlacementTrack) PlacementFunc {
	return func(now pvtime.SystemTime) (display.Rect, display.IntRect, bool) {
		return track.Sample(now - activatedAt)
	}
}
