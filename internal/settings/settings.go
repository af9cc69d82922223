// Package settings implements the typed JSON persistence described in §4.7:
// a mapping of guider/camera/mount state that the core consumes at startup
// and is updated from on shutdown, with documented defaults for any missing
// key.
//
// Grounded on settings.py's Settings class (update_*_settings /
// set_*_settings / load_settings / save_settings), translated from a loose
// dict into a typed struct. The JSON codec is github.com/goccy/go-json,
// a drop-in for encoding/json with the same Marshal/Unmarshal surface.
//
// One bug in the original is deliberately not reproduced: settings.py's
// update_autoguider_settings copies ra_pid's gains into the "dec" key
// instead of dec_pid's; here each axis persists its own gains (PIDSettings
// for "ra" and "dec" are separate map entries, saved and loaded
// independently).
package settings

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// PIDSettings is one axis's PID gains.
type PIDSettings struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

// GuiderSettings mirrors GuideConfig + RotationModel + PIDState (§3).
type GuiderSettings struct {
	MaxDrift       float64                `json:"max_drift"`
	StarSize       int                    `json:"star_size"`
	GrayThreshold  int                    `json:"gray_threshold"`
	RotationAngle  float64                `json:"rotation_angle"`
	PixelScale     float64                `json:"pixel_scale"`
	GuideInterval  float64                `json:"guide_interval"`
	GuidePulse     float64                `json:"guide_pulse"`
	MaxDistance    float64                `json:"max_distance"`
	GuideMethod    string                 `json:"guide_method"`
	DecGuiding     bool                   `json:"dec_guiding"`
	BacklashRA     float64                `json:"backlash_ra"`
	BacklashDEC    float64                `json:"backlash_dec"`
	PID            map[string]PIDSettings `json:"pid"`
}

// DefaultGuiderSettings documents the fallback values from autoguider.py /
// settings.py's set_autoguider_settings defaults.
func DefaultGuiderSettings() GuiderSettings {
	return GuiderSettings{
		MaxDrift:      5.0,
		StarSize:      10,
		GrayThreshold: 150,
		RotationAngle: 0.0,
		PixelScale:    3.5,
		GuideInterval: 1.0,
		GuidePulse:    0.4,
		MaxDistance:   10,
		GuideMethod:   "PID",
		DecGuiding:    false,
		PID: map[string]PIDSettings{
			"ra":  {P: 2.0, I: 0.5, D: 0.5},
			"dec": {P: 2.0, I: 0.5, D: 0.5},
		},
	}
}

// CameraSettings mirrors the Camera Source's persisted geometry/controls.
type CameraSettings struct {
	IntegrateFrames int             `json:"integrate_frames"`
	RChannel        float64         `json:"r_channel"`
	GChannel        float64         `json:"g_channel"`
	BChannel        float64         `json:"b_channel"`
	CamFPS          float64         `json:"cam_fps"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	CamMode         string          `json:"cam_mode"`
	CameraControls  map[string]int  `json:"camera_controls"`
	CameraColor     bool            `json:"camera_color"`
	HotPixelMaskPath string         `json:"hot_pixel_mask_path"`
}

// DefaultCameraSettings documents set_camera_settings' fallback values.
func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		IntegrateFrames: 10,
		RChannel:        1.0,
		GChannel:        1.0,
		BChannel:        1.0,
		CamFPS:          30.0,
		Width:           1280,
		Height:          720,
		CamMode:         "MJPG",
		CameraControls:  map[string]int{},
		CameraColor:     true,
		HotPixelMaskPath: "",
	}
}

// MountSettings is a verbatim snapshot of the mount's scope_info.
type MountSettings struct {
	RA         string `json:"ra"`
	DEC        string `json:"dec"`
	Pier       string `json:"pier"`
	PECPos     int    `json:"pec_pos"`
	Tracking   bool   `json:"tracking"`
	BacklashRA int    `json:"backlash_ra"`
	BacklashDEC int   `json:"backlash_dec"`
}

// Settings is the full persisted document.
type Settings struct {
	Guider    GuiderSettings  `json:"guider"`
	Camera    CameraSettings  `json:"camera"`
	Mount     MountSettings   `json:"mount"`
	OutputDir string          `json:"output_dir"`
}

// Default returns a Settings populated entirely with documented defaults,
// used when no settings file exists yet.
func Default(outputDir string) Settings {
	if outputDir == "" {
		outputDir = "/root/astro/images"
	}
	return Settings{
		Guider:    DefaultGuiderSettings(),
		Camera:    DefaultCameraSettings(),
		OutputDir: outputDir,
	}
}

// Load reads the settings file at path. A missing file is not an error; it
// yields Default(outputDir).
func Load(path, outputDir string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(outputDir), nil
		}
		return Settings{}, fmt.Errorf("reading settings %s: %w", path, err)
	}

	s := Default(outputDir)
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if s.OutputDir == "" {
		s.OutputDir = outputDir
	}
	if err := os.MkdirAll(s.OutputDir, 0755); err != nil {
		return Settings{}, fmt.Errorf("creating output dir %s: %w", s.OutputDir, err)
	}
	return s, nil
}

// Save writes the settings file atomically enough for a single-process
// daemon: marshal, then write in place (matching save_settings' json.dump).
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing settings %s: %w", path, err)
	}
	return nil
}
