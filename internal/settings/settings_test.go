package settings

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "settings.json"), filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Guider.GrayThreshold != 150 {
		t.Errorf("expected default gray_threshold 150, got %d", s.Guider.GrayThreshold)
	}
	if s.Camera.IntegrateFrames != 10 {
		t.Errorf("expected default integrate_frames 10, got %d", s.Camera.IntegrateFrames)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	s := Default(filepath.Join(dir, "images"))
	s.Guider.PixelScale = 3.6
	s.Guider.PID["ra"] = PIDSettings{P: 2.5, I: 0.6, D: 0.4}
	s.Guider.PID["dec"] = PIDSettings{P: 1.5, I: 0.3, D: 0.2}

	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Guider.PixelScale != 3.6 {
		t.Errorf("expected pixel_scale 3.6, got %v", loaded.Guider.PixelScale)
	}
	if loaded.Guider.PID["ra"] != (PIDSettings{P: 2.5, I: 0.6, D: 0.4}) {
		t.Errorf("ra pid did not round-trip: %+v", loaded.Guider.PID["ra"])
	}
	if loaded.Guider.PID["dec"] != (PIDSettings{P: 1.5, I: 0.3, D: 0.2}) {
		t.Errorf("dec pid did not round-trip (ra/dec cross-contamination?): %+v", loaded.Guider.PID["dec"])
	}
}
