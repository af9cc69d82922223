package guider

import "testing"

func TestSetConfig_RejectsOutOfRangeGrayThreshold(t *testing.T) {
	g := New(&scriptedFinder{}, NewGuideOutput(4, 0, 0, 0), nil, nil, baseConfig(), nil)
	cfg := baseConfig()
	cfg.GrayThreshold = 300
	if err := g.SetConfig(cfg); err == nil {
		t.Fatalf("expected SetConfig to reject gray_threshold=300")
	}
	if g.Config().GrayThreshold == 300 {
		t.Errorf("rejected config must not mutate state")
	}
}

func TestSetConfig_RejectsOutOfRangeRotationAngle(t *testing.T) {
	g := New(&scriptedFinder{}, NewGuideOutput(4, 0, 0, 0), nil, nil, baseConfig(), nil)
	cfg := baseConfig()
	cfg.RotationAngle = 200
	if err := g.SetConfig(cfg); err == nil {
		t.Fatalf("expected SetConfig to reject rotation_angle=200")
	}
}

func TestSetConfig_AcceptsValidConfig(t *testing.T) {
	g := New(&scriptedFinder{}, NewGuideOutput(4, 0, 0, 0), nil, nil, baseConfig(), nil)
	cfg := baseConfig()
	cfg.RotationAngle = 45
	if err := g.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig rejected a valid config: %v", err)
	}
	if g.Config().RotationAngle != 45 {
		t.Errorf("rotation angle = %v, want 45", g.Config().RotationAngle)
	}
}
