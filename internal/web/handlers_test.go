package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pihlerm/pipitrek/internal/guider"
)

type fakeGuiderAPI struct {
	cfg       guider.Config
	state     guider.State
	status    string
	guiding   bool
	removeAll bool
}

func (f *fakeGuiderAPI) Config() guider.Config { return f.cfg }
func (f *fakeGuiderAPI) SetConfig(cfg guider.Config) error {
	if cfg.GrayThreshold < 0 || cfg.GrayThreshold > 255 {
		return errBadConfig
	}
	f.cfg = cfg
	return nil
}
func (f *fakeGuiderAPI) State() guider.State { return f.state }
func (f *fakeGuiderAPI) LastStatus() string  { return f.status }
func (f *fakeGuiderAPI) SetGuiding(on bool)  { f.guiding = on }
func (f *fakeGuiderAPI) RemoveAll()          { f.removeAll = true }

var errBadConfig = &badConfigError{}

type badConfigError struct{}

func (e *badConfigError) Error() string { return "gray_threshold out of range" }

type fakeCalibAPI struct {
	called    bool
	backlash  bool
	failNext  bool
}

func (f *fakeCalibAPI) TriggerCalibration(withBacklash bool) error {
	if f.failNext {
		return errBadConfig
	}
	f.called = true
	f.backlash = withBacklash
	return nil
}

type fakeMountAPI struct {
	pec     []int
	getErr  error
	setErr  error
	lastSet []int
}

func (f *fakeMountAPI) GetPEC() ([]int, error) { return f.pec, f.getErr }
func (f *fakeMountAPI) SetPEC(values []int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.lastSet = values
	f.pec = values
	return nil
}

type fakeCameraAPI struct {
	captureErr error
	coords     int
	cleared    bool
}

func (f *fakeCameraAPI) CaptureHotPixelMask(darkFrames, threshold int) (int, error) {
	if f.captureErr != nil {
		return 0, f.captureErr
	}
	return f.coords, nil
}
func (f *fakeCameraAPI) ClearHotPixelMask() { f.cleared = true }

func newTestRouter(g *fakeGuiderAPI, c *fakeCalibAPI, rest ...any) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var mount MountAPI
	var cam CameraAPI
	for _, x := range rest {
		switch v := x.(type) {
		case MountAPI:
			mount = v
		case CameraAPI:
			cam = v
		}
	}
	NewHandlers(g, c, mount, cam).Register(r)
	return r
}

func TestHandlers_GetSettings(t *testing.T) {
	g := &fakeGuiderAPI{cfg: guider.Config{MaxDrift: 10, GrayThreshold: 128}}
	r := newTestRouter(g, &fakeCalibAPI{})

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got guider.Config
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.MaxDrift != 10 {
		t.Errorf("max_drift = %v, want 10", got.MaxDrift)
	}
}

func TestHandlers_PostSettings_RejectsOutOfRangeGrayThreshold(t *testing.T) {
	g := &fakeGuiderAPI{cfg: guider.Config{}}
	r := newTestRouter(g, &fakeCalibAPI{})

	body, _ := json.Marshal(map[string]any{"gray_threshold": 999})
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlers_PostSettings_RejectsOutOfRangeRotationAngle(t *testing.T) {
	g := &fakeGuiderAPI{cfg: guider.Config{}}
	r := newTestRouter(g, &fakeCalibAPI{})

	body, _ := json.Marshal(map[string]any{"rotation_angle": 400})
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlers_PostSettings_RejectsUnknownGuideMethod(t *testing.T) {
	g := &fakeGuiderAPI{cfg: guider.Config{}}
	r := newTestRouter(g, &fakeCalibAPI{})

	body, _ := json.Marshal(map[string]any{"guide_method": "NOPE"})
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlers_PostSettings_AppliesValidUpdate(t *testing.T) {
	g := &fakeGuiderAPI{cfg: guider.Config{MaxDrift: 1}}
	r := newTestRouter(g, &fakeCalibAPI{})

	body, _ := json.Marshal(map[string]any{"max_drift": 7.5, "guide_method": "PID"})
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if g.cfg.MaxDrift != 7.5 {
		t.Errorf("max_drift = %v, want 7.5", g.cfg.MaxDrift)
	}
	if g.cfg.Method != guider.MethodPID {
		t.Errorf("method = %v, want MethodPID", g.cfg.Method)
	}
}

func TestHandlers_GetStatus(t *testing.T) {
	g := &fakeGuiderAPI{state: guider.StateGuiding, status: "GUIDE ra=0.10\" dec=-0.05\""}
	r := newTestRouter(g, &fakeCalibAPI{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]string
	json.Unmarshal(w.Body.Bytes(), &got)
	if got["state"] != "GUIDING" {
		t.Errorf("state = %q, want GUIDING", got["state"])
	}
}

func TestHandlers_PostGuiding(t *testing.T) {
	g := &fakeGuiderAPI{}
	r := newTestRouter(g, &fakeCalibAPI{})

	body, _ := json.Marshal(map[string]any{"on": true})
	req := httptest.NewRequest(http.MethodPost, "/api/guiding", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !g.guiding {
		t.Errorf("expected guiding to be enabled")
	}
}

func TestHandlers_PostCalibrate_ConflictOnFailure(t *testing.T) {
	g := &fakeGuiderAPI{}
	c := &fakeCalibAPI{failNext: true}
	r := newTestRouter(g, c)

	req := httptest.NewRequest(http.MethodPost, "/api/calibrate", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestHandlers_PostCalibrate_Success(t *testing.T) {
	g := &fakeGuiderAPI{}
	c := &fakeCalibAPI{}
	r := newTestRouter(g, c)

	body, _ := json.Marshal(map[string]any{"backlash": true})
	req := httptest.NewRequest(http.MethodPost, "/api/calibrate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !c.called || !c.backlash {
		t.Errorf("expected calibration triggered with backlash=true")
	}
}

func TestHandlers_PostClearStars(t *testing.T) {
	g := &fakeGuiderAPI{}
	r := newTestRouter(g, &fakeCalibAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/stars/clear", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !g.removeAll {
		t.Errorf("expected RemoveAll to be called")
	}
}

func TestHandlers_GetPEC_NoMountWired(t *testing.T) {
	g := &fakeGuiderAPI{}
	r := newTestRouter(g, &fakeCalibAPI{})

	req := httptest.NewRequest(http.MethodGet, "/api/pec", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestHandlers_PEC_SetThenGetRoundTrip(t *testing.T) {
	g := &fakeGuiderAPI{}
	m := &fakeMountAPI{}
	r := newTestRouter(g, &fakeCalibAPI{}, m)

	values := []int{1, 2, 3, 4, 5, 6}
	body, _ := json.Marshal(map[string]any{"pec": values})
	req := httptest.NewRequest(http.MethodPost, "/api/pec", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("post status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pec", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	var got struct {
		PEC []int `json:"pec"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.PEC) != len(values) {
		t.Fatalf("pec = %v, want %v", got.PEC, values)
	}
	for i, v := range values {
		if got.PEC[i] != v {
			t.Errorf("pec[%d] = %d, want %d", i, got.PEC[i], v)
		}
	}
}

func TestHandlers_PostPEC_RejectsOddLength(t *testing.T) {
	g := &fakeGuiderAPI{}
	m := &fakeMountAPI{}
	r := newTestRouter(g, &fakeCalibAPI{}, m)

	body, _ := json.Marshal(map[string]any{"pec": []int{1, 2, 3}})
	req := httptest.NewRequest(http.MethodPost, "/api/pec", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlers_PostCaptureHotPixelMask_NoCameraWired(t *testing.T) {
	g := &fakeGuiderAPI{}
	r := newTestRouter(g, &fakeCalibAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/camera/hotpixel/capture", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestHandlers_PostCaptureHotPixelMask_Success(t *testing.T) {
	g := &fakeGuiderAPI{}
	cam := &fakeCameraAPI{coords: 7}
	r := newTestRouter(g, &fakeCalibAPI{}, cam)

	body, _ := json.Marshal(map[string]any{"dark_frames": 5, "threshold": 15})
	req := httptest.NewRequest(http.MethodPost, "/api/camera/hotpixel/capture", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got struct {
		HotPixels int `json:"hot_pixels"`
	}
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.HotPixels != 7 {
		t.Errorf("hot_pixels = %d, want 7", got.HotPixels)
	}
}

func TestHandlers_PostClearHotPixelMask(t *testing.T) {
	g := &fakeGuiderAPI{}
	cam := &fakeCameraAPI{}
	r := newTestRouter(g, &fakeCalibAPI{}, cam)

	req := httptest.NewRequest(http.MethodPost, "/api/camera/hotpixel/clear", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !cam.cleared {
		t.Errorf("expected ClearHotPixelMask to be called")
	}
}
