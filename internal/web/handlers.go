package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pihlerm/pipitrek/internal/guider"
)

// GuiderAPI is the subset of Guider the REST surface drives. Grounded on
// darkdragonsastro-draco-simulator's MountHandlers: thin handlers that
// validate, delegate to the domain object, and translate its errors to
// HTTP status codes.
type GuiderAPI interface {
	Config() guider.Config
	SetConfig(cfg guider.Config) error
	State() guider.State
	LastStatus() string
	SetGuiding(on bool)
	RemoveAll()
}

// CalibrationAPI triggers the calibration procedure (§4.5) from the
// external surface's request thread.
type CalibrationAPI interface {
	TriggerCalibration(withBacklash bool) error
}

// MountAPI is the subset of the mount bridge the REST surface exposes
// for PEC table maintenance (§4.6, §8's PEC get/set round-trip).
type MountAPI interface {
	GetPEC() ([]int, error)
	SetPEC(values []int) error
}

// CameraAPI is the subset of the Camera Source the REST surface exposes
// for hot-pixel mask maintenance (§4.1's capture/load/clear_hot_pixel_mask).
type CameraAPI interface {
	CaptureHotPixelMask(darkFrames, threshold int) (coords int, err error)
	ClearHotPixelMask()
}

type guideConfigRequest struct {
	MaxDrift      *float64 `json:"max_drift"`
	StarSize      *float64 `json:"star_size"`
	GrayThreshold *int     `json:"gray_threshold"`
	RotationAngle *float64 `json:"rotation_angle"`
	PixelScale    *float64 `json:"pixel_scale"`
	GuideInterval *float64 `json:"guide_interval"`
	GuidePulse    *float64 `json:"guide_pulse"`
	MaxDistance   *float64 `json:"max_distance"`
	GuideMethod   *string  `json:"guide_method"`
	DecGuiding    *bool    `json:"dec_guiding"`
}

// Handlers wires GuiderAPI/CalibrationAPI/MountAPI/CameraAPI into gin
// routes.
type Handlers struct {
	guider GuiderAPI
	calib  CalibrationAPI
	mount  MountAPI
	camera CameraAPI
}

// NewHandlers builds Handlers over the given guider, calibration, mount,
// and camera seams. mount/camera may be nil if that surface isn't wired
// (e.g. tests exercising only the guider routes).
func NewHandlers(g GuiderAPI, c CalibrationAPI, m MountAPI, cam CameraAPI) *Handlers {
	return &Handlers{guider: g, calib: c, mount: m, camera: cam}
}

// Register attaches all routes to the gin engine.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/api/settings", h.getSettings)
	r.POST("/api/settings", h.postSettings)
	r.GET("/api/status", h.getStatus)
	r.POST("/api/guiding", h.postGuiding)
	r.POST("/api/calibrate", h.postCalibrate)
	r.POST("/api/stars/clear", h.postClearStars)
	r.GET("/api/pec", h.getPEC)
	r.POST("/api/pec", h.postPEC)
	r.POST("/api/camera/hotpixel/capture", h.postCaptureHotPixelMask)
	r.POST("/api/camera/hotpixel/clear", h.postClearHotPixelMask)
}

func (h *Handlers) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.guider.Config())
}

func (h *Handlers) postSettings(c *gin.Context) {
	var req guideConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.guider.Config()
	if req.GrayThreshold != nil {
		if *req.GrayThreshold < 0 || *req.GrayThreshold > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "gray_threshold must be in [0,255]"})
			return
		}
		cfg.GrayThreshold = *req.GrayThreshold
	}
	if req.RotationAngle != nil {
		if *req.RotationAngle < -180 || *req.RotationAngle > 180 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rotation_angle must be in [-180,180]"})
			return
		}
		cfg.RotationAngle = *req.RotationAngle
	}
	if req.MaxDrift != nil {
		cfg.MaxDrift = *req.MaxDrift
	}
	if req.StarSize != nil {
		cfg.StarSize = *req.StarSize
	}
	if req.PixelScale != nil {
		cfg.PixelScale = *req.PixelScale
	}
	if req.GuidePulse != nil {
		cfg.GuidePulse = *req.GuidePulse
	}
	if req.MaxDistance != nil {
		cfg.MaxDistance = *req.MaxDistance
	}
	if req.DecGuiding != nil {
		cfg.DecGuiding = *req.DecGuiding
	}
	if req.GuideMethod != nil {
		switch *req.GuideMethod {
		case "PULSE", "SPEED", "PID":
			cfg.Method = guider.ParseMethod(*req.GuideMethod)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "guide_method must be PULSE, SPEED, or PID"})
			return
		}
	}

	if err := h.guider.SetConfig(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handlers) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":  h.guider.State().String(),
		"status": h.guider.LastStatus(),
	})
}

func (h *Handlers) postGuiding(c *gin.Context) {
	var req struct {
		On bool `json:"on"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.guider.SetGuiding(req.On)
	c.JSON(http.StatusOK, gin.H{"guiding": req.On})
}

func (h *Handlers) postCalibrate(c *gin.Context) {
	var req struct {
		Backlash bool `json:"backlash"`
	}
	c.ShouldBindJSON(&req)

	if err := h.calib.TriggerCalibration(req.Backlash); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "calibrating"})
}

func (h *Handlers) postClearStars(c *gin.Context) {
	h.guider.RemoveAll()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handlers) getPEC(c *gin.Context) {
	if h.mount == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "mount link not available"})
		return
	}
	values, err := h.mount.GetPEC()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pec": values})
}

func (h *Handlers) postPEC(c *gin.Context) {
	if h.mount == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "mount link not available"})
		return
	}
	var req struct {
		PEC []int `json:"pec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.PEC) == 0 || len(req.PEC)%2 != 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pec must be a non-empty array of even length"})
		return
	}
	if err := h.mount.SetPEC(req.PEC); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) postCaptureHotPixelMask(c *gin.Context) {
	if h.camera == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "camera not available"})
		return
	}
	var req struct {
		DarkFrames int `json:"dark_frames"`
		Threshold  int `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DarkFrames <= 0 {
		req.DarkFrames = 10
	}
	if req.Threshold <= 0 {
		req.Threshold = 20
	}
	coords, err := h.camera.CaptureHotPixelMask(req.DarkFrames, req.Threshold)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "captured", "hot_pixels": coords})
}

func (h *Handlers) postClearHotPixelMask(c *gin.Context) {
	if h.camera == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "camera not available"})
		return
	}
	h.camera.ClearHotPixelMask()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
