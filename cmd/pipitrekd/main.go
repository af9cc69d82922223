// Package main is the pipitrekd daemon entry point: it wires together
// the mount link, camera, guider core, calibration, and external
// surfaces, and runs until an interrupt or
// terminate signal asks it to shut down.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/pihlerm/pipitrek/internal/analyzer"
	"github.com/pihlerm/pipitrek/internal/camera"
	"github.com/pihlerm/pipitrek/internal/config"
	"github.com/pihlerm/pipitrek/internal/frame"
	"github.com/pihlerm/pipitrek/internal/guider"
	"github.com/pihlerm/pipitrek/internal/mount"
	"github.com/pihlerm/pipitrek/internal/settings"
	"github.com/pihlerm/pipitrek/internal/statuslog"
	"github.com/pihlerm/pipitrek/internal/stellarium"
	"github.com/pihlerm/pipitrek/internal/web"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	mountDevice := flag.String("mount-device", "", "Mount serial device (overrides config)")
	cameraID := flag.Int("camera", -1, "Camera device ID (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "pipitrekd - telescope autoguider and mount-control daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                             # Run with default settings\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config pipitrek.toml       # Run with custom config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -mount-device /dev/ttyACM0  # Override mount serial device\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("pipitrekd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *mountDevice != "" {
		cfg.Mount.Device = *mountDevice
	}
	if *cameraID >= 0 {
		cfg.Camera.DeviceID = *cameraID
	}
	if *verbose {
		cfg.Verbose = true
	}

	if cfg.Verbose {
		log.Printf("configuration: mount=%s@%d camera=%d %dx%d@%dfps web=%s stellarium=%s",
			cfg.Mount.Device, cfg.Mount.Baud, cfg.Camera.DeviceID,
			cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS,
			cfg.Web.ListenAddr, cfg.Stellarium.ListenAddr)
	}

	runtimeSettings, err := settings.Load(cfg.Settings.Path, cfg.Settings.OutputDir)
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	statusLog := statuslog.New(runtimeSettings.OutputDir)

	// --- Mount Link ---
	mountLogger := log.New(log.Writer(), "[mount] ", log.LstdFlags)
	reopen := func() (mount.Port, error) { return openSerial(cfg.Mount.Device, cfg.Mount.Baud) }
	port, err := reopen()
	if err != nil {
		log.Fatalf("failed to open mount device %s: %v", cfg.Mount.Device, err)
	}
	link := mount.New(port, reopen, mountLogger)
	mountAdapter := mount.NewGuiderAdapter(link)

	applyMountSettings(link, runtimeSettings.Mount)

	bridge := mount.NewBridge(link, mountLogger)
	bridge.Start()
	defer bridge.Stop()

	if cfg.Mount.BTEnabled && cfg.Mount.BTDevice != "" {
		btWatcher := mount.NewBTWatcher(cfg.Mount.BTDevice, cfg.Mount.Baud, bridge, mountLogger)
		btWatcher.Start()
		defer btWatcher.Stop()
	}
	if cfg.Mount.TCPBridgePort > 0 {
		tcpBridge := mount.NewTCPBridge(fmt.Sprintf(":%d", cfg.Mount.TCPBridgePort), bridge, mountLogger)
		if err := tcpBridge.Start(); err != nil {
			log.Printf("mount tcp bridge: %v", err)
		} else {
			defer tcpBridge.Stop()
		}
	}

	// --- Camera Source ---
	frameHandle := &frame.Handle{}
	cam := camera.New(camera.NewGocvDevice(), frameHandle, log.New(log.Writer(), "[camera] ", log.LstdFlags))
	applyCameraSettings(cam, runtimeSettings.Camera)
	if err := cam.Start(cfg.Camera.DeviceID, runtimeSettings.Camera.Width, runtimeSettings.Camera.Height, cfg.Camera.FPS); err != nil {
		log.Fatalf("failed to start camera: %v", err)
	}
	defer cam.Stop()

	if p := runtimeSettings.Camera.HotPixelMaskPath; p != "" {
		if mask, err := camera.LoadHotPixelMask(p); err != nil {
			log.Printf("hot pixel mask: %v (continuing uncorrected)", err)
		} else {
			cam.SetHotPixelMask(mask)
		}
	}

	// --- Guider Core ---
	gs := runtimeSettings.Guider
	guideCfg := guider.Config{
		MaxDrift:      gs.MaxDrift,
		StarSize:      float64(gs.StarSize),
		GrayThreshold: gs.GrayThreshold,
		RotationAngle: gs.RotationAngle,
		PixelScale:    gs.PixelScale,
		GuideInterval: time.Duration(gs.GuideInterval * float64(time.Second)),
		GuidePulse:    gs.GuidePulse,
		MaxDistance:   gs.MaxDistance,
		Method:        guider.ParseMethod(gs.GuideMethod),
		DecGuiding:    gs.DecGuiding,
	}
	raPID := gs.PID["ra"]
	output := guider.NewGuideOutput(4, raPID.P, raPID.I, raPID.D)
	g := guider.New(analyzer.GuiderFinder{}, output, mountAdapter, mountAdapter, guideCfg, statusLog)

	calib := newCalibrationRunner(g, mountAdapter, func() *frame.Frame { return cam.CurrentFrame() })

	// --- Stellarium TCP surface ---
	stellariumAdapter := mount.NewStellariumAdapter(link, bridge)
	stellariumSrv := stellarium.New(cfg.Stellarium.ListenAddr, stellariumAdapter, stellariumAdapter, log.New(log.Writer(), "[stellarium] ", log.LstdFlags))
	if err := stellariumSrv.Start(); err != nil {
		log.Fatalf("failed to start stellarium server: %v", err)
	}
	defer stellariumSrv.Stop()

	// --- Web/External surface ---
	hub := web.NewHub(log.New(log.Writer(), "[web] ", log.LstdFlags))
	hotPixel := &hotPixelRunner{cam: cam, path: runtimeSettings.Camera.HotPixelMaskPath}
	handlers := web.NewHandlers(g, calib, bridge, hotPixel)
	webSrv := web.NewServer(cfg.Web.ListenAddr, cfg.Web.TLSCert, cfg.Web.TLSKey, handlers, hub, log.New(log.Writer(), "[web] ", log.LstdFlags))
	webSrv.Start()
	defer webSrv.Stop()

	// --- Guide loop ---
	guideStop := make(chan struct{})
	go guideLoop(g, cam, hub, guideStop)
	defer close(guideStop)

	log.Println("pipitrekd started. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	persistSettings(cfg.Settings.Path, runtimeSettings, g, cam)
}

// guideLoop polls the guider at ~10ms intervals (§5) and broadcasts
// every completed iteration to connected WebSocket clients.
func guideLoop(g *guider.Guider, cam *camera.Camera, hub *web.Hub, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !g.ShouldIterate(now) {
				continue
			}
			f := cam.CurrentFrame()
			if f == nil {
				continue
			}
			corr, err := g.Iterate(f, now)
			if err != nil {
				continue
			}
			hub.Broadcast("guide", corr)
		}
	}
}

// calibrationRunner adapts guider.Guider.Calibrate to web.CalibrationAPI,
// guarding against overlapping calibration requests.
type calibrationRunner struct {
	g           *guider.Guider
	mover       guider.MountMover
	detectFrame func() *frame.Frame
	running     atomic.Bool
}

func newCalibrationRunner(g *guider.Guider, mover guider.MountMover, detectFrame func() *frame.Frame) *calibrationRunner {
	return &calibrationRunner{g: g, mover: mover, detectFrame: detectFrame}
}

func (c *calibrationRunner) TriggerCalibration(withBacklash bool) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("calibration already in progress")
	}
	go func() {
		defer c.running.Store(false)
		f := c.detectFrame()
		if f == nil {
			return
		}
		if _, err := c.g.Calibrate(f, withBacklash, c.detectFrame, c.mover); err != nil {
			log.Printf("calibration failed: %v", err)
		}
	}()
	return nil
}

// hotPixelRunner adapts camera.Camera's mask operations to
// web.CameraAPI, persisting a captured mask to path so it survives a
// restart (§6's persisted-state requirement for HotPixelMask).
type hotPixelRunner struct {
	cam  *camera.Camera
	path string
}

func (h *hotPixelRunner) CaptureHotPixelMask(darkFrames, threshold int) (int, error) {
	mask, err := h.cam.CaptureHotPixelMask(darkFrames, threshold)
	if err != nil {
		return 0, err
	}
	if h.path != "" {
		if err := mask.Save(h.path); err != nil {
			log.Printf("hot pixel mask: save failed: %v", err)
		}
	}
	return len(mask.Coords), nil
}

func (h *hotPixelRunner) ClearHotPixelMask() {
	h.cam.ClearHotPixelMask()
}

func openSerial(device string, baud int) (mount.Port, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	return serial.Open(device, mode)
}

func applyMountSettings(link *mount.Link, ms settings.MountSettings) {
	if ms.Tracking {
		link.Exec(mount.PTCSetTracking(true))
	}
}

func applyCameraSettings(cam *camera.Camera, cs settings.CameraSettings) {
	cam.SetMode(cs.CamMode)
	cam.SetColor(cs.CameraColor)
	cam.SetIntegration(cs.IntegrateFrames)
	cam.SetChannelGains(cs.RChannel, cs.GChannel, cs.BChannel)
	cam.SetFPS(int(cs.CamFPS))
	for name, value := range cs.CameraControls {
		if err := cam.SetControl(name, value); err != nil {
			log.Printf("camera control %s failed: %v", name, err)
		}
	}
}

// persistSettings snapshots the live guider/camera config back into the
// settings document and saves it, mirroring pipitrek.py's cleanup()
// save-on-exit behavior.
func persistSettings(path string, s settings.Settings, g *guider.Guider, cam *camera.Camera) {
	cfg := g.Config()
	s.Guider.MaxDrift = cfg.MaxDrift
	s.Guider.StarSize = int(cfg.StarSize)
	s.Guider.GrayThreshold = cfg.GrayThreshold
	s.Guider.RotationAngle = cfg.RotationAngle
	s.Guider.PixelScale = cfg.PixelScale
	s.Guider.GuideInterval = cfg.GuideInterval.Seconds()
	s.Guider.GuidePulse = cfg.GuidePulse
	s.Guider.MaxDistance = cfg.MaxDistance
	s.Guider.GuideMethod = cfg.Method.String()
	s.Guider.DecGuiding = cfg.DecGuiding

	if err := settings.Save(path, s); err != nil {
		log.Printf("failed to save settings: %v", err)
	}
}
