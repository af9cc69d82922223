// Package config provides TOML configuration loading for pipitrekd.
//
// The configuration file supports the following structure:
//
//	[mount]
//	device = "/dev/ttyUSB0"
//	baud = 9600
//	bt_device = "/dev/ttyAML1"
//	tcp_bridge_port = 9001
//
//	[camera]
//	device_id = 0
//	width = 1280
//	height = 720
//	fps = 30
//
//	[web]
//	listen_addr = ":8443"
//
//	[stellarium]
//	listen_addr = ":10001"
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Mount device: %s\n", cfg.Mount.Device)
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the complete ambient configuration for pipitrekd.
// Guiding and mount runtime state (GuideConfig, RotationModel, camera
// geometry/controls) is not here — it is persisted as JSON by package
// settings and reloaded at startup per §4.7.
type Config struct {
	Mount      MountConfig      `toml:"mount"`
	Camera     CameraConfig     `toml:"camera"`
	Web        WebConfig        `toml:"web"`
	Stellarium StellariumConfig `toml:"stellarium"`
	Settings   SettingsConfig   `toml:"settings"`
	Verbose    bool             `toml:"verbose"`
}

// MountConfig describes the physical and bridged serial endpoints.
type MountConfig struct {
	// Device is the mount's serial port (default: "/dev/ttyUSB0").
	Device string `toml:"device"`
	// Baud is the serial baud rate (default: 9600).
	Baud int `toml:"baud"`
	// BTDevice is the Bluetooth serial port bridged alongside the mount link.
	BTDevice string `toml:"bt_device"`
	// BTEnabled turns on Bluetooth bridging.
	BTEnabled bool `toml:"bt_enabled"`
	// TCPBridgePort exposes the mount link to TCP "telescope" clients.
	TCPBridgePort int `toml:"tcp_bridge_port"`
}

// CameraConfig holds default V4L2 capture settings.
type CameraConfig struct {
	// DeviceID is the camera device index (default: 0).
	DeviceID int `toml:"device_id"`
	// Width is the capture width in pixels (default: 1280).
	Width int `toml:"width"`
	// Height is the capture height in pixels (default: 720).
	Height int `toml:"height"`
	// FPS is the target frame rate (default: 30).
	FPS int `toml:"fps"`
}

// WebConfig holds the HTTP+WebSocket external surface listener settings.
type WebConfig struct {
	// ListenAddr is the address the REST/WebSocket server binds to.
	ListenAddr string `toml:"listen_addr"`
	// TLSCert/TLSKey, if both set, serve HTTPS instead of plain HTTP.
	TLSCert string `toml:"tls_cert"`
	TLSKey  string `toml:"tls_key"`
}

// StellariumConfig holds the Stellarium-protocol TCP listener settings.
type StellariumConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// SettingsConfig points at the JSON runtime-settings file and image dir.
type SettingsConfig struct {
	Path      string `toml:"path"`
	OutputDir string `toml:"output_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Mount: MountConfig{
			Device:        "/dev/ttyUSB0",
			Baud:          9600,
			BTDevice:      "/dev/ttyAML1",
			BTEnabled:     false,
			TCPBridgePort: 9001,
		},
		Camera: CameraConfig{
			DeviceID: 0,
			Width:    1280,
			Height:   720,
			FPS:      30,
		},
		Web: WebConfig{
			ListenAddr: ":8443",
		},
		Stellarium: StellariumConfig{
			ListenAddr: ":10001",
		},
		Settings: SettingsConfig{
			Path:      "settings.json",
			OutputDir: "/root/astro/images",
		},
		Verbose: false,
	}
}

// Load reads and parses a TOML configuration file.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Camera.Width < 0 {
		return fmt.Errorf("camera width must be non-negative, got %d", c.Camera.Width)
	}
	if c.Camera.Height < 0 {
		return fmt.Errorf("camera height must be non-negative, got %d", c.Camera.Height)
	}
	if c.Camera.FPS < 0 {
		return fmt.Errorf("camera FPS must be non-negative, got %d", c.Camera.FPS)
	}
	if c.Mount.Baud <= 0 {
		return fmt.Errorf("mount baud must be positive, got %d", c.Mount.Baud)
	}
	if c.Mount.TCPBridgePort < 0 || c.Mount.TCPBridgePort > 65535 {
		return fmt.Errorf("mount tcp_bridge_port must be between 0 and 65535, got %d", c.Mount.TCPBridgePort)
	}
	return nil
}
