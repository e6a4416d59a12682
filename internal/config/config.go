package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP listener settings.
type Server struct {
	Bind       string `toml:"bind"`
	ScreenPath string `toml:"screen_path"`
}

// Target is the device captured when a viewer does not name one.
type Target struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Capture describes the ssh + ffmpeg pipeline that produces the MJPEG stream.
type Capture struct {
	SSHBinary      string   `toml:"ssh_binary"`
	SSHUser        string   `toml:"ssh_user"`
	SSHOptions     []string `toml:"ssh_options"`
	FFmpegBinary   string   `toml:"ffmpeg_binary"`
	FFmpegLogLevel string   `toml:"ffmpeg_loglevel"`
	// Framebuffer is the device node read on the remote host.
	Framebuffer string `toml:"framebuffer"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	// CropWidth and CropHeight trim the right/bottom edge; zero disables cropping.
	CropWidth           int    `toml:"crop_width"`
	CropHeight          int    `toml:"crop_height"`
	PixelFormat         string `toml:"pixel_format"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	Framerate           int    `toml:"framerate"`
	ReadChunkSize       int    `toml:"read_chunk_size"`
	FrameQueue          int    `toml:"frame_queue"`
}

// Relay contains per-viewer connection settings.
type Relay struct {
	ClientBuffer         int   `toml:"client_buffer"`
	PingIntervalSeconds  int   `toml:"ping_interval_seconds"`
	ReadDeadlineSeconds  int   `toml:"read_deadline_seconds"`
	WriteDeadlineSeconds int   `toml:"write_deadline_seconds"`
	ReadLimit            int64 `toml:"read_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for the relay.
type Config struct {
	Server  Server  `toml:"server"`
	Target  Target  `toml:"target"`
	Capture Capture `toml:"capture"`
	Relay   Relay   `toml:"relay"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/screen-relay/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults and environment overrides still apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("screen-relay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

var pixelFormatBytes = map[string]int{
	"gray":     1,
	"gray16le": 2,
	"rgb565le": 2,
	"rgb24":    3,
	"bgr24":    3,
	"rgba":     4,
	"bgra":     4,
}

// BytesPerPixel returns the framebuffer depth implied by PixelFormat, or 0 if
// the format is unknown.
func (c Capture) BytesPerPixel() int {
	return pixelFormatBytes[c.PixelFormat]
}

// PollInterval returns the pause between remote framebuffer reads.
func (c Capture) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PingInterval returns how often viewers are pinged.
func (r Relay) PingInterval() time.Duration {
	return time.Duration(r.PingIntervalSeconds) * time.Second
}

// ReadDeadline returns how long a viewer may stay silent, pongs included.
func (r Relay) ReadDeadline() time.Duration {
	return time.Duration(r.ReadDeadlineSeconds) * time.Second
}

// WriteDeadline bounds a single frame or control write.
func (r Relay) WriteDeadline() time.Duration {
	return time.Duration(r.WriteDeadlineSeconds) * time.Second
}
