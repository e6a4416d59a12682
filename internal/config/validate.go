package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// hostRule matches the rule viewers' ip parameter is checked against, so the
// default target is usable whenever a viewer omits it.
const hostRule = "ip|hostname_rfc1123"

var validate = validator.New()

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTarget() error {
	if c.Target.Host == "" {
		return errors.New("target.host must be set")
	}
	if err := validate.Var(c.Target.Host, hostRule); err != nil {
		return fmt.Errorf("target.host %q is not an IP address or hostname", c.Target.Host)
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535, got %d", c.Target.Port)
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.Framebuffer == "" {
		return errors.New("capture.framebuffer must be set")
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("capture.width and capture.height must be positive, got %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.CropWidth < 0 || c.Capture.CropHeight < 0 {
		return errors.New("capture.crop_width and capture.crop_height must not be negative")
	}
	if c.Capture.CropWidth > c.Capture.Width || c.Capture.CropHeight > c.Capture.Height {
		return fmt.Errorf("capture crop %dx%d exceeds frame %dx%d", c.Capture.CropWidth, c.Capture.CropHeight, c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.BytesPerPixel() == 0 {
		return fmt.Errorf("capture.pixel_format: unsupported value %q", c.Capture.PixelFormat)
	}
	if c.Capture.PollIntervalSeconds < 0 {
		return errors.New("capture.poll_interval_seconds must not be negative")
	}
	if c.Capture.Framerate <= 0 {
		return errors.New("capture.framerate must be positive")
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.PingIntervalSeconds <= 0 {
		return errors.New("relay.ping_interval_seconds must be positive")
	}
	if c.Relay.ReadDeadlineSeconds <= c.Relay.PingIntervalSeconds {
		return errors.New("relay.read_deadline_seconds must exceed relay.ping_interval_seconds")
	}
	if c.Relay.WriteDeadlineSeconds <= 0 {
		return errors.New("relay.write_deadline_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
