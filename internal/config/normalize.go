package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeTarget(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeRelay()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Bind = ":" + strconv.Itoa(port)
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.ScreenPath = strings.TrimSpace(c.Server.ScreenPath)
	if c.Server.ScreenPath == "" {
		c.Server.ScreenPath = defaultScreenPath
	}
	if !strings.HasPrefix(c.Server.ScreenPath, "/") {
		c.Server.ScreenPath = "/" + c.Server.ScreenPath
	}
	return nil
}

func (c *Config) normalizeTarget() error {
	if value, ok := os.LookupEnv("SCREEN_RELAY_HOST"); ok && strings.TrimSpace(value) != "" {
		c.Target.Host = value
	}
	if value, ok := os.LookupEnv("SCREEN_RELAY_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("SCREEN_RELAY_PORT: %w", err)
		}
		c.Target.Port = port
	}
	c.Target.Host = strings.TrimSpace(c.Target.Host)
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.SSHBinary = strings.TrimSpace(c.Capture.SSHBinary)
	if c.Capture.SSHBinary == "" {
		c.Capture.SSHBinary = defaultSSHBinary
	}
	c.Capture.SSHUser = strings.TrimSpace(c.Capture.SSHUser)
	c.Capture.FFmpegBinary = strings.TrimSpace(c.Capture.FFmpegBinary)
	if c.Capture.FFmpegBinary == "" {
		c.Capture.FFmpegBinary = defaultFFmpegBinary
	}
	c.Capture.FFmpegLogLevel = strings.TrimSpace(c.Capture.FFmpegLogLevel)
	if c.Capture.FFmpegLogLevel == "" {
		c.Capture.FFmpegLogLevel = defaultFFmpegLogLevel
	}
	c.Capture.Framebuffer = strings.TrimSpace(c.Capture.Framebuffer)
	c.Capture.PixelFormat = strings.ToLower(strings.TrimSpace(c.Capture.PixelFormat))
	if c.Capture.ReadChunkSize <= 0 {
		c.Capture.ReadChunkSize = defaultReadChunkSize
	}
	if c.Capture.FrameQueue <= 0 {
		c.Capture.FrameQueue = defaultFrameQueue
	}
	options := c.Capture.SSHOptions[:0]
	for _, opt := range c.Capture.SSHOptions {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			options = append(options, trimmed)
		}
	}
	c.Capture.SSHOptions = options
}

func (c *Config) normalizeRelay() {
	if c.Relay.ClientBuffer <= 0 {
		c.Relay.ClientBuffer = defaultClientBuffer
	}
	if c.Relay.ReadLimit <= 0 {
		c.Relay.ReadLimit = defaultReadLimit
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
