package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-relay-server/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"PORT", "SCREEN_RELAY_HOST", "SCREEN_RELAY_PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(missing)
	require.NoError(t, err)
	assert.Equal(t, missing, resolved)
	assert.False(t, exists)

	assert.Equal(t, ":3000", cfg.Server.Bind)
	assert.Equal(t, "/api/screen", cfg.Server.ScreenPath)
	assert.Equal(t, "192.168.50.73", cfg.Target.Host)
	assert.Equal(t, 2222, cfg.Target.Port)
	assert.Equal(t, 1872, cfg.Capture.Width)
	assert.Equal(t, 2480, cfg.Capture.Height)
	assert.Equal(t, 1, cfg.Capture.BytesPerPixel())
	assert.Equal(t, []string{"StrictHostKeyChecking=no", "BatchMode=yes"}, cfg.Capture.SSHOptions)
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestLoadParsesFileAndTrims(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.toml")
	contents := `
[server]
bind = " 127.0.0.1:9000 "
screen_path = "screen"

[target]
host = "10.0.0.5"
port = 22

[capture]
pixel_format = "RGB565LE"
width = 800
height = 600
crop_width = 0
crop_height = 0
ssh_options = ["  ", "ConnectTimeout=5"]

[logging]
level = "DEBUG"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Bind)
	assert.Equal(t, "/screen", cfg.Server.ScreenPath)
	assert.Equal(t, "10.0.0.5", cfg.Target.Host)
	assert.Equal(t, 22, cfg.Target.Port)
	assert.Equal(t, "rgb565le", cfg.Capture.PixelFormat)
	assert.Equal(t, 2, cfg.Capture.BytesPerPixel())
	assert.Equal(t, []string{"ConnectTimeout=5"}, cfg.Capture.SSHOptions)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4100")
	t.Setenv("SCREEN_RELAY_HOST", "kindle.local")
	t.Setenv("SCREEN_RELAY_PORT", "8022")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, ":4100", cfg.Server.Bind)
	assert.Equal(t, "kindle.local", cfg.Target.Host)
	assert.Equal(t, 8022, cfg.Target.Port)
}

func TestEnvironmentPortMustBeNumeric(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")

	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"target port":   func(c *config.Config) { c.Target.Port = 70000 },
		"target host":   func(c *config.Config) { c.Target.Host = "a..b" },
		"target flag":   func(c *config.Config) { c.Target.Host = "-oProxyCommand=x" },
		"pixel format":  func(c *config.Config) { c.Capture.PixelFormat = "yuv420p" },
		"crop too wide": func(c *config.Config) { c.Capture.CropWidth = c.Capture.Width + 1 },
		"framerate":     func(c *config.Config) { c.Capture.Framerate = 0 },
		"read deadline": func(c *config.Config) { c.Relay.ReadDeadlineSeconds = c.Relay.PingIntervalSeconds },
		"log format":    func(c *config.Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte("[capture]\nfps = 3\n"), 0o644))

	_, _, _, err := config.Load(path)
	assert.Error(t, err)
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	require.NoError(t, config.CreateSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed config.Config
	require.NoError(t, toml.Unmarshal(data, &parsed))
	assert.Equal(t, config.Default(), parsed)
}

func TestEnvironmentHostIsValidated(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCREEN_RELAY_HOST", "not a host")

	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.host")
}
