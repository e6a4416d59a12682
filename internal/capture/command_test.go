package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-relay-server/internal/config"
)

func TestSSHArgsMatchFramebufferGeometry(t *testing.T) {
	s := NewCommandSpawner(config.Default().Capture)

	args := s.sshArgs(Target{Host: "192.168.50.73", Port: 2222})

	assert.Equal(t, []string{
		"-p", "2222",
		"-o", "StrictHostKeyChecking=no",
		"-o", "BatchMode=yes",
		"root@192.168.50.73",
		"while true; do dd if=/dev/fb0 bs=1872 count=2480 2>/dev/null; sleep 1; done",
	}, args)
}

func TestSSHArgsScaleBlockSizeByPixelDepth(t *testing.T) {
	cfg := config.Default().Capture
	cfg.PixelFormat = "rgb565le"
	cfg.Width = 800
	cfg.Height = 600
	cfg.SSHUser = ""
	cfg.SSHOptions = nil

	args := NewCommandSpawner(cfg).sshArgs(Target{Host: "device", Port: 22})

	assert.Equal(t, []string{
		"-p", "22",
		"device",
		"while true; do dd if=/dev/fb0 bs=1600 count=600 2>/dev/null; sleep 1; done",
	}, args)
}

func TestFFmpegArgsCropOnlyWhenSmallerThanFrame(t *testing.T) {
	cfg := config.Default().Capture

	args := NewCommandSpawner(cfg).ffmpegArgs()
	assert.Equal(t, []string{
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", "1872x2480",
		"-framerate", "1",
		"-i", "-",
		"-vf", "crop=1860:2480:0:0",
		"-r", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	}, args)

	cfg.CropWidth = 0
	cfg.CropHeight = 0
	assert.NotContains(t, NewCommandSpawner(cfg).ffmpegArgs(), "-vf")
}

func TestSpawnRejectsInvalidTarget(t *testing.T) {
	_, err := NewCommandSpawner(config.Default().Capture).Spawn(context.Background(), Target{Host: "-oProxyCommand=x", Port: 22})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSpawnPipesSSHIntoFFmpeg(t *testing.T) {
	stubCommands(t, "stream")

	proc, err := NewCommandSpawner(config.Default().Capture).Spawn(context.Background(), targetX)
	require.NoError(t, err)

	out, err := io.ReadAll(proc.Stdout())
	require.NoError(t, err)
	stderr, err := io.ReadAll(proc.Stderr())
	require.NoError(t, err)

	assert.Equal(t, helperStream, out)
	assert.Contains(t, string(stderr), "ffmpeg: helper warning")
	assert.NoError(t, proc.Wait())
	assert.NoError(t, proc.Kill())
}

func TestWaitReportsSSHFailure(t *testing.T) {
	stubCommands(t, "sshfail")

	proc, err := NewCommandSpawner(config.Default().Capture).Spawn(context.Background(), targetX)
	require.NoError(t, err)

	stderr, err := io.ReadAll(proc.Stderr())
	require.NoError(t, err)
	assert.Contains(t, string(stderr), "Connection refused")

	err = proc.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh")
}

func TestKillStopsLongRunningPipeline(t *testing.T) {
	stubCommands(t, "hang")

	proc, err := NewCommandSpawner(config.Default().Capture).Spawn(context.Background(), targetX)
	require.NoError(t, err)

	require.NoError(t, proc.Kill())
	assert.Error(t, proc.Wait())
	_, err = io.ReadAll(proc.Stdout())
	assert.NoError(t, err)
}

var helperStream = append(append([]byte{0x01, 0xFF, 0xD8, 0x10}, 0xFF, 0xD9), 0xFF, 0xD8, 0x20, 0xFF, 0xD9)

func stubCommands(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("CAPTURE_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	name := args[1]
	mode := os.Getenv("CAPTURE_HELPER_MODE")

	switch name {
	case "ssh":
		switch mode {
		case "stream":
			_, _ = os.Stdout.Write(helperStream)
			os.Exit(0)
		case "sshfail":
			fmt.Fprintln(os.Stderr, "ssh: connect to host 10.0.0.1 port 2222: Connection refused")
			os.Exit(255)
		case "hang":
			time.Sleep(time.Minute)
		}
	case "ffmpeg":
		_, _ = io.Copy(os.Stdout, os.Stdin)
		if mode == "stream" {
			fmt.Fprintln(os.Stderr, "ffmpeg: helper warning")
		}
		os.Exit(0)
	}
	os.Exit(0)
}
