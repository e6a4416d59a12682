package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"screen-relay-server/internal/config"
)

var commandContext = exec.CommandContext

// sshExitGrace is how long Wait gives ssh to finish on its own after ffmpeg
// has exited before killing it.
const sshExitGrace = 200 * time.Millisecond

// CommandSpawner runs the production pipeline: ssh reads the remote
// framebuffer in a loop and its stdout feeds ffmpeg, which writes MJPEG to
// its own stdout. The two processes are connected directly, without a shell.
type CommandSpawner struct {
	cfg config.Capture
}

// NewCommandSpawner returns a spawner for the given capture settings.
func NewCommandSpawner(cfg config.Capture) *CommandSpawner {
	return &CommandSpawner{cfg: cfg}
}

// Spawn starts ssh and ffmpeg for target. Cancelling ctx kills both.
func (s *CommandSpawner) Spawn(ctx context.Context, target Target) (Process, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	ssh := commandContext(ctx, s.cfg.SSHBinary, s.sshArgs(target)...)
	ffmpeg := commandContext(ctx, s.cfg.FFmpegBinary, s.ffmpegArgs()...)

	rawR, rawW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create framebuffer pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(rawR, rawW)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(rawR, rawW, outR, outW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	ssh.Stdout = rawW
	ssh.Stderr = errW
	ffmpeg.Stdin = rawR
	ffmpeg.Stdout = outW
	ffmpeg.Stderr = errW

	if err := ffmpeg.Start(); err != nil {
		closeAll(rawR, rawW, outR, outW, errR, errW)
		return nil, fmt.Errorf("start %s: %w", s.cfg.FFmpegBinary, err)
	}
	if err := ssh.Start(); err != nil {
		_ = ffmpeg.Process.Kill()
		_ = ffmpeg.Wait()
		closeAll(rawR, rawW, outR, outW, errR, errW)
		return nil, fmt.Errorf("start %s: %w", s.cfg.SSHBinary, err)
	}

	// The children hold their own copies; the parent keeps only the read ends
	// it consumes so EOF propagates when the children exit.
	closeAll(rawR, rawW, outW, errW)

	p := &commandProcess{
		ssh:     ssh,
		ffmpeg:  ffmpeg,
		stdout:  outR,
		stderr:  errR,
		sshDone: make(chan error, 1),
	}
	go func() {
		p.sshDone <- ssh.Wait()
	}()
	return p, nil
}

func (s *CommandSpawner) sshArgs(target Target) []string {
	args := []string{"-p", strconv.Itoa(target.Port)}
	for _, opt := range s.cfg.SSHOptions {
		args = append(args, "-o", opt)
	}
	dest := target.Host
	if s.cfg.SSHUser != "" {
		dest = s.cfg.SSHUser + "@" + target.Host
	}
	return append(args, dest, s.remoteCommand())
}

func (s *CommandSpawner) remoteCommand() string {
	return fmt.Sprintf(
		"while true; do dd if=%s bs=%d count=%d 2>/dev/null; sleep %d; done",
		s.cfg.Framebuffer,
		s.cfg.Width*s.cfg.BytesPerPixel(),
		s.cfg.Height,
		s.cfg.PollIntervalSeconds,
	)
}

func (s *CommandSpawner) ffmpegArgs() []string {
	rate := strconv.Itoa(s.cfg.Framerate)
	args := []string{
		"-loglevel", s.cfg.FFmpegLogLevel,
		"-f", "rawvideo",
		"-pixel_format", s.cfg.PixelFormat,
		"-video_size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"-framerate", rate,
		"-i", "-",
	}

	cropW, cropH := s.cfg.CropWidth, s.cfg.CropHeight
	if cropW == 0 {
		cropW = s.cfg.Width
	}
	if cropH == 0 {
		cropH = s.cfg.Height
	}
	if cropW != s.cfg.Width || cropH != s.cfg.Height {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d:0:0", cropW, cropH))
	}

	return append(args,
		"-r", rate,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)
}

type commandProcess struct {
	ssh     *exec.Cmd
	ffmpeg  *exec.Cmd
	stdout  *os.File
	stderr  *os.File
	sshDone chan error

	waitOnce sync.Once
	waitErr  error
}

func (p *commandProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *commandProcess) Stderr() io.ReadCloser { return p.stderr }

// Wait reports the ffmpeg exit status, or the ssh one when ffmpeg exited
// cleanly because ssh went away first.
func (p *commandProcess) Wait() error {
	p.waitOnce.Do(func() {
		ffmpegErr := p.ffmpeg.Wait()

		var sshErr error
		select {
		case sshErr = <-p.sshDone:
		case <-time.After(sshExitGrace):
			_ = p.ssh.Process.Kill()
			<-p.sshDone
		}

		switch {
		case ffmpegErr != nil:
			p.waitErr = fmt.Errorf("ffmpeg: %w", ffmpegErr)
		case sshErr != nil:
			p.waitErr = fmt.Errorf("ssh: %w", sshErr)
		}
	})
	return p.waitErr
}

func (p *commandProcess) Kill() error {
	var errs []error
	for _, cmd := range []*exec.Cmd{p.ffmpeg, p.ssh} {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
