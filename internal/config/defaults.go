package config

const (
	defaultBind       = ":3000"
	defaultScreenPath = "/api/screen"

	defaultTargetHost = "192.168.50.73"
	defaultTargetPort = 2222

	defaultSSHBinary      = "ssh"
	defaultSSHUser        = "root"
	defaultFFmpegBinary   = "ffmpeg"
	defaultFFmpegLogLevel = "warning"
	defaultFramebuffer    = "/dev/fb0"
	defaultWidth          = 1872
	defaultHeight         = 2480
	defaultCropWidth      = 1860
	defaultCropHeight     = 2480
	defaultPixelFormat    = "gray"
	defaultPollInterval   = 1
	defaultFramerate      = 1
	defaultReadChunkSize  = 40 * 1024
	defaultFrameQueue     = 100

	defaultClientBuffer  = 10
	defaultPingInterval  = 54
	defaultReadDeadline  = 60
	defaultWriteDeadline = 10
	defaultReadLimit     = 512

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:       defaultBind,
			ScreenPath: defaultScreenPath,
		},
		Target: Target{
			Host: defaultTargetHost,
			Port: defaultTargetPort,
		},
		Capture: Capture{
			SSHBinary:           defaultSSHBinary,
			SSHUser:             defaultSSHUser,
			SSHOptions:          []string{"StrictHostKeyChecking=no", "BatchMode=yes"},
			FFmpegBinary:        defaultFFmpegBinary,
			FFmpegLogLevel:      defaultFFmpegLogLevel,
			Framebuffer:         defaultFramebuffer,
			Width:               defaultWidth,
			Height:              defaultHeight,
			CropWidth:           defaultCropWidth,
			CropHeight:          defaultCropHeight,
			PixelFormat:         defaultPixelFormat,
			PollIntervalSeconds: defaultPollInterval,
			Framerate:           defaultFramerate,
			ReadChunkSize:       defaultReadChunkSize,
			FrameQueue:          defaultFrameQueue,
		},
		Relay: Relay{
			ClientBuffer:         defaultClientBuffer,
			PingIntervalSeconds:  defaultPingInterval,
			ReadDeadlineSeconds:  defaultReadDeadline,
			WriteDeadlineSeconds: defaultWriteDeadline,
			ReadLimit:            defaultReadLimit,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
