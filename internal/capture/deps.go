package capture

import (
	"fmt"
	"os/exec"
	"strings"

	"screen-relay-server/internal/config"
)

var lookPath = exec.LookPath

// Requirement is an external binary the capture pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// BinaryStatus reports the availability of a Requirement.
type BinaryStatus struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Requirements lists the binaries CommandSpawner executes.
func Requirements(cfg config.Capture) []Requirement {
	return []Requirement{
		{Name: "SSH", Command: cfg.SSHBinary, Description: "Reads the remote framebuffer"},
		{Name: "FFmpeg", Command: cfg.FFmpegBinary, Description: "Encodes raw frames to MJPEG"},
	}
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []BinaryStatus {
	results := make([]BinaryStatus, 0, len(requirements))
	for _, req := range requirements {
		status := BinaryStatus{Requirement: req}
		cmd := strings.TrimSpace(req.Command)
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := lookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// MissingBinaries returns an error naming every unavailable requirement.
func MissingBinaries(statuses []BinaryStatus) error {
	var missing []string
	for _, s := range statuses {
		if !s.Available {
			missing = append(missing, s.Detail)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("capture dependencies unavailable: %s", strings.Join(missing, "; "))
}
