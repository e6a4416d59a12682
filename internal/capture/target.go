package capture

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidTarget is returned when a requested host or port cannot be used.
var ErrInvalidTarget = errors.New("invalid capture target")

var validate = validator.New()

// Target identifies the remote device to capture from. The host ends up in
// the ssh argv, so only IP literals and RFC 1123 hostnames are accepted.
type Target struct {
	Host string `json:"host" validate:"required,ip|hostname_rfc1123"`
	Port int    `json:"port" validate:"min=1,max=65535"`
}

// String returns host:port.
func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ResolveTarget fills an unset host or port from fallback and validates the
// result. A zero port counts as unset.
func ResolveTarget(host string, port int, fallback Target) (Target, error) {
	target := fallback
	if host != "" {
		target.Host = host
	}
	if port != 0 {
		target.Port = port
	}
	if err := target.Validate(); err != nil {
		return Target{}, err
	}
	return target, nil
}

// Validate reports whether the target is usable.
func (t Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %q port %d: %v", ErrInvalidTarget, t.Host, t.Port, err)
	}
	return nil
}
