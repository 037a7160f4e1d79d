// Package probe measures the JPEG quality of a stored image by running the
// external imagemagick "identify" tool. PNG sources are never probed; the
// coordinator records a fixed quality of 100 for them.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/speexx/guetzli-service/internal/logger"
)

// Errors returned by the prober.
var (
	// ErrTimeout is returned when identify does not exit within the
	// configured timeout. The child is killed before returning.
	ErrTimeout = errors.New("quality probe timed out")

	// ErrFailed is returned on a non-zero exit status, missing output,
	// or non-numeric output.
	ErrFailed = errors.New("quality probe failed")
)

const (
	identifyCmd = "identify"

	// DefaultTimeout bounds a single probe run.
	DefaultTimeout = 5 * time.Second
)

// Prober runs the external quality probe.
// The zero value is not usable; construct with New.
type Prober struct {
	timeout time.Duration
}

// New creates a Prober. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{timeout: timeout}
}

// Quality runs `identify -format %Q <path>` and parses the printed quality
// level. The executable search path of the service process is forwarded to
// the child. The first line of standard output is trimmed and parsed as a
// decimal integer in 1..100.
func (p *Prober) Quality(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger.Debug("probing quality level", "path", path)

	cmd := exec.CommandContext(ctx, identifyCmd, "-format", "%Q", path)
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return 0, fmt.Errorf("%w after %s: %s", ErrTimeout, p.timeout, path)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	line, _, _ := strings.Cut(string(out), "\n")
	quality, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric output %q", ErrFailed, line)
	}
	if quality < 1 || quality > 100 {
		return 0, fmt.Errorf("%w: quality %d out of range", ErrFailed, quality)
	}
	return quality, nil
}
