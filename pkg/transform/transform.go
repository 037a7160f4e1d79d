// Package transform drives the external guetzli recompressor.
//
// The recompressor is treated as an opaque subprocess reachable on the
// executable search path. A run is bounded by a polled wait (180 attempts
// of 5 seconds by default, roughly 15 minutes) after which the child is
// killed. Cancellation of the caller is logged but never propagated to a
// running child: a transform, once started, runs to completion or timeout.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/speexx/guetzli-service/internal/logger"
)

// ErrTimeout is returned when the recompressor does not exit within the
// polled wait budget. The child is killed before returning.
var ErrTimeout = errors.New("transformation timed out")

// ExitError is returned when the recompressor exits with a non-zero code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("transformation failed with exit code %d", e.Code)
}

const (
	guetzliCmd = "guetzli"

	// logFileName collects child stdout/stderr in the entry directory.
	logFileName = ".guetzli-processor.log"

	// DefaultMemLimitMB is passed to guetzli as --memlimit.
	DefaultMemLimitMB = 6000

	// DefaultWaitInterval and DefaultMaxWaits bound a run: the child is
	// polled every interval up to the attempt count, then killed.
	DefaultWaitInterval = 5 * time.Second
	DefaultMaxWaits     = 180
)

// Processor runs guetzli source-to-target transformations.
type Processor struct {
	memLimitMB   int
	waitInterval time.Duration
	maxWaits     int
}

// New creates a Processor. Zero arguments select the defaults.
func New(memLimitMB int, waitInterval time.Duration, maxWaits int) *Processor {
	if memLimitMB <= 0 {
		memLimitMB = DefaultMemLimitMB
	}
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}
	if maxWaits <= 0 {
		maxWaits = DefaultMaxWaits
	}
	return &Processor{
		memLimitMB:   memLimitMB,
		waitInterval: waitInterval,
		maxWaits:     maxWaits,
	}
}

// Transform recompresses source into target with guetzli's own quality
// selection.
func (p *Processor) Transform(ctx context.Context, source, target string) error {
	return p.run(ctx, source, target, 0)
}

// TransformQuality recompresses source into target at an explicit quality
// level in 1..100. Not reachable from the HTTP surface yet, but the
// recompressor supports it and the knob is kept for parity.
func (p *Processor) TransformQuality(ctx context.Context, source, target string, quality int) error {
	return p.run(ctx, source, target, quality)
}

func (p *Processor) run(ctx context.Context, source, target string, quality int) error {
	args := []string{"--memlimit", strconv.Itoa(p.memLimitMB)}
	if quality != 0 {
		args = append(args, "--quality", strconv.Itoa(quality))
	}
	args = append(args, source, target)

	cmd := exec.Command(guetzliCmd, args...)
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}

	// Child output goes to a log file next to the source. Best effort: a
	// transform must not fail because its log could not be opened.
	logPath := filepath.Join(filepath.Dir(source), logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("cannot open transform log", "path", logPath, "error", err)
	} else {
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	logger.Info("starting transformation", "source", source, "target", target)
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", guetzliCmd, err)
	}

	waitErr := p.wait(ctx, cmd, source, target)
	if waitErr != nil {
		return waitErr
	}

	logger.Info("finished transformation",
		"source", source,
		"target", target,
		"duration", time.Since(start).String(),
	)
	return nil
}

// wait polls for child exit in fixed increments. Caller cancellation is
// noted and logged, but the next attempt is made regardless; the budget is
// the only thing that kills a child.
func (p *Processor) wait(ctx context.Context, cmd *exec.Cmd, source, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	ctxDone := ctx.Done()
	for i := 0; i < p.maxWaits; i++ {
		select {
		case err := <-done:
			return exitStatus(err)
		case <-time.After(p.waitInterval):
		case <-ctxDone:
			logger.Warn("caller cancelled while transforming, letting child finish",
				"source", source, "target", target)
			// Keep waiting; the attempt budget is the only limit.
			ctxDone = nil
			i--
		}
	}

	if err := cmd.Process.Kill(); err != nil {
		logger.Warn("kill timed-out transform", "source", source, "error", err)
	}
	<-done
	return fmt.Errorf("%w: %s", ErrTimeout, source)
}

func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}
