package actor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 100 * time.Millisecond

type commandRunner func(ctx context.Context, name string, args ...string) error

// Encoder renders still images into silent H.264 clips. Only one encode
// runs at a time per lock file, across goroutines and processes; callers
// wait for their turn.
type Encoder struct {
	binary   string
	lockPath string
	run      commandRunner

	mu sync.Mutex
}

// NewEncoder builds an encoder that runs binary and coordinates through
// lockPath.
func NewEncoder(binary, lockPath string) *Encoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Encoder{binary: binary, lockPath: lockPath, run: runCommand}
}

// Encode writes a seconds-long clip of imagePath to outPath.
func (e *Encoder) Encode(ctx context.Context, imagePath, outPath string, seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.lockPath), 0o755); err != nil {
		return fmt.Errorf("create encoder lock dir: %w", err)
	}
	lock := flock.New(e.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire encoder lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire encoder lock: %s is held", e.lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create clip dir: %w", err)
	}
	return e.run(ctx, e.binary, encodeArgs(imagePath, outPath, seconds)...)
}

func encodeArgs(imagePath, outPath string, seconds float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", strconv.FormatFloat(seconds, 'f', -1, 64),
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p",
		"-c:v", "libx264",
		"-r", "30",
		"-an",
		"-movflags", "+faststart",
		outPath,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
