// Package deps resolves the external programs kiln shells out to and reports
// whether they can be executed.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"kiln/internal/config"
)

const versionProbeTimeout = 2 * time.Second

// Requirement names one external program. Command may be a bare name
// resolved from PATH or a path to a specific binary.
type Requirement struct {
	Name        string
	Command     string
	Fallback    string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the resolved binary and the first
	// line of its output is reported as the version.
	VersionArgs []string
}

// Status is the resolved state of one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Requirements lists the programs cfg refers to.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{{
		Name:        "FFmpeg",
		Command:     cfg.Actor.FFmpegBinary,
		Fallback:    "ffmpeg",
		Description: "Converts actor images into short H.264 clips",
		Optional:    true,
		VersionArgs: []string{"-hide_banner", "-version"},
	}}
}

// CheckAll resolves every requirement in order.
func CheckAll(reqs []Requirement) []Status {
	out := make([]Status, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, Check(req))
	}
	return out
}

// Check resolves req. A command containing a path separator must name an
// executable file; anything else is looked up in PATH.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		command = strings.TrimSpace(req.Fallback)
	}
	status.Command = command
	if command == "" {
		status.Detail = "command not configured"
		return status
	}

	resolved, err := resolve(command)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Command = resolved
	status.Available = true
	if len(req.VersionArgs) > 0 {
		status.Version = probeVersion(resolved, req.VersionArgs)
	}
	return status
}

func resolve(command string) (string, error) {
	if !strings.ContainsRune(command, os.PathSeparator) {
		resolved, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("binary %q not found", command)
		}
		return resolved, nil
	}
	info, err := os.Stat(command)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("binary %q is not executable", command)
	}
	return command, nil
}

// probeVersion returns the first output line, or "" when the probe fails.
func probeVersion(binary string, args []string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}
