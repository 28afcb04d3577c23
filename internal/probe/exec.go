package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ExecProber shells out to the system ping utility.
// It works without raw socket privileges on every platform.
type ExecProber struct {
	goos    string
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecProber creates a prober for the current platform
func NewExecProber() *ExecProber {
	return &ExecProber{
		goos:    runtime.GOOS,
		command: exec.CommandContext,
	}
}

// Probe sends a single echo request through the ping command
func (p *ExecProber) Probe(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	// The utility enforces its own wait, the context is a backstop
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := p.command(ctx, "ping", pingArgs(p.goos, address, timeout)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return 0, fmt.Errorf("ping failed: %s", msg)
		}
		return 0, fmt.Errorf("failed to execute ping: %w", err)
	}

	return ParseLatency(stdout.String())
}

// pingArgs builds the platform-specific arguments for a single ping
func pingArgs(goos, address string, timeout time.Duration) []string {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), address}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", "1", "-t", strconv.Itoa(secs), address}
	case "linux":
		return []string{"-c", "1", "-W", strconv.Itoa(secs), address}
	default:
		return []string{"-c", "1", address}
	}
}

// latencyPattern matches "time=12.3 ms", "time=15ms", "time<1ms" and "time 4.2"
var latencyPattern = regexp.MustCompile(`time[=< ]\s*([0-9]+(?:\.[0-9]+)?)`)

// ParseLatency extracts the round trip time in milliseconds from ping output
func ParseLatency(output string) (float64, error) {
	matches := latencyPattern.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not parse latency from ping output")
	}

	latency, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse number from %q: %w", matches[1], err)
	}
	return latency, nil
}
