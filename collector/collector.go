// Package collector runs the program's integration test suite and
// extracts profiling measurements from its output.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/commercelabs/cuprof/txsize"
)

// measurementPrefix tags profiling lines in the test output. The
// emitter always writes the type field first, so a cheap prefix check
// filters candidates before JSON decoding.
const measurementPrefix = `{"type":"profiling"`

// profilingEnv enables profiling instrumentation in the test binary.
const profilingEnv = "ENABLE_PROFILING=1"

// measurement is one decoded profiling line.
type measurement struct {
	Type       string `json:"type"`
	Operation  string `json:"operation"`
	CUConsumed uint64 `json:"cu_consumed"`
}

// Datum joins an observed measurement with the statically estimated
// transaction size for its operation.
type Datum struct {
	Operation  string
	CUConsumed uint64
	TxSize     int
}

// Runner executes the cargo test suite that emits profiling lines.
type Runner struct {
	Dir     string
	Package string
	Logger  *slog.Logger
}

// NewRunner creates a Runner for the integration tests in dir,
// selected by the given cargo package name.
func NewRunner(dir, pkg string, logger *slog.Logger) *Runner {
	return &Runner{Dir: dir, Package: pkg, Logger: logger}
}

// Run executes the test suite once, synchronously, and returns its
// combined stdout and stderr. Launch failures and non-zero exits are
// logged rather than returned: failed tests can still emit usable
// measurements, and the caller treats zero measurements as its own
// failure signal.
func (r *Runner) Run(ctx context.Context) string {
	cmd := exec.CommandContext(
		ctx, "cargo", "test", "-p", r.Package, "--", "--nocapture",
	)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), profilingEnv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Info("running integration tests",
		slog.String("package", r.Package),
		slog.String("dir", r.Dir),
	)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.Logger.Warn("test suite exited non-zero",
				slog.Int("exit_code", exitErr.ExitCode()),
			)
		} else {
			r.Logger.Error("failed to launch test suite",
				slog.String("error", err.Error()),
			)

			return ""
		}
	}

	return stdout.String() + stderr.String()
}

// Parse scans output line by line, decodes profiling measurements, and
// attaches each operation's estimated transaction size from sizes.
// Prefix-matching lines that fail to decode are logged and skipped; an
// operation missing from sizes is an error, since it means the schema
// and the measurement stream have diverged. All other lines are
// ignored.
func Parse(
	output string,
	sizes txsize.Table,
	logger *slog.Logger,
) ([]Datum, error) {
	var data []Datum

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, measurementPrefix) {
			continue
		}

		var m measurement
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			logger.Warn("skipping malformed profiling line",
				slog.String("line", line),
				slog.String("error", err.Error()),
			)

			continue
		}

		if m.Type != "profiling" {
			continue
		}

		if m.Operation == "" {
			return nil, fmt.Errorf(
				"profiling line missing operation: %s", line,
			)
		}

		size, err := sizes.Lookup(m.Operation)
		if err != nil {
			return nil, err
		}

		data = append(data, Datum{
			Operation:  m.Operation,
			CUConsumed: m.CUConsumed,
			TxSize:     size,
		})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan test output: %w", err)
	}

	return data, nil
}

// ParseFile parses measurements from a previously captured output log.
func ParseFile(
	path string,
	sizes txsize.Table,
	logger *slog.Logger,
) ([]Datum, error) {
	out, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read output log %s: %w", path, err)
	}

	return Parse(string(out), sizes, logger)
}
