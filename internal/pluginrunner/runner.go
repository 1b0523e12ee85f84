// Package pluginrunner executes Nagios-compatible check plugins and
// classifies their exit code and combined output into a Result (spec.md
// §4.3). Grounded on the teacher's pluginManager.Executor (exec.CommandContext
// plus a context-timeout-then-classify pattern) but adapted from its
// JSON-stdin/stdout batch protocol to the plain argv/exit-code/stdout
// protocol Nagios plugins actually use.
package pluginrunner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/irisett-go/irisett/internal/errs"
)

// Outcome is the post-hysteresis-free classification of one plugin run.
type Outcome int

const (
	OutcomeUp Outcome = iota
	OutcomeDown
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUp:
		return "UP"
	case OutcomeDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// maxMessageLen mirrors Nagios's own plugin output convention: only the
// first 199 characters of the combined output are kept for storage/alerting.
const maxMessageLen = 199

// Result is what one plugin invocation produced, already classified.
type Result struct {
	Outcome  Outcome
	Message  string // text before the first "|", truncated to 199 chars
	Perfdata string // raw text from the first "|" onward, if any
}

// Runner invokes a check executable with a fully-expanded argv and
// classifies the result.
type Runner struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With("component", "plugin_runner")}
}

// Run executes argv[0] with argv[1:], waiting up to timeout. It never
// returns a Go error for a plugin's own DOWN/UNKNOWN signal — only for
// conditions the caller must treat specially: the executable not existing
// (KindPluginNotFound) or a spawn/IO failure distinct from a plugin-level
// UNKNOWN (KindPluginIOError, used for logging only — the Result itself
// already reports OutcomeUnknown in that case).
func (r *Runner) Run(ctx context.Context, argv []string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errs.New(errs.KindInvalidArguments, "empty argv")
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("plugin execution timed out", "argv0", argv[0], "timeout", timeout)
		return Result{Outcome: OutcomeUnknown, Message: truncate(decodeLatin1(combined.Bytes()))}, nil
	}

	var execErr *exec.Error
	if errors.As(runErr, &execErr) {
		r.logger.Error("plugin not found", "argv0", argv[0], "error", execErr)
		return Result{Outcome: OutcomeUnknown}, errs.Wrap(errs.KindPluginNotFound, "check executable not found", execErr)
	}

	exitCode := 3 // UNKNOWN, Nagios convention, if we can't read an exit status at all
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		exitCode = 0
	case errors.As(runErr, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		r.logger.Error("plugin spawn failed", "argv0", argv[0], "error", runErr)
		return Result{Outcome: OutcomeUnknown}, errs.Wrap(errs.KindPluginIOError, "failed to run check executable", runErr)
	}

	message, perfdata := splitPerfdata(decodeLatin1(combined.Bytes()))

	return Result{
		Outcome:  outcomeFromExitCode(exitCode),
		Message:  truncate(message),
		Perfdata: perfdata,
	}, nil
}

func outcomeFromExitCode(code int) Outcome {
	switch code {
	case 0, 1: // OK and WARNING are both Nagios "success" per spec.md §6
		return OutcomeUp
	case 2: // CRITICAL
		return OutcomeDown
	default: // anything else is UNKNOWN per spec.md §6
		return OutcomeUnknown
	}
}

// splitPerfdata separates "text | perfdata..." at the first pipe, matching
// the Nagios plugin output convention.
func splitPerfdata(s string) (message, perfdata string) {
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s), ""
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen]
}

// decodeLatin1 lossily decodes plugin output as Latin-1, per spec.md §4.3:
// plugin authors cannot be relied on to emit valid UTF-8, and irisett's
// Python original treats plugin bytes the same way.
func decodeLatin1(b []byte) string {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
