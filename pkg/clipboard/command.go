package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// CommandTimeout is the maximum time allowed for clipboard operations.
const CommandTimeout = 5 * time.Second

// CommandConfig holds configuration for command execution.
type CommandConfig struct {
	// Logger for debugging command execution
	Logger Logger

	// Timeout for command execution (default: CommandTimeout)
	Timeout time.Duration

	// MaxOutputSize limits the amount of data read (default: protocol.DefaultMaxItemSize)
	MaxOutputSize int64
}

// DefaultCommandConfig returns config with production-ready defaults.
func DefaultCommandConfig() *CommandConfig {
	return &CommandConfig{
		Timeout:       CommandTimeout,
		MaxOutputSize: protocol.DefaultMaxItemSize,
		Logger:        noopLogger{},
	}
}

func (c *CommandConfig) withDefaults() *CommandConfig {
	if c == nil {
		return DefaultCommandConfig()
	}
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = CommandTimeout
	}
	if out.MaxOutputSize <= 0 {
		out.MaxOutputSize = protocol.DefaultMaxItemSize
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	return &out
}

// RunCommand executes a command and returns its standard output. Exit code 1
// with no output is treated as an empty clipboard, which is how several tools
// report one.
func RunCommand(ctx context.Context, name string, args []string, config *CommandConfig) ([]byte, error) {
	config = config.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	config.Logger.Debug("running clipboard command", "command", name, "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	out := &limitedWriter{buf: &stdout, limit: config.MaxOutputSize}
	cmd.Stdout = out
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("command %s timed out after %v: %w", name, config.Timeout, context.DeadlineExceeded)
	}

	if out.exceeded {
		return nil, fmt.Errorf("%w: command %s output exceeds %d bytes", ErrContentTooLarge, name, config.MaxOutputSize)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 1 && stdout.Len() == 0 {
				return []byte{}, nil
			}
			return nil, fmt.Errorf("command %s failed with exit code %d: %s: %w",
				name, exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()), err)
		}
		return nil, fmt.Errorf("command %s failed: %w", name, err)
	}

	return stdout.Bytes(), nil
}

// RunCommandWithInput executes a command with input on stdin.
func RunCommandWithInput(ctx context.Context, name string, args []string, input []byte, config *CommandConfig) error {
	config = config.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	config.Logger.Debug("running clipboard command", "command", name, "args", args, "bytes", len(input))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("command %s timed out after %v: %w", name, config.Timeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s failed: %s: %w", name, bytes.TrimSpace(stderr.Bytes()), err)
	}

	return nil
}

var errOutputLimit = errors.New("output limit reached")

// limitedWriter fails once more than limit bytes have been written, which makes
// exec stop copying the command's output.
type limitedWriter struct {
	buf      *bytes.Buffer
	limit    int64
	exceeded bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if int64(w.buf.Len()+len(p)) > w.limit {
		w.exceeded = true
		return 0, errOutputLimit
	}
	return w.buf.Write(p)
}
