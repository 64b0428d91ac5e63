package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/converse/functions"
)

const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 300 * time.Second
	maxCommandOutput      = 1024 * 1024
)

// Dangerous command patterns that should be blocked
var dangerousPatterns = []string{
	"rm ", "rm -", "rmdir", "unlink",
	"format", "mkfs", "dd ",
	"sudo rm", "sudo format", "sudo mkfs",
	"chmod 777", "chmod 000",
	"curl | sh", "curl | bash", "wget | sh", "wget | bash",
	"> /dev/sd", "of=/dev/sd", "of=/dev/hd",
	"fdisk ",
	"dd if=", "dd of=",
}

// isDangerousCommand checks if a command contains dangerous patterns
func isDangerousCommand(command string) bool {
	cmdLower := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(cmdLower, pattern) {
			return true
		}
	}

	// Block curl/wget pipelines that execute shells, even with args between.
	if (strings.Contains(cmdLower, "curl") || strings.Contains(cmdLower, "wget")) &&
		(strings.Contains(cmdLower, "| sh") || strings.Contains(cmdLower, "| bash")) {
		return true
	}

	// Block redirects to absolute paths outside the temp dirs.
	if parts := strings.SplitN(cmdLower, ">", 2); len(parts) == 2 {
		target := strings.TrimSpace(strings.TrimPrefix(parts[1], ">"))
		if filepath.IsAbs(target) && !strings.HasPrefix(target, "/tmp/") && !strings.HasPrefix(target, "/var/tmp/") {
			return true
		}
	}

	return false
}

// cappedBuffer keeps at most limit bytes and records whether more were written.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (s *Set) executeCommand(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Command    string   `json:"command"`
		Args       []string `json:"args"`
		Timeout    int      `json:"timeout"` // in seconds
		WorkingDir string   `json:"working_dir"`
		Stdin      string   `json:"stdin"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}

	fullCommand := payload.Command
	if len(payload.Args) > 0 {
		fullCommand += " " + strings.Join(payload.Args, " ")
	}
	if strings.TrimSpace(payload.Command) == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	if isDangerousCommand(fullCommand) {
		s.logger.Warn().Str("command", fullCommand).Msg("Blocked dangerous command")
		return nil, fmt.Errorf("command blocked: this command appears to be dangerous and could damage the system or delete files")
	}

	timeout := defaultCommandTimeout
	if payload.Timeout > 0 {
		timeout = time.Duration(payload.Timeout) * time.Second
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	workDir := s.workspace
	if payload.WorkingDir != "" {
		validWorkDir, err := validateWorkspacePath(s.workspace, payload.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
		workDir = validWorkDir
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, cmdArgs := payload.Command, payload.Args
	if len(cmdArgs) == 0 {
		if parts := strings.Fields(payload.Command); len(parts) > 1 {
			name, cmdArgs = parts[0], parts[1:]
		}
	}
	cmd := exec.CommandContext(cmdCtx, name, cmdArgs...) //#nosec G204 -- intentional command execution
	cmd.Dir = workDir
	if payload.Stdin != "" {
		cmd.Stdin = strings.NewReader(payload.Stdin)
	}

	stdout := &cappedBuffer{limit: maxCommandOutput}
	stderr := &cappedBuffer{limit: maxCommandOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logger.Info().Str("command", fullCommand).Str("dir", workDir).Dur("timeout", timeout).Msg("Executing command")
	err := cmd.Run()
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command failed: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return map[string]any{
		"command":   fullCommand,
		"exit_code": exitCode,
		"stdout":    stdout.buf.String(),
		"stderr":    stderr.buf.String(),
		"truncated": stdout.truncated || stderr.truncated,
		"success":   exitCode == 0,
	}, nil
}
