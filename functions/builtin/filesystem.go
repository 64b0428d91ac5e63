package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aschepis/backscratcher/converse/functions"
)

// validateWorkspacePath ensures the given path is within the workspace directory
// and prevents directory traversal attacks
func validateWorkspacePath(workspacePath, targetPath string) (string, error) {
	absWorkspace, err := filepath.Abs(filepath.Clean(workspacePath))
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	absTarget := filepath.Clean(targetPath)
	if !filepath.IsAbs(targetPath) {
		absTarget, err = filepath.Abs(filepath.Join(absWorkspace, targetPath))
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}

	if absTarget != absWorkspace &&
		!strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace: %s", targetPath)
	}
	return absTarget, nil
}

func (s *Set) readFile(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Path     string `json:"path"`
		MaxBytes int64  `json:"max_bytes"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}

	validPath, err := validateWorkspacePath(s.workspace, payload.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", payload.Path)
	}

	file, err := os.Open(validPath) //#nosec 304 -- validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close() //nolint:errcheck // File close error can be ignored

	var reader io.Reader = file
	if payload.MaxBytes > 0 {
		reader = io.LimitReader(file, payload.MaxBytes)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return map[string]any{
		"content":   string(content),
		"size":      len(content),
		"path":      payload.Path,
		"truncated": int64(len(content)) < info.Size(),
	}, nil
}

func (s *Set) writeFile(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Path       string `json:"path"`
		Content    string `json:"content"`
		CreateDirs bool   `json:"create_dirs"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}

	validPath, err := validateWorkspacePath(s.workspace, payload.Path)
	if err != nil {
		return nil, err
	}

	if payload.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(validPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create parent directories: %w", err)
		}
	}

	if err := os.WriteFile(validPath, []byte(payload.Content), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	s.logger.Info().Str("path", payload.Path).Int("bytes", len(payload.Content)).Msg("Wrote file")

	return map[string]any{
		"path":    payload.Path,
		"size":    len(payload.Content),
		"written": true,
	}, nil
}

func (s *Set) listDirectory(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Path          string `json:"path"`
		Recursive     bool   `json:"recursive"`
		IncludeHidden bool   `json:"include_hidden"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Path == "" {
		payload.Path = "."
	}

	validPath, err := validateWorkspacePath(s.workspace, payload.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", payload.Path)
	}

	entries := make([]map[string]any, 0)
	err = filepath.WalkDir(validPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == validPath {
			return nil
		}
		if !payload.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(validPath, path)
		if err != nil {
			return err
		}
		entries = append(entries, map[string]any{
			"path":   filepath.ToSlash(relPath),
			"name":   d.Name(),
			"is_dir": d.IsDir(),
			"size":   fi.Size(),
		})

		if d.IsDir() && !payload.Recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	return map[string]any{
		"path":    payload.Path,
		"entries": entries,
		"count":   len(entries),
	}, nil
}
