// Package fileoperation provides the file_operation action, confined to a base directory.
package fileoperation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationAppend Operation = "append"
	OperationDelete Operation = "delete"
	OperationExists Operation = "exists"
)

var (
	ErrInvalidOperation = errors.New("invalid file operation")
	ErrMissingPath      = errors.New("missing file path")
	ErrPathEscapesRoot  = errors.New("path escapes the files root")
)

type Action struct {
	Root      string
	Operation Operation
	Path      string
	Content   string
}

func NewAction(root string, config map[string]any) (*Action, error) {
	operation, _ := config["operation"].(string)

	switch Operation(operation) {
	case OperationRead, OperationWrite, OperationAppend, OperationDelete, OperationExists:
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidOperation, operation)
	}

	path, _ := config["path"].(string)
	if path == "" {
		return nil, ErrMissingPath
	}

	return &Action{
		Root:      root,
		Operation: Operation(operation),
		Path:      path,
		Content:   contentString(config["content"]),
	}, nil
}

func contentString(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		encoded, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Sprint(c)
		}

		return string(encoded)
	}
}

// relative turns a rendered path into a clean path relative to Root.
// Leading separators and ".." segments are folded away before the path
// reaches the os.Root, which also refuses symlinks that point outside it.
func relative(path string) (string, error) {
	rel := strings.TrimPrefix(filepath.Clean(string(filepath.Separator)+path), string(filepath.Separator))
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %q", ErrMissingPath, path)
	}

	return rel, nil
}

// escapes maps the os.Root escape failure, which is unexported, onto ErrPathEscapesRoot.
func escapes(path string, err error) error {
	if err != nil && strings.Contains(err.Error(), "path escapes from parent") {
		return fmt.Errorf("%w: %s: %w", ErrPathEscapesRoot, path, err)
	}

	return err
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "file_operation_action", "operation", a.Operation)

	scope := input.Scope()

	path, err := template.RenderString(a.Path, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render path template: %w", err)
	}

	rel, err := relative(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files root: %w", err)
	}

	root, err := os.OpenRoot(a.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open files root: %w", err)
	}
	defer root.Close()

	result := map[string]any{"path": path, "operation": string(a.Operation)}

	switch a.Operation {
	case OperationRead:
		content, err := read(root, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to read file '%s': %w", path, escapes(path, err))
		}

		result["content"] = string(content)
		result["size"] = len(content)
	case OperationWrite, OperationAppend:
		content, err := template.RenderString(a.Content, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to render content template: %w", err)
		}

		if err := write(root, rel, content, a.Operation == OperationAppend); err != nil {
			return nil, fmt.Errorf("failed to write file '%s': %w", path, escapes(path, err))
		}

		result["bytes_written"] = len(content)
	case OperationDelete:
		err := root.Remove(rel)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to delete file '%s': %w", path, escapes(path, err))
		}

		result["deleted"] = err == nil
	case OperationExists:
		_, err := root.Stat(rel)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat file '%s': %w", path, escapes(path, err))
		}

		result["exists"] = err == nil
	}

	logger.InfoContext(ctx, "file operation completed", "path", path)

	return result, nil
}

func read(root *os.Root, rel string) ([]byte, error) {
	f, err := root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// mkdirAll creates every parent directory of rel inside root.
func mkdirAll(root *os.Root, rel string) error {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}

	current := ""
	for _, segment := range strings.Split(dir, string(filepath.Separator)) {
		current = filepath.Join(current, segment)

		if err := root.Mkdir(current, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}

	return nil
}

func write(root *os.Root, rel, content string, appendMode bool) error {
	if err := mkdirAll(root, rel); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := root.OpenFile(rel, flags, 0o644)
	if err != nil {
		return err
	}

	_, err = f.WriteString(content)

	return errors.Join(err, f.Close())
}
