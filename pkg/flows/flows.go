// Package flows is the catalog of flow definitions that executions are started from.
package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

var (
	ErrFlowNotFound  = errors.New("flow not found")
	ErrInvalidFlowID = errors.New("invalid flow id")
)

var validFlowID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

type Repository interface {
	List(ctx context.Context) ([]*models.Flow, error)
	Get(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
}

// FileRepository keeps one <id>.json document per flow under root.
type FileRepository struct {
	root string
}

func NewFileRepository(root string) *FileRepository {
	return &FileRepository{root: strings.TrimPrefix(root, "file://")}
}

func (r *FileRepository) List(ctx context.Context) ([]*models.Flow, error) {
	matches, err := filepath.Glob(filepath.Join(r.root, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	slices.Sort(matches)

	result := make([]*models.Flow, 0, len(matches))

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flow, err := Load(match)
		if err != nil {
			return nil, err
		}

		result = append(result, flow)
	}

	return result, nil
}

func (r *FileRepository) Get(_ context.Context, id string) (*models.Flow, error) {
	if !validFlowID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFlowID, id)
	}

	flow, err := Load(r.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}

	return flow, err
}

func (r *FileRepository) Save(_ context.Context, flow *models.Flow) error {
	if flow == nil || !validFlowID.MatchString(flow.ID) {
		return ErrInvalidFlowID
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	if err := os.MkdirAll(r.root, 0o750); err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

	tmp := r.path(flow.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write flow %s: %w", flow.ID, err)
	}

	return os.Rename(tmp, r.path(flow.ID))
}

func (r *FileRepository) path(id string) string {
	return filepath.Join(r.root, id+".json")
}

// Load reads a single flow document from path.
func Load(path string) (*models.Flow, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	flow, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flow %s: %w", path, err)
	}

	return flow, nil
}

// Decode parses a flow document.
func Decode(r io.Reader) (*models.Flow, error) {
	var flow models.Flow

	if err := json.NewDecoder(r).Decode(&flow); err != nil {
		return nil, err
	}

	return &flow, nil
}
