// Package eligibility evaluates step role rules against a principal
// directory and produces the concrete set of principals who may act on a
// step.
package eligibility

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Directory answers group membership and collection binding questions. The
// engine treats calls as blocking, idempotent reads; implementations may
// perform I/O internally.
type Directory interface {
	// GroupMembers returns the principal IDs belonging to the given group.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)

	// CollectionGroup returns the group bound to the given collection for
	// the given step, or "" if no binding exists.
	CollectionGroup(ctx context.Context, collectionID, stepID string) (string, error)
}

type directoryFile struct {
	Groups      map[string][]string          `yaml:"groups"`
	Collections map[string]map[string]string `yaml:"collections"` // collection -> step -> group
}

// StaticDirectory resolves groups and collection bindings from a static YAML
// file.
type StaticDirectory struct {
	path string
	mu   sync.RWMutex
	file directoryFile
}

// NewStaticDirectory creates a directory that loads memberships from path.
func NewStaticDirectory(path string) (*StaticDirectory, error) {
	d := &StaticDirectory{path: path}
	if err := d.Sync(); err != nil {
		return nil, err
	}
	return d, nil
}

// GroupMembers returns the configured members of the group.
func (d *StaticDirectory) GroupMembers(_ context.Context, groupID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.file.Groups[groupID]
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// CollectionGroup returns the group bound to the collection for the step.
func (d *StaticDirectory) CollectionGroup(_ context.Context, collectionID, stepID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	steps, ok := d.file.Collections[collectionID]
	if !ok {
		return "", nil
	}
	return steps[stepID], nil
}

// Sync reloads the directory file from disk.
func (d *StaticDirectory) Sync() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("eligibility: reading directory file %s: %w", d.path, err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("eligibility: parsing directory file %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.file = f
	d.mu.Unlock()

	return nil
}
