package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
)

// CreateProject creates a project record.
func (r *ArtifactRepository) CreateProject(ctx context.Context, name, description string) (*core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is empty", storage.ErrInvalidQuery)
	}

	mu := r.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	now := r.timestamp()
	project := &core.Project{
		Name:        name,
		Description: description,
		Status:      core.ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := r.readProject(tx, name); err == nil {
			return fmt.Errorf("%w: project %s", storage.ErrDuplicateKey, name)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := tx.Set(makeProjectKey(name), storage.MarshalProject(project)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, wrapIO(err)
	}
	return project, nil
}

// GetProject retrieves a project by name.
func (r *ArtifactRepository) GetProject(ctx context.Context, name string) (*core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var project *core.Project
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := r.readProject(tx, name)
		project = p
		return err
	}, false)
	if err != nil {
		return nil, wrapIO(err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by name.
func (r *ArtifactRepository) ListProjects(ctx context.Context) ([]*core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var projects []*core.Project
	err := r.backend.scanPrefix(projectPrefix, func(key, val []byte) error {
		p, err := storage.UnmarshalProject(val)
		if err != nil {
			return fmt.Errorf("project %s: %w", key, err)
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return nil, wrapIO(err)
	}
	return projects, nil
}

// UpdateProjectStatus changes the lifecycle status of a project.
func (r *ArtifactRepository) UpdateProjectStatus(ctx context.Context, name string, status core.ProjectStatus) (*core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := map[core.ProjectStatus]bool{core.ProjectActive: true, core.ProjectArchived: true, core.ProjectCompleted: true}[status]; !ok {
		return nil, fmt.Errorf("%w: project status %d", core.ErrInvalidArgument, int(status))
	}

	mu := r.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	var project *core.Project
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := r.readProject(tx, name)
		if err != nil {
			return err
		}
		p.Status = status
		p.UpdatedAt = laterOf(r.timestamp(), p.UpdatedAt)
		project = p
		if err := tx.Set(makeProjectKey(name), storage.MarshalProject(p)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, wrapIO(err)
	}
	return project, nil
}

func (r *ArtifactRepository) readProject(tx *badger.Txn, name string) (*core.Project, error) {
	item, err := tx.Get(makeProjectKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: project %s", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var project *core.Project
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		project, unmarshalErr = storage.UnmarshalProject(val)
		return unmarshalErr
	})
	return project, err
}
