package storage

import (
	"context"

	"github.com/poiesic/tdz/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Compact reclaims space held by overwritten and deleted records.
	Compact(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// ProjectRepository manages project records.
type ProjectRepository interface {
	// CreateProject creates a project. Returns ErrDuplicateKey if it exists.
	CreateProject(ctx context.Context, name, description string) (*core.Project, error)

	// GetProject retrieves a project by name.
	// Returns ErrNotFound if the project doesn't exist.
	GetProject(ctx context.Context, name string) (*core.Project, error)

	// ListProjects returns all projects ordered by name.
	ListProjects(ctx context.Context) ([]*core.Project, error)

	// UpdateProjectStatus changes the lifecycle status of a project.
	UpdateProjectStatus(ctx context.Context, name string, status core.ProjectStatus) (*core.Project, error)
}

// PatchFunc mutates an artifact in place during Update.
type PatchFunc func(a *core.Artifact) error

// ArtifactRepository provides project-partitioned persistence of artifacts.
// Each project's artifacts live in one ProjectContainer whose mutations are
// serialized by a per-container lock.
type ArtifactRepository interface {
	Repository
	ProjectRepository

	// Add stores a new artifact. An empty project is rewritten to the
	// default project, which is created on demand. Generates an ID when
	// none is set. Returns ErrDuplicateKey if the ID is already used and
	// core.ErrDependencyCycle if its dependencies would form a cycle.
	Add(ctx context.Context, a *core.Artifact) (*core.Artifact, error)

	// Get retrieves a single artifact by ID, including tombstones.
	// Returns ErrNotFound if the artifact doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.Artifact, error)

	// Update applies patch to a copy of the stored artifact and persists it.
	// ID, Kind, Project and CreatedAt are preserved; UpdatedAt is refreshed
	// and never moves backwards. The artifact is re-routed to the bucket of
	// its new status.
	Update(ctx context.Context, id core.ID, patch PatchFunc) (*core.Artifact, error)

	// UpdateStatus moves an artifact to the bucket of status atomically.
	UpdateStatus(ctx context.Context, id core.ID, status string) (*core.Artifact, error)

	// Delete moves an artifact into its container's deleted bucket.
	Delete(ctx context.Context, id core.ID) (*core.Artifact, error)

	// ListAcross returns matching artifacts of every project in container order.
	ListAcross(ctx context.Context, filter core.ArtifactFilter) ([]*core.Artifact, error)

	// ListIn returns matching artifacts of one project.
	ListIn(ctx context.Context, project string, filter core.ArtifactFilter) ([]*core.Artifact, error)

	// Stats counts a project's artifacts per bucket.
	Stats(ctx context.Context, project string) (core.ProjectStats, error)

	// Container returns a snapshot of a project's container.
	Container(ctx context.Context, project string) (*core.ProjectContainer, error)

	// ForEach calls fn for every stored artifact, tombstones included.
	// Iteration stops at the first error returned by fn.
	ForEach(ctx context.Context, fn func(a *core.Artifact) error) error
}

// CheckpointRepository persists processor progress so long-running jobs can resume.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a processor type.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
