package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
)

// DefaultProject receives artifacts added without a project.
const DefaultProject = "general"

// maxDependencyVisits bounds the dependency traversal run on every write.
const maxDependencyVisits = 1000

// ArtifactRepository implements storage.ArtifactRepository for BadgerDB.
// Each project is one container record; an id index maps artifacts to
// their project so point reads don't scan containers.
type ArtifactRepository struct {
	backend        *Backend
	logger         *slog.Logger
	defaultProject string
	now            func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ storage.ArtifactRepository = (*ArtifactRepository)(nil)

// ArtifactOption configures an ArtifactRepository.
type ArtifactOption func(*ArtifactRepository)

// WithDefaultProject sets the project that receives artifacts added without one.
func WithDefaultProject(name string) ArtifactOption {
	return func(r *ArtifactRepository) {
		if name != "" {
			r.defaultProject = name
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ArtifactOption {
	return func(r *ArtifactRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(backend *Backend, opts ...ArtifactOption) *ArtifactRepository {
	r := &ArtifactRepository{
		backend:        backend,
		logger:         backend.logger.With("repository", "artifact"),
		defaultProject: DefaultProject,
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close is a no-op; the backend owns the database handle.
func (r *ArtifactRepository) Close() error {
	return nil
}

// Compact delegates to the backend.
func (r *ArtifactRepository) Compact(ctx context.Context) error {
	return r.backend.Compact(ctx)
}

// DefaultProjectName returns the project used for artifacts added without one.
func (r *ArtifactRepository) DefaultProjectName() string {
	return r.defaultProject
}

func (r *ArtifactRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// lockFor returns the mutex serializing writes to project's container.
func (r *ArtifactRepository) lockFor(project string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	key := core.ProjectHash(project)
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// Add stores a new artifact.
func (r *ArtifactRepository) Add(ctx context.Context, artifact *core.Artifact) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: artifact is nil", core.ErrInvalidArgument)
	}

	a := artifact.Clone()
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.Project == "" {
		a.Project = r.defaultProject
	}
	a.Tags = core.NormalizeTags(a.Tags)
	if err := core.ValidateArtifact(a); err != nil {
		return nil, err
	}
	now := r.timestamp()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Microsecond)
	a.UpdatedAt = a.CreatedAt

	mu := r.lockFor(a.Project)
	mu.Lock()
	defer mu.Unlock()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeArtifactIndexKey(a.ID)); err == nil {
			return fmt.Errorf("%w: artifact %s", storage.ErrDuplicateKey, a.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		container, err := r.readContainer(tx, a.Project)
		if err != nil {
			return err
		}
		containers := map[string]*core.ProjectContainer{a.Project: container}
		if err := r.checkCycle(tx, a, containers); err != nil {
			return err
		}

		project, err := r.readProject(tx, a.Project)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug("creating project on first artifact", "project", a.Project)
			project = &core.Project{Name: a.Project, Status: core.ProjectActive, CreatedAt: now}
		} else if err != nil {
			return err
		}
		project.ArtifactIDs = append(project.ArtifactIDs, a.ID)
		project.UpdatedAt = now

		container.Put(a.Clone())
		if err := tx.Set(makeContainerKey(a.Project), storage.MarshalContainer(container)); err != nil {
			return err
		}
		if err := tx.Set(makeProjectKey(a.Project), storage.MarshalProject(project)); err != nil {
			return err
		}
		if err := tx.Set(makeArtifactIndexKey(a.ID), []byte(a.Project)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, wrapIO(err)
	}
	return a, nil
}

// Get retrieves a single artifact by ID.
func (r *ArtifactRepository) Get(ctx context.Context, id core.ID) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *core.Artifact
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		a, err := r.lookup(tx, id, map[string]*core.ProjectContainer{})
		result = a
		return err
	}, false)
	if err != nil {
		return nil, wrapIO(err)
	}
	return result, nil
}

// Update applies patch to a copy of the stored artifact and persists it.
// Tombstoned artifacts are read-only.
func (r *ArtifactRepository) Update(ctx context.Context, id core.ID, patch storage.PatchFunc) (*core.Artifact, error) {
	return r.mutate(ctx, id, func(c *core.ProjectContainer, a *core.Artifact) error {
		if patch == nil {
			return nil
		}
		return patch(a)
	})
}

// UpdateStatus moves an artifact to the bucket of status. Tombstoned
// artifacts cannot change status.
func (r *ArtifactRepository) UpdateStatus(ctx context.Context, id core.ID, status string) (*core.Artifact, error) {
	return r.mutate(ctx, id, func(c *core.ProjectContainer, a *core.Artifact) error {
		return a.SetStatus(status)
	})
}

// Delete moves an artifact into its container's deleted bucket.
// Deleting a tombstone returns it unchanged.
func (r *ArtifactRepository) Delete(ctx context.Context, id core.ID) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	project, err := r.projectOf(id)
	if err != nil {
		return nil, err
	}

	mu := r.lockFor(project)
	mu.Lock()
	defer mu.Unlock()

	var result *core.Artifact
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		container, err := r.readContainer(tx, project)
		if err != nil {
			return err
		}
		existing, bucket, ok := container.Find(id)
		if !ok {
			return fmt.Errorf("%w: artifact %s", storage.ErrNotFound, id)
		}
		if bucket == core.BucketDeleted {
			result = existing.Clone()
			return nil
		}
		prev := existing.UpdatedAt
		a, _ := container.Tombstone(id)
		a.UpdatedAt = laterOf(r.timestamp(), prev)
		result = a.Clone()
		if err := tx.Set(makeContainerKey(project), storage.MarshalContainer(container)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, wrapIO(err)
	}
	return result, nil
}

// mutate runs fn on a copy of the stored artifact under the container lock,
// then validates, re-routes and persists it. Tombstones are rejected with
// core.ErrConflict before fn runs.
func (r *ArtifactRepository) mutate(ctx context.Context, id core.ID, fn func(*core.ProjectContainer, *core.Artifact) error) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	project, err := r.projectOf(id)
	if err != nil {
		return nil, err
	}

	mu := r.lockFor(project)
	mu.Lock()
	defer mu.Unlock()

	var result *core.Artifact
	var patchErr error
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		container, err := r.readContainer(tx, project)
		if err != nil {
			return err
		}
		existing, bucket, ok := container.Find(id)
		if !ok {
			return fmt.Errorf("%w: artifact %s", storage.ErrNotFound, id)
		}
		if bucket == core.BucketDeleted {
			patchErr = fmt.Errorf("%w: artifact %s is deleted", core.ErrConflict, id)
			return patchErr
		}

		a := existing.Clone()
		if err := fn(container, a); err != nil {
			patchErr = err
			return err
		}
		a.ID = existing.ID
		a.Kind = existing.Kind
		a.Project = existing.Project
		a.CreatedAt = existing.CreatedAt
		a.Tags = core.NormalizeTags(a.Tags)
		a.UpdatedAt = laterOf(r.timestamp(), existing.UpdatedAt)
		if err := core.ValidateArtifact(a); err != nil {
			return err
		}
		if !slices.Equal(existing.Dependencies(), a.Dependencies()) {
			if err := r.checkCycle(tx, a, map[string]*core.ProjectContainer{project: container}); err != nil {
				return err
			}
		}

		container.Put(a)
		result = a.Clone()
		if err := tx.Set(makeContainerKey(project), storage.MarshalContainer(container)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if patchErr != nil {
		return nil, patchErr
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	return result, nil
}

// ListAcross returns matching artifacts of every project in container order.
func (r *ArtifactRepository) ListAcross(ctx context.Context, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*core.Artifact
	err := r.scanContainers(func(c *core.ProjectContainer) error {
		if filter.Project != "" && c.Project != filter.Project {
			return nil
		}
		out = append(out, c.Filter(filter)...)
		return nil
	})
	if err != nil {
		return nil, wrapIO(err)
	}
	return out, nil
}

// ListIn returns matching artifacts of one project.
func (r *ArtifactRepository) ListIn(ctx context.Context, project string, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	c, err := r.Container(ctx, project)
	if err != nil {
		return nil, err
	}
	return c.Filter(filter), nil
}

// Stats counts a project's artifacts per bucket.
func (r *ArtifactRepository) Stats(ctx context.Context, project string) (core.ProjectStats, error) {
	c, err := r.Container(ctx, project)
	if err != nil {
		return core.ProjectStats{}, err
	}
	return c.Stats(), nil
}

// Container returns a snapshot of a project's container. Returns
// ErrNotFound if the project is unknown.
func (r *ArtifactRepository) Container(ctx context.Context, project string) (*core.ProjectContainer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if project == "" {
		project = r.defaultProject
	}
	var result *core.ProjectContainer
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := r.readProject(tx, project); err != nil {
			return err
		}
		c, err := r.readContainer(tx, project)
		result = c
		return err
	}, false)
	if err != nil {
		return nil, wrapIO(err)
	}
	return result, nil
}

// ForEach calls fn for every stored artifact in container order.
func (r *ArtifactRepository) ForEach(ctx context.Context, fn func(a *core.Artifact) error) error {
	return r.scanContainers(func(c *core.ProjectContainer) error {
		for _, a := range c.All() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ArtifactRepository) scanContainers(fn func(c *core.ProjectContainer) error) error {
	return r.backend.scanPrefix(containerPrefix, func(key, val []byte) error {
		c, err := storage.UnmarshalContainer(val)
		if err != nil {
			return fmt.Errorf("container %s: %w", key, err)
		}
		return fn(c)
	})
}

// projectOf resolves the project holding id through the artifact index.
func (r *ArtifactRepository) projectOf(id core.ID) (string, error) {
	var project string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := readIndex(tx, id)
		project = p
		return err
	}, false)
	if err != nil {
		return "", wrapIO(err)
	}
	return project, nil
}

func readIndex(tx *badger.Txn, id core.ID) (string, error) {
	item, err := tx.Get(makeArtifactIndexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: artifact %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// lookup finds an artifact by id, caching decoded containers in containers.
func (r *ArtifactRepository) lookup(tx *badger.Txn, id core.ID, containers map[string]*core.ProjectContainer) (*core.Artifact, error) {
	project, err := readIndex(tx, id)
	if err != nil {
		return nil, err
	}
	c, ok := containers[project]
	if !ok {
		c, err = r.readContainer(tx, project)
		if err != nil {
			return nil, err
		}
		containers[project] = c
	}
	a, _, found := c.Find(id)
	if !found {
		return nil, fmt.Errorf("%w: index points %s at %s but container lacks it", core.ErrValidation, id, project)
	}
	return a.Clone(), nil
}

// readContainer loads a project's container, or an empty one if none is stored.
func (r *ArtifactRepository) readContainer(tx *badger.Txn, project string) (*core.ProjectContainer, error) {
	item, err := tx.Get(makeContainerKey(project))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.NewProjectContainer(project), nil
	}
	if err != nil {
		return nil, err
	}
	var c *core.ProjectContainer
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		c, unmarshalErr = storage.UnmarshalContainer(val)
		return unmarshalErr
	})
	return c, err
}

// checkCycle walks the dependency graph from a's dependencies and rejects
// the write if it leads back to a. The walk is bounded; graphs too large to
// prove acyclic are rejected as well.
func (r *ArtifactRepository) checkCycle(tx *badger.Txn, a *core.Artifact, containers map[string]*core.ProjectContainer) error {
	stack := append([]core.ID(nil), a.Dependencies()...)
	visited := make(map[core.ID]struct{})

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == a.ID {
			return fmt.Errorf("%w: %w: %s reaches itself", core.ErrInvalidArgument, core.ErrDependencyCycle, a.ID)
		}
		if _, seen := visited[id]; seen {
			continue
		}
		if len(visited) >= maxDependencyVisits {
			return fmt.Errorf("%w: %w: dependency walk from %s exceeded %d nodes",
				core.ErrInvalidArgument, core.ErrDependencyCycle, a.ID, maxDependencyVisits)
		}
		visited[id] = struct{}{}

		dep, err := r.lookup(tx, id, containers)
		if errors.Is(err, storage.ErrNotFound) {
			// Dangling references are allowed; ids are opaque edges.
			continue
		}
		if err != nil {
			return err
		}
		stack = append(stack, dep.Dependencies()...)
	}
	return nil
}

func laterOf(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

// wrapIO classifies raw badger errors as storage I/O failures while
// leaving domain errors untouched.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		core.ErrNotFound, core.ErrInvalidArgument, core.ErrConflict,
		core.ErrSerialization, core.ErrValidation, core.ErrStorageIO,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", core.ErrStorageIO, err)
}
