package badger

import (
	"github.com/poiesic/tdz/core"
)

// Key prefixes. Containers are keyed by the md5 of the project name.
const (
	projectPrefix       = "projects/"
	containerPrefix     = "project_tasks/"
	artifactIndexPrefix = "artifact_index/"
	checkpointPrefix    = "checkpoints/"
)

// makeProjectKey generates a key for a project record by name.
func makeProjectKey(name string) []byte {
	return []byte(projectPrefix + name)
}

// makeContainerKey generates a key for a project container.
// Format: prefix + md5(project name)
func makeContainerKey(project string) []byte {
	return []byte(containerPrefix + core.ProjectHash(project))
}

// makeArtifactIndexKey generates a key mapping an artifact id to its project.
func makeArtifactIndexKey(id core.ID) []byte {
	return []byte(artifactIndexPrefix + string(id))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + processorType)
}
