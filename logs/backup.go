// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// BackupPrefix starts every backup file name.
const BackupPrefix = "embeddings_backup_"

// BackupInfo describes a backup file on disk.
type BackupInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Backup writes entries as one JSON object keyed by cache key into dir and
// returns the file path with the keys of entries left out because their
// vectors hold NaN or infinite components. Names embed the timestamp at
// second resolution; a numeric suffix keeps concurrent backups from
// overwriting each other.
func Backup(dir string, entries []cache.Entry, at time.Time) (string, []string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, ioError("create directory", dir, err)
	}
	snapshot := make(map[string]cache.Entry, len(entries))
	var skipped []string
	for _, e := range entries {
		if !core.IsFinite(e.Vector) {
			skipped = append(skipped, e.Key())
			continue
		}
		snapshot[e.Key()] = e
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", nil, serializationError("marshal backup", err)
	}

	base := BackupPrefix + at.UTC().Format("20060102_150405")
	path := filepath.Join(dir, base)
	for n := 1; ; n++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", nil, ioError("stat", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d", base, n))
	}

	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return "", nil, err
	}
	return path, skipped, nil
}

// Restore reads a backup. Entries come back ordered by creation time, then
// key. Vectors are not validated here.
func Restore(path string) ([]cache.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	var snapshot map[string]cache.Entry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, serializationError("decode backup "+filepath.Base(path), err)
	}

	entries := make([]cache.Entry, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b cache.Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
	return entries, nil
}

// ListBackups lists the backups in dir sorted by name, which is also
// chronological. A missing directory has no backups.
func ListBackups(dir string) ([]BackupInfo, error) {
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, ioError("list", dir, err)
	}

	out := []BackupInfo{}
	for _, de := range des {
		if de.IsDir() || !strings.HasPrefix(de.Name(), BackupPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			Path:    filepath.Join(dir, de.Name()),
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b BackupInfo) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
