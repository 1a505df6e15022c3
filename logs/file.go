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
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// maxLine bounds a single JSON line. A 4096-dimension vector fits easily.
const maxLine = 16 << 20

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path, so readers see either the old or the new contents.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioError("create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioError("create temp file", dir, err)
	}
	name := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(name)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ioError("write", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioError("sync", name, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return ioError("chmod", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return ioError("close", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return ioError("rename", path, err)
	}
	return nil
}

// appendLine appends one JSON line to path, creating it if needed.
func appendLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return serializationError("marshal record", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ioError("open", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return ioError("append", path, err)
	}
	if err := f.Close(); err != nil {
		return ioError("close", path, err)
	}
	return nil
}

// readLines decodes every well-formed JSON line of path. A missing file
// yields no records. skipped counts lines that failed to decode.
func readLines[T any](path string, logger *slog.Logger) (records []T, skipped int, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, 0, nil
	}
	if err != nil {
		return nil, 0, ioError("open", path, err)
	}
	defer f.Close()

	records = []T{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			logger.Warn("skipping malformed log line", "path", path, "line", lineNo, "err", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, ioError("read", path, err)
	}
	return records, skipped, nil
}
