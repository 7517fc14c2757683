// Copyright 2025 walteh LLC
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

package run

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/tozd/go/errors"
)

// 🏷️ FileType tags a run file in the manifest
type FileType string

const (
	FileSourceCode FileType = "s"
	FileDependency FileType = "d"
	FileGenerated  FileType = "o"
	FileUnknown    FileType = "?"
)

// String returns the long name of the file type
func (t FileType) String() string {
	switch t {
	case FileSourceCode:
		return "source-code"
	case FileDependency:
		return "dependency"
	case FileGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// Known reports whether t is one of the recorded file types
func (t FileType) Known() bool {
	switch t {
	case FileSourceCode, FileDependency, FileGenerated, FileUnknown:
		return true
	}
	return false
}

// 📄 ManifestEntry is one line of the run manifest.
// Source is the location a dependency was resolved from ("file:..." or a URL).
type ManifestEntry struct {
	Type   FileType
	Path   string
	SHA256 string
	Source string
}

// MarshalJSON encodes the entry as [type, path, sha256, source]
func (e ManifestEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{string(e.Type), e.Path, e.SHA256, e.Source})
}

// UnmarshalJSON decodes [type, path, sha256?, source?]
func (e *ManifestEntry) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.Errorf("decoding manifest entry: %w", err)
	}
	if len(parts) < 2 {
		return errors.Errorf("manifest entry needs at least a type and a path, got %d fields", len(parts))
	}
	*e = ManifestEntry{Type: FileType(parts[0]), Path: filepath.ToSlash(parts[1])}
	if len(parts) > 2 {
		e.SHA256 = parts[2]
	}
	if len(parts) > 3 {
		e.Source = parts[3]
	}
	return nil
}

// ReadManifest decodes a JSON-lines manifest. Blank lines are ignored.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e ManifestEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Errorf("manifest line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf("reading manifest: %w", err)
	}
	return entries, nil
}

// Manifest returns the run manifest sorted by path. A run without a
// manifest has no recorded entries.
func (r *Run) Manifest() ([]ManifestEntry, error) {
	f, err := os.Open(r.metaPath(manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	entries, err := ReadManifest(f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// HasManifest reports whether the run recorded a manifest. An empty
// manifest still counts.
func (r *Run) HasManifest() bool {
	info, err := os.Stat(r.metaPath(manifestFile))
	return err == nil && !info.IsDir()
}

// WriteManifest replaces the run manifest
func (r *Run) WriteManifest(entries []ManifestEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return errors.Errorf("encoding manifest entry %s: %w", e.Path, err)
		}
	}
	path := r.metaPath(manifestFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Errorf("creating meta directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Errorf("writing manifest: %w", err)
	}
	return nil
}
