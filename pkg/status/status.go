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

package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📊 FileStatus represents what a copy did to a target file
type FileStatus int

const (
	StatusUnknown   FileStatus = iota
	StatusNew                  // File didn't exist in the target directory
	StatusModified             // File existed with different content
	StatusUnchanged            // File existed with the same content
)

// String returns a string representation of FileStatus
func (s FileStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// 📄 FileInfo contains metadata about a copied file
type FileInfo struct {
	Path     string      // Path relative to the base directory
	Status   FileStatus  // What the copy did
	Size     int64       // File size in bytes
	Mode     os.FileMode // File permissions
	Checksum string      // SHA-256 of the copied content
}

// 🔧 Manager copies files into a base directory and tracks what changed
type Manager struct {
	baseDir   string          // Base directory for all operations
	logger    *zerolog.Logger // Logger for status updates
	formatter FileFormatter   // Formatter for status messages

	mu    sync.RWMutex
	files map[string]FileInfo

	total     int
	processed int
}

// 🏭 New creates a new status manager
func New(baseDir string, logger *zerolog.Logger) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{
		baseDir:   filepath.Clean(baseDir),
		logger:    logger,
		formatter: NewDefaultFileFormatter(),
		files:     make(map[string]FileInfo),
	}
}

func (m *Manager) getAbsPath(path string) string {
	return filepath.Join(m.baseDir, filepath.FromSlash(path))
}

// FileExists reports whether path exists under the base directory. Broken
// symlinks count as existing.
func (m *Manager) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(m.getAbsPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Errorf("checking file existence: %w", err)
}

// 📥 CopyFile copies src to path under the base directory. The content is
// written to a temp file next to the destination and renamed into place.
func (m *Manager) CopyFile(ctx context.Context, src, path string) (info FileInfo, err error) {
	defer func() {
		if err != nil {
			m.logger.Debug().Str("path", path).Msg(m.formatter.FormatError(err))
		}
	}()

	dst := m.getAbsPath(path)

	srcFile, err := os.Open(src)
	if err != nil {
		return FileInfo{}, errors.Errorf("opening source file: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return FileInfo{}, errors.Errorf("reading source file info: %w", err)
	}

	previous, existed, err := checksumFile(dst)
	if err != nil {
		return FileInfo{}, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return FileInfo{}, errors.Errorf("creating parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return FileInfo{}, errors.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), srcFile)
	if err != nil {
		tmp.Close()
		cleanup()
		return FileInfo{}, errors.Errorf("copying file content: %w", err)
	}
	if err := tmp.Chmod(srcInfo.Mode().Perm()); err != nil {
		tmp.Close()
		cleanup()
		return FileInfo{}, errors.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return FileInfo{}, errors.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return FileInfo{}, errors.Errorf("renaming temp file: %w", err)
	}

	info = FileInfo{
		Path:     filepath.ToSlash(path),
		Status:   StatusNew,
		Size:     size,
		Mode:     srcInfo.Mode().Perm(),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}
	if existed {
		info.Status = StatusModified
		if previous == info.Checksum {
			info.Status = StatusUnchanged
		}
	}

	m.track(info)
	return info, nil
}

// checksumFile hashes an existing regular file. Missing files and
// non-regular files report existed=false and existed=true respectively with
// an empty checksum.
func checksumFile(path string) (string, bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Errorf("checking destination: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", true, errors.Errorf("opening destination: %w", err)
	}
	defer f.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", true, errors.Errorf("reading destination: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), true, nil
}

func (m *Manager) track(info FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[info.Path] = info
	m.logger.Debug().
		Str("path", info.Path).
		Str("status", info.Status.String()).
		Msg(m.formatter.FormatFileOperation(info))
}

// ListFiles returns every tracked file ordered by path
func (m *Manager) ListFiles(ctx context.Context) []FileInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]FileInfo, 0, len(m.files))
	for _, info := range m.files {
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func (m *Manager) StartOperation(ctx context.Context, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = total
	m.processed = 0
	m.logger.Debug().Int("total", total).Msg(m.formatter.FormatProgress(0, total))
}

func (m *Manager) UpdateProgress(ctx context.Context, processed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed = processed
	m.logger.Debug().
		Int("processed", processed).
		Int("total", m.total).
		Msg(m.formatter.FormatProgress(processed, m.total))
}

func (m *Manager) FinishOperation(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().
		Int("processed", m.processed).
		Int("total", m.total).
		Msg(m.formatter.FormatProgress(m.processed, m.total))
}
