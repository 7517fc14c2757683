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

package merge

import (
	"fmt"
	"path/filepath"

	"github.com/walteh/runmerge/pkg/run"
	"gitlab.com/tozd/go/errors"
)

// ⏭️ SkipReason says why a run file is not copied. The codes are part of the
// JSON protocol and must not change.
type SkipReason string

const (
	SkipUnchanged     SkipReason = "u"
	SkipNonProjectDep SkipReason = "npd"
	SkipDependency    SkipReason = "d"
	SkipSourceCode    SkipReason = "s"
	SkipExcluded      SkipReason = "x"
	SkipUnknown       SkipReason = "?"
)

// String returns a human readable reason
func (r SkipReason) String() string {
	switch r {
	case SkipUnchanged:
		return "unchanged"
	case SkipNonProjectDep:
		return "non-project dependency"
	case SkipDependency:
		return "skipped dependency"
	case SkipSourceCode:
		return "skipped source code"
	case SkipExcluded:
		return "excluded"
	case SkipUnknown:
		return "unknown file type"
	default:
		return "unknown reason " + string(r)
	}
}

// 📄 File is a planned copy from a run into the target directory
type File struct {
	RunID      string
	Type       run.FileType
	RunPath    string
	SrcPath    string
	TargetPath string
}

// ⏭️ SkipFile is a run file deliberately left out of a merge
type SkipFile struct {
	Type       run.FileType
	RunPath    string
	TargetPath string
	Reason     SkipReason
	// Note carries the classification origin for unknown files
	Note string
}

// Path returns the target path when known, else the run path
func (s SkipFile) Path() string {
	if s.TargetPath != "" {
		return s.TargetPath
	}
	return s.RunPath
}

// ReasonText formats the skip reason, including the file type note for
// unknown files
func (s SkipFile) ReasonText() string {
	if s.Reason == SkipUnknown && s.Note != "" {
		return fmt.Sprintf("%s (%s)", s.Reason, s.Note)
	}
	return s.Reason.String()
}

// 📦 Merge is the plan for copying a run's files into a target directory
type Merge struct {
	Run       *run.Run
	TargetDir string
	ToCopy    []File
	ToSkip    []SkipFile
}

// TargetPaths returns the target paths of the files to copy, in copy order
func (m *Merge) TargetPaths() []string {
	out := make([]string, 0, len(m.ToCopy))
	for _, f := range m.ToCopy {
		out = append(out, f.TargetPath)
	}
	return out
}

// Dest returns the absolute destination of a planned file
func (m *Merge) Dest(f File) string {
	return filepath.Join(m.TargetDir, filepath.FromSlash(f.TargetPath))
}

// ❌ Error is a user facing planning failure
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(format string, args ...any) error {
	return errors.WithStack(&Error{msg: fmt.Sprintf(format, args...)})
}
