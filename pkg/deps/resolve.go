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

package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Resolution records one source checked by a Resolver
type Resolution struct {
	Spec string
	// Location is the absolute file path or the URL
	Location string
	Kind     SourceKind
}

var _ Visitor = (*Resolver)(nil)

// 🔎 Resolver checks that every source in a graph is reachable. File
// sources must exist; URL sources must answer a HEAD request.
type Resolver struct {
	Client   *http.Client
	Resolved []Resolution
}

// NewResolver creates a resolver using client, or http.DefaultClient when nil
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{Client: client}
}

func (r *Resolver) VisitInitOp(ctx context.Context, n *InitOpNode) error {
	zerolog.Ctx(ctx).Debug().Str("op", n.Op.Name()).Msg("initializing operation")
	return nil
}

func (r *Resolver) VisitOp(ctx context.Context, n *OpNode) error {
	zerolog.Ctx(ctx).Debug().Str("op", n.Name()).Int("resources", len(n.Resources)).Msg("operation dependencies resolved")
	return nil
}

func (r *Resolver) VisitResource(ctx context.Context, n *ResourceNode) error {
	return nil
}

func (r *Resolver) VisitFile(ctx context.Context, n *FileNode) error {
	spec := n.Resource.Resolved.Spec
	opName := n.Resource.Op.Name()

	path := n.Source.Path()
	if !filepath.IsAbs(path) {
		path = filepath.Join(n.Resource.Resolved.Dir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newDependencyError(opName, spec, fmt.Sprintf("cannot find source file %s", n.Source.Path()))
		}
		return errors.Errorf("checking source file %s: %w", path, err)
	}

	if n.Source.SHA256 != "" && !info.IsDir() {
		sum, err := fileSHA256(path)
		if err != nil {
			return errors.Errorf("hashing source file %s: %w", path, err)
		}
		if !strings.EqualFold(sum, n.Source.SHA256) {
			return newDependencyError(opName, spec, fmt.Sprintf("%s has sha256 %s, expected %s", n.Source.Path(), sum, n.Source.SHA256))
		}
	}

	zerolog.Ctx(ctx).Debug().Str("spec", spec).Str("path", path).Msg("resolved file source")
	r.Resolved = append(r.Resolved, Resolution{Spec: spec, Location: path, Kind: SourceFile})
	return nil
}

func (r *Resolver) VisitURL(ctx context.Context, n *URLNode) error {
	spec := n.Resource.Resolved.Spec
	opName := n.Resource.Op.Name()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.Source.URI, nil)
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
		return newDependencyError(opName, spec, fmt.Sprintf("cannot reach %s: %v", n.Source.URI, err))
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return newDependencyError(opName, spec, fmt.Sprintf("%s returned status %d", n.Source.URI, resp.StatusCode))
	}

	zerolog.Ctx(ctx).Debug().Str("spec", spec).Str("url", n.Source.URI).Int("status", resp.StatusCode).Msg("resolved url source")
	r.Resolved = append(r.Resolved, Resolution{Spec: spec, Location: n.Source.URI, Kind: SourceURL})
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
