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

package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/runmerge/pkg/deps"
)

const scanConcurrency = 8

// 📦 LoadRegistry builds a registry from installed packages. Every direct
// subdirectory of each dir holding a project file with a package section is
// registered, in directory then name order.
func LoadRegistry(ctx context.Context, dirs []string, fileName string, namespaces ...deps.Namespace) (*deps.Registry, error) {
	if fileName == "" {
		fileName = DefaultFileName
	}
	if len(namespaces) == 0 {
		namespaces = deps.DefaultNamespaces()
	}
	reg := deps.NewRegistry(namespaces...)

	var candidates []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				zerolog.Ctx(ctx).Debug().Str("dir", dir).Msg("package directory does not exist")
				continue
			}
			return nil, errors.Errorf("reading package directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				candidates = append(candidates, filepath.Join(dir, e.Name(), fileName))
			}
		}
	}

	pkgs := make([]*deps.Package, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, path := range candidates {
		i, path := i, path
		g.Go(func() error {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return nil
			}
			f, err := Load(gctx, path)
			if err != nil {
				return err
			}
			pkgs[i] = f.Package
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range pkgs {
		if p != nil {
			reg.AddPackage(p)
		}
	}
	zerolog.Ctx(ctx).Debug().Int("packages", len(reg.Packages())).Msg("loaded package registry")
	return reg, nil
}
