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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).WithContext(context.Background())
}

func sourceServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func singleResourceProject(dir string, sources ...Source) *Project {
	return &Project{
		Dir: dir,
		Models: []*Model{{
			Name:       "m",
			Operations: []*Operation{{Name: "op", Dependencies: []string{"res"}}},
			Resources:  []*Resource{{Name: "res", Sources: sources}},
		}},
	}
}

func TestResolver(t *testing.T) {
	srv := sourceServer(t)
	content := []byte("a,b\n1,2\n")
	sum := sha256.Sum256(content)
	goodSum := hex.EncodeToString(sum[:])

	tests := []struct {
		name          string
		sources       []Source
		wantLocations []string
		wantReason    string
	}{
		{
			name:          "file_and_url",
			sources:       []Source{{URI: "data.csv"}, {URI: srv.URL + "/ok"}},
			wantLocations: []string{"data.csv", srv.URL + "/ok"},
		},
		{
			name:          "file_with_matching_checksum",
			sources:       []Source{{URI: "file:data.csv", SHA256: goodSum}},
			wantLocations: []string{"data.csv"},
		},
		{
			name:          "redirect_is_followed",
			sources:       []Source{{URI: srv.URL + "/moved"}},
			wantLocations: []string{srv.URL + "/moved"},
		},
		{
			name:       "missing_file",
			sources:    []Source{{URI: "missing.csv"}},
			wantReason: "cannot find source file missing.csv",
		},
		{
			name:       "checksum_mismatch",
			sources:    []Source{{URI: "data.csv", SHA256: "deadbeef"}},
			wantReason: "data.csv has sha256 " + goodSum + ", expected deadbeef",
		},
		{
			name:       "url_not_found",
			sources:    []Source{{URI: srv.URL + "/gone"}},
			wantReason: srv.URL + "/gone returned status 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), content, 0644))

			node, err := NewOpNode(singleResourceProject(dir, tt.sources...), nil, "m", "op")
			require.NoError(t, err)
			g, err := Build(ctx, node)
			require.NoError(t, err)

			r := NewResolver(srv.Client())
			err = g.Walk(ctx, r)
			if tt.wantReason != "" {
				var depErr *DependencyError
				require.True(t, errors.As(err, &depErr), "expected DependencyError, got %v", err)
				assert.Equal(t, "m:op", depErr.Op)
				assert.Equal(t, "res", depErr.Spec)
				assert.Equal(t, tt.wantReason, depErr.Reason)
				return
			}
			require.NoError(t, err)

			var locations []string
			for _, res := range r.Resolved {
				loc := res.Location
				if res.Kind == SourceFile {
					rel, err := filepath.Rel(dir, loc)
					require.NoError(t, err)
					loc = rel
				}
				locations = append(locations, loc)
			}
			assert.Equal(t, tt.wantLocations, locations)
		})
	}
}

func TestResolverUnreachableURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/x"
	srv.Close()

	ctx := testContext(t)
	node, err := NewOpNode(singleResourceProject(t.TempDir(), Source{URI: url}), nil, "m", "op")
	require.NoError(t, err)
	g, err := Build(ctx, node)
	require.NoError(t, err)

	err = g.Walk(ctx, NewResolver(nil))
	var depErr *DependencyError
	require.True(t, errors.As(err, &depErr), "expected DependencyError, got %v", err)
	assert.Contains(t, depErr.Reason, "cannot reach "+url)
}

func TestWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	node, err := NewOpNode(singleResourceProject(t.TempDir(), Source{URI: "data.csv"}), nil, "m", "op")
	require.NoError(t, err)
	g, err := Build(ctx, node)
	require.NoError(t, err)

	err = g.Walk(ctx, NewResolver(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
