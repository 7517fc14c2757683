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

package opts

import (
	"io"

	"github.com/walteh/runmerge/pkg/config"
	"github.com/walteh/runmerge/pkg/merge"
	"github.com/walteh/runmerge/pkg/run"
)

// RootOpts is shared by every command. Config is loaded before a command runs.
type RootOpts struct {
	ConfigFile string
	Debug      bool
	Config     *config.Config

	Stdout io.Writer
	Stderr io.Writer
	// Confirmer answers merge prompts
	Confirmer merge.Confirmer
}

// Store returns the run store from the config
func (o *RootOpts) Store() *run.Store {
	return run.NewStore(o.Config.RunsDir)
}
