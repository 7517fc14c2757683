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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultFileName is the config file looked up when none is given
	DefaultFileName = ".runmerge.yaml"

	EnvRunsDir = "RUNMERGE_RUNS_DIR"
	EnvGit     = "RUNMERGE_GIT"

	PreviewSummary = "summary"
	PreviewDetail  = "detail"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config is the runmerge tool configuration
type Config struct {
	RunsDir     string   `json:"runs_dir" yaml:"runs_dir"`
	Exclude     []string `json:"exclude" yaml:"exclude"`
	Preview     string   `json:"preview" yaml:"preview"`
	VCS         []string `json:"vcs" yaml:"vcs"`
	GitBinary   string   `json:"git_binary" yaml:"git_binary"`
	ProjectFile string   `json:"project_file" yaml:"project_file"`
	// PackageDirs hold installed packages, one per subdirectory
	PackageDirs []string `json:"package_dirs" yaml:"package_dirs"`

	location string
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// 🎯 Load loads the configuration from path. A missing file is not an error;
// defaults apply. Values from a .env file next to the config and from the
// process environment override the file.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	cfg, err := loadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(ctx, filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFile(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zerolog.Ctx(ctx).Debug().Str("path", path).Msg("no config file, using defaults")
			return &Config{}, nil
		}
		return nil, errors.Errorf("reading config file: %w", err)
	}

	// Get parser
	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	// Parse config
	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	cfg.location = path
	return cfg, nil
}

func (cfg *Config) applyEnv(ctx context.Context, envFile string) error {
	env := map[string]string{}
	if _, err := os.Stat(envFile); err == nil {
		read, err := godotenv.Read(envFile)
		if err != nil {
			return errors.Errorf("reading %s: %w", envFile, err)
		}
		env = read
		zerolog.Ctx(ctx).Debug().Str("path", envFile).Msg("loaded env overrides")
	}

	lookup := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	if v, ok := lookup(EnvRunsDir); ok && v != "" {
		cfg.RunsDir = v
	}
	if v, ok := lookup(EnvGit); ok && v != "" {
		cfg.GitBinary = v
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.RunsDir == "" {
		cfg.RunsDir = "runs"
	}
	if cfg.Preview == "" {
		cfg.Preview = PreviewSummary
	}
	if cfg.VCS == nil {
		cfg.VCS = []string{"git"}
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	if cfg.ProjectFile == "" {
		cfg.ProjectFile = "guild.yml"
	}
}

// 🔍 Validate checks the configuration and fills in defaults
func (cfg *Config) Validate() error {
	cfg.setDefaults()

	switch cfg.Preview {
	case PreviewSummary, PreviewDetail:
	default:
		return errors.Errorf("preview must be %q or %q, got %q", PreviewSummary, PreviewDetail, cfg.Preview)
	}

	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	seen := map[string]bool{}
	for _, scheme := range cfg.VCS {
		if scheme == "" {
			return errors.New("empty vcs scheme")
		}
		if seen[scheme] {
			return errors.Errorf("vcs scheme %q listed twice", scheme)
		}
		seen[scheme] = true
	}

	// Clean up paths
	base := ""
	if cfg.location != "" {
		base = filepath.Dir(cfg.location)
	}
	cfg.RunsDir = resolvePath(base, cfg.RunsDir)
	for i, dir := range cfg.PackageDirs {
		cfg.PackageDirs[i] = resolvePath(base, dir)
	}

	return nil
}

// resolvePath makes relative paths relative to the config file's directory
func resolvePath(base, p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Location returns the file the config was loaded from, if any
func (cfg *Config) Location() string {
	return cfg.location
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	return fmt.Sprintf("runs=%s vcs=%s preview=%s", cfg.RunsDir, strings.Join(cfg.VCS, ","), cfg.Preview)
}
