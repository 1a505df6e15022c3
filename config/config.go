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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/core"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the configuration file under the service root.
	FileName = "config"
	// EnvFileName is the optional dotenv file under the service root.
	EnvFileName = ".env"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TDZ_"
)

// Embedding selects and sizes the encoder.
type Embedding struct {
	ModelName  string     `yaml:"model_name"`
	Dimensions int        `yaml:"dimensions"`
	Backend    ai.Backend `yaml:"backend"`
	Host       string     `yaml:"host"`
	Workers    int        `yaml:"workers"`
}

// Config holds every recognized setting. Unknown keys in the file are
// ignored.
type Config struct {
	Embedding           Embedding `yaml:"embedding"`
	SimilarityThreshold float32   `yaml:"similarity_threshold"`
	ClusteringThreshold float32   `yaml:"clustering_threshold"`
	CacheTTLSeconds     int64     `yaml:"cache_ttl_seconds"`
	MaxResults          int       `yaml:"max_results"`
	EnableClustering    bool      `yaml:"enable_clustering"`

	// LRUMaxMemoryMB selects the byte-capped LRU cache when positive.
	// Zero keeps the unbounded flat cache.
	LRUMaxMemoryMB      int    `yaml:"lru_max_memory_mb"`
	DefaultProject      string `yaml:"default_project"`
	HierarchyMaxDepth   int    `yaml:"hierarchy_max_depth"`
	MaintenanceSchedule string `yaml:"maintenance_schedule"`
	AutoBackup          bool   `yaml:"auto_backup"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Embedding: Embedding{
			ModelName:  ai.DefaultModel,
			Dimensions: ai.DefaultDimensions,
			Backend:    ai.BackendLocal,
			Host:       "http://localhost:11434/v1",
		},
		SimilarityThreshold: 0.7,
		ClusteringThreshold: 0.8,
		CacheTTLSeconds:     86400,
		MaxResults:          50,
		EnableClustering:    true,
		DefaultProject:      "general",
		HierarchyMaxDepth:   3,
		MaintenanceSchedule: "@every 1h",
	}
}

// Path returns the configuration file path under root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads the configuration for the service rooted at root. Missing
// files are not an error; the result is validated.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", core.ErrInvalidArgument, Path(root), err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: read %s: %w", core.ErrStorageIO, Path(root), err)
	}

	envFile := filepath.Join(root, EnvFileName)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: load %s: %w", core.ErrInvalidArgument, envFile, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates cfg and writes it to the configuration file under root.
// The file is replaced atomically through a temporary file in root.
func Save(root string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", core.ErrInvalidArgument)
	}
	next := cfg.Clone()
	if err := next.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode config: %w", core.ErrInvalidArgument, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", core.ErrStorageIO, root, err)
	}

	tmp, err := os.CreateTemp(root, "."+FileName+"-*")
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", core.ErrStorageIO, Path(root), err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", core.ErrStorageIO, Path(root), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", core.ErrStorageIO, Path(root), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: write %s: %w", core.ErrStorageIO, Path(root), err)
	}
	if err := os.Rename(tmp.Name(), Path(root)); err != nil {
		return fmt.Errorf("%w: replace %s: %w", core.ErrStorageIO, Path(root), err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	str("EMBEDDING_MODEL", &c.Embedding.ModelName)
	str("EMBEDDING_HOST", &c.Embedding.Host)
	str("DEFAULT_PROJECT", &c.DefaultProject)
	str("MAINTENANCE_SCHEDULE", &c.MaintenanceSchedule)
	num("BACKEND", func(v string) error {
		b, err := ai.ParseBackend(v)
		c.Embedding.Backend = b
		return err
	})
	num("EMBEDDING_DIMENSIONS", intSetter(&c.Embedding.Dimensions))
	num("EMBEDDING_WORKERS", intSetter(&c.Embedding.Workers))
	num("MAX_RESULTS", intSetter(&c.MaxResults))
	num("LRU_MAX_MEMORY_MB", intSetter(&c.LRUMaxMemoryMB))
	num("HIERARCHY_MAX_DEPTH", intSetter(&c.HierarchyMaxDepth))
	num("CACHE_TTL_SECONDS", func(v string) (err error) {
		c.CacheTTLSeconds, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	num("SIMILARITY_THRESHOLD", floatSetter(&c.SimilarityThreshold))
	num("CLUSTERING_THRESHOLD", floatSetter(&c.ClusteringThreshold))
	num("ENABLE_CLUSTERING", boolSetter(&c.EnableClustering))
	num("AUTO_BACKUP", boolSetter(&c.AutoBackup))

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %w", core.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			*dst = n
		}
		return err
	}
}

func floatSetter(dst *float32) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err == nil {
			*dst = float32(f)
		}
		return err
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			*dst = b
		}
		return err
	}
}

// Validate checks ranges and fills empty strings with defaults.
func (c *Config) Validate() error {
	def := Default()
	if c.Embedding.ModelName == "" {
		c.Embedding.ModelName = def.Embedding.ModelName
	}
	if c.DefaultProject == "" {
		c.DefaultProject = def.DefaultProject
	}
	if c.MaintenanceSchedule == "" {
		c.MaintenanceSchedule = def.MaintenanceSchedule
	}

	var errs []error
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold %v outside [0,1]", c.SimilarityThreshold))
	}
	if c.ClusteringThreshold < 0 || c.ClusteringThreshold > 1 {
		errs = append(errs, fmt.Errorf("clustering_threshold %v outside [0,1]", c.ClusteringThreshold))
	}
	if c.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", c.MaxResults))
	}
	if c.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl_seconds must not be negative, got %d", c.CacheTTLSeconds))
	}
	if c.LRUMaxMemoryMB < 0 {
		errs = append(errs, fmt.Errorf("lru_max_memory_mb must not be negative, got %d", c.LRUMaxMemoryMB))
	}
	if c.HierarchyMaxDepth < 1 {
		errs = append(errs, fmt.Errorf("hierarchy_max_depth must be at least 1, got %d", c.HierarchyMaxDepth))
	}
	aiCfg := c.AI()
	if err := aiCfg.Validate(); err != nil {
		errs = append(errs, err)
	} else {
		c.Embedding.Backend = aiCfg.Backend
		c.Embedding.Host = aiCfg.EmbeddingHost
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: config: %w", core.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// AI returns the embedding backend configuration.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithBackend(c.Embedding.Backend),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.ModelName),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithWorkers(c.Embedding.Workers),
	)
}

// CacheBytes is the LRU byte cap, or zero for the flat cache.
func (c *Config) CacheBytes() int {
	return c.LRUMaxMemoryMB << 20
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
