package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/buildmaster/internal/models"
)

// DefaultMasterConfig returns a MasterConfig with default values.
func DefaultMasterConfig() models.MasterConfig {
	return models.MasterConfig{
		Title:     "CLDF Buildbot",
		TitleURL:  "https://github.com/cldf/cldf-buildbot",
		LogLevel:  "info",
		BuildsDir: "builds",
		Protocols: models.ProtocolsConfig{PBPort: 9989},
		WWW:       models.WWWConfig{Port: 8010},
		Workers: []models.WorkerConfig{
			{Name: "worker", MaxBuilds: 2},
		},
		Environment: models.MasterEnvironmentConfig{
			Type: "local",
		},
		Catalog: models.CatalogConfig{
			Sources: []string{"reposlist.json"},
		},
	}
}

// LoadMasterConfig loads and parses a master.yaml file.
func LoadMasterConfig(path string) (models.MasterConfig, error) {
	cfg := DefaultMasterConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading master config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing master config: %w", err)
	}

	// Validate workers
	seen := make(map[string]bool)
	for i, w := range cfg.Workers {
		if w.Name == "" {
			return cfg, fmt.Errorf("workers[%d]: name is required", i)
		}
		if seen[w.Name] {
			return cfg, fmt.Errorf("workers[%d]: duplicate worker %q", i, w.Name)
		}
		seen[w.Name] = true
		if w.MaxBuilds < 0 {
			return cfg, fmt.Errorf("workers[%d]: max_builds must not be negative", i)
		}
		if w.MaxBuilds == 0 {
			cfg.Workers[i].MaxBuilds = 1
		}
	}

	// Apply defaults for missing values
	if len(cfg.Workers) == 0 {
		cfg.Workers = DefaultMasterConfig().Workers
	}
	if len(cfg.Catalog.Sources) == 0 {
		cfg.Catalog.Sources = DefaultMasterConfig().Catalog.Sources
	}
	if cfg.Environment.Type == "" {
		cfg.Environment.Type = "local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// WorkerNames returns the configured worker names in order.
func WorkerNames(cfg models.MasterConfig) []string {
	names := make([]string, len(cfg.Workers))
	for i, w := range cfg.Workers {
		names[i] = w.Name
	}
	return names
}

// Capacity returns how many pipelines may run at once across all workers.
func Capacity(cfg models.MasterConfig) int {
	total := 0
	for _, w := range cfg.Workers {
		total += max(w.MaxBuilds, 1)
	}
	return max(total, 1)
}
