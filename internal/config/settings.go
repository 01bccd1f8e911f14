package config

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/buildmaster/internal/models"
)

// DefaultSettings returns Settings with default values.
func DefaultSettings() models.Settings {
	return models.Settings{
		URL: "http://localhost:8010/",
		Catalogs: models.ReferenceCatalogs{
			Root: "..",
		},
		Python: models.PythonSettings{
			Interpreter: "python3",
			CacheDir:    "../.cache",
			WorkDir:     "build",
		},
	}
}

// LoadSettings loads and parses settings.toml from the given filesystem.
// Reference catalogs that are not set explicitly resolve under catalogs.root.
func LoadSettings(fsys fs.FS, name string) (models.Settings, error) {
	cfg := DefaultSettings()

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", name, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", name, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parsing %s: unknown keys %v", name, undecoded)
	}

	if !md.IsDefined("catalogs", "glottolog") {
		cfg.Catalogs.Glottolog = filepath.Join(cfg.Catalogs.Root, "glottolog")
	}
	if !md.IsDefined("catalogs", "concepticon") {
		cfg.Catalogs.Concepticon = filepath.Join(cfg.Catalogs.Root, "concepticon-data")
	}
	if !md.IsDefined("catalogs", "clts") {
		cfg.Catalogs.CLTS = filepath.Join(cfg.Catalogs.Root, "clts")
	}

	return cfg, nil
}
