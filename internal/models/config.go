package models

// MasterConfig represents the parsed master.yaml configuration.
type MasterConfig struct {
	Title       string                  `yaml:"title" json:"title"`
	TitleURL    string                  `yaml:"title_url" json:"title_url"`
	URL         string                  `yaml:"url" json:"url"`
	LogLevel    string                  `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	BuildsDir   string                  `yaml:"builds_dir" json:"builds_dir"`
	Protocols   ProtocolsConfig         `yaml:"protocols" json:"protocols"`
	WWW         WWWConfig               `yaml:"www" json:"www"`
	Workers     []WorkerConfig          `yaml:"workers" json:"workers"`
	Environment MasterEnvironmentConfig `yaml:"environment" json:"environment"`
	Catalog     CatalogConfig           `yaml:"catalog" json:"catalog"`
}

type ProtocolsConfig struct {
	PBPort int `yaml:"pb_port" json:"pb_port"`
}

type WWWConfig struct {
	Port int `yaml:"port" json:"port"`
}

// WorkerConfig declares one execution host and how many builds it may run at once.
type WorkerConfig struct {
	Name      string `yaml:"name" json:"name"`
	MaxBuilds int    `yaml:"max_builds" json:"max_builds"`
}

type MasterEnvironmentConfig struct {
	Type           string         `yaml:"type" json:"type"`
	Image          string         `yaml:"image,omitempty" json:"image,omitempty"`
	CPUs           string         `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory         string         `yaml:"memory,omitempty" json:"memory,omitempty"`
	ProviderConfig map[string]any `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

// CatalogConfig lists where dataset records are loaded from.
type CatalogConfig struct {
	Sources []string `yaml:"sources" json:"sources"`
}

// Settings represents the host-specific settings.toml.
type Settings struct {
	URL      string            `toml:"url"`
	Catalogs ReferenceCatalogs `toml:"catalogs"`
	Catalog  CatalogFilter     `toml:"catalog"`
	Python   PythonSettings    `toml:"python"`
}

// ReferenceCatalogs locates the reference data checkouts passed to
// generation and check commands.
type ReferenceCatalogs struct {
	Root        string `toml:"root"`
	Glottolog   string `toml:"glottolog"`
	Concepticon string `toml:"concepticon"`
	CLTS        string `toml:"clts"`
}

// CatalogFilter restricts which datasets a host builds. An empty Only keeps all.
type CatalogFilter struct {
	Only          []string `toml:"only"`
	Organizations []string `toml:"organizations"`
}

type PythonSettings struct {
	Interpreter string `toml:"interpreter"`
	CacheDir    string `toml:"cache_dir"`
	WorkDir     string `toml:"workdir"`
}
