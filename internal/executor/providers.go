package executor

import (
	"fmt"

	"github.com/spachava753/buildmaster/internal/environment"
	"github.com/spachava753/buildmaster/internal/environment/docker"
	"github.com/spachava753/buildmaster/internal/environment/local"
	"github.com/spachava753/buildmaster/internal/environment/modal"
	"github.com/spachava753/buildmaster/internal/models"
	"github.com/spachava753/buildmaster/internal/util"
)

// NewProvider creates the environment provider named by the master config.
func NewProvider(cfg models.MasterEnvironmentConfig) (environment.Provider, error) {
	switch cfg.Type {
	case "", "local":
		baseDir, _ := cfg.ProviderConfig["base_dir"].(string)
		return local.NewProvider(baseDir), nil
	case "docker":
		return docker.NewProvider(), nil
	case "modal":
		pc, err := modal.ParseProviderConfig(cfg.ProviderConfig)
		if err != nil {
			return nil, err
		}
		return modal.NewProvider(pc)
	default:
		return nil, fmt.Errorf("unsupported environment type: %s", cfg.Type)
	}
}

// EnvironmentOptions converts the master's environment section into the
// options every build environment is created with.
func EnvironmentOptions(cfg models.MasterEnvironmentConfig) (environment.CreateEnvironmentOptions, error) {
	memoryMB, err := util.ParseMemory(cfg.Memory)
	if err != nil {
		return environment.CreateEnvironmentOptions{}, fmt.Errorf("parsing environment memory: %w", err)
	}
	return environment.CreateEnvironmentOptions{
		Image:    cfg.Image,
		CPUs:     cfg.CPUs,
		MemoryMB: memoryMB,
	}, nil
}
