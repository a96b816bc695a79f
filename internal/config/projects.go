package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/retriever/internal/models"
)

// ProjectSeed is one entry of the projects file.
// Zero limits fall back to the quota defaults when the project is registered.
type ProjectSeed struct {
	ID            string  `yaml:"id"`
	KeyHash       string  `yaml:"key_hash"`
	RateLimit     float64 `yaml:"rate_limit"`
	Burst         int     `yaml:"burst"`
	CapacityLimit int     `yaml:"capacity_limit"`
}

type projectsFile struct {
	Projects []ProjectSeed `yaml:"projects"`
}

// LoadProjects parses the projects file at path.
func LoadProjects(path string) ([]ProjectSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file: %w", err)
	}
	var pf projectsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse projects file: %w", err)
	}

	seen := make(map[string]struct{}, len(pf.Projects))
	for i, p := range pf.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("projects[%d]: id is required", i)
		}
		if !strings.HasPrefix(p.KeyHash, "$2") {
			return nil, fmt.Errorf("projects[%d] (%s): key_hash must be a bcrypt hash", i, p.ID)
		}
		if p.RateLimit < 0 || p.Burst < 0 || p.CapacityLimit < 0 {
			return nil, fmt.Errorf("projects[%d] (%s): limits must not be negative", i, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("projects[%d]: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return pf.Projects, nil
}

// Project converts the seed into a project record.
func (s ProjectSeed) Project() *models.Project {
	return &models.Project{
		ID:            s.ID,
		KeyHash:       s.KeyHash,
		RateLimit:     s.RateLimit,
		Burst:         s.Burst,
		CapacityLimit: s.CapacityLimit,
	}
}
