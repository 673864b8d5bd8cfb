package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/msf-usa/chatd/internal/domain"
)

// Catalog is the declarative model registry. Selection and capability
// checks read it instead of sniffing model names.
type Catalog struct {
	models []domain.ModelInfo
	byID   map[string]domain.ModelInfo
}

type catalogFile struct {
	Models []domain.ModelInfo `yaml:"models"`
}

// defaultModels is the built-in catalog used when no catalog file is
// configured.
var defaultModels = []domain.ModelInfo{
	{ID: "gpt-5", Provider: domain.ProviderResponses, Vision: true, AgentCapable: true, SupportsTemperature: true, SupportsSystemRole: true, MaxOutputTokens: 16384},
	{ID: "gpt-4o", Provider: domain.ProviderChat, Vision: true, AgentCapable: true, SupportsTemperature: true, SupportsSystemRole: true, MaxOutputTokens: 16384},
	{ID: "gpt-4o-mini", Provider: domain.ProviderChat, Vision: true, SupportsTemperature: true, SupportsSystemRole: true, MaxOutputTokens: 16384},
	{ID: "o3-mini", Provider: domain.ProviderReasoning, MaxOutputTokens: 65536},
	{ID: "claude-sonnet-4-5", Provider: domain.ProviderAnthropic, Vision: true, SupportsTemperature: true, MaxOutputTokens: 8192},
}

// LoadCatalog loads the model catalog from the YAML file at path, or the
// built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	models := defaultModels
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model catalog: %w", err)
		}
		var f catalogFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse model catalog: %w", err)
		}
		if len(f.Models) == 0 {
			return nil, fmt.Errorf("model catalog %s lists no models", path)
		}
		models = f.Models
	}
	return NewCatalog(models)
}

// NewCatalog builds a catalog from an explicit model list, validating
// that every entry names a known provider kind.
func NewCatalog(models []domain.ModelInfo) (*Catalog, error) {
	byID := make(map[string]domain.ModelInfo, len(models))
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model catalog entry with empty id")
		}
		if !m.Provider.Valid() {
			return nil, fmt.Errorf("model %s: unknown provider kind %q", m.ID, m.Provider)
		}
		if _, dup := byID[m.ID]; dup {
			return nil, fmt.Errorf("model catalog lists %s twice", m.ID)
		}
		byID[m.ID] = m
	}
	return &Catalog{models: models, byID: byID}, nil
}

// Lookup returns the model with the given id.
func (c *Catalog) Lookup(id string) (domain.ModelInfo, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Models returns all catalog entries in declaration order.
func (c *Catalog) Models() []domain.ModelInfo {
	out := make([]domain.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

// VisionUpgrade returns a vision-capable replacement for m, preferring a
// model of the same provider kind. Returns m unchanged when it already
// handles images or no upgrade exists.
func (c *Catalog) VisionUpgrade(m domain.ModelInfo) domain.ModelInfo {
	if m.Vision {
		return m
	}
	var fallback *domain.ModelInfo
	for i := range c.models {
		cand := c.models[i]
		if !cand.Vision {
			continue
		}
		if cand.Provider == m.Provider {
			return cand
		}
		if fallback == nil {
			fallback = &cand
		}
	}
	if fallback != nil {
		return *fallback
	}
	return m
}
