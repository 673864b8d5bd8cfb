package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msf-usa/chatd/internal/domain"
)

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog([]domain.ModelInfo{{ID: "", Provider: domain.ProviderChat}}); err == nil {
		t.Fatalf("empty id accepted")
	}
	if _, err := NewCatalog([]domain.ModelInfo{{ID: "x", Provider: "mystery"}}); err == nil {
		t.Fatalf("unknown provider accepted")
	}
	dup := []domain.ModelInfo{
		{ID: "x", Provider: domain.ProviderChat},
		{ID: "x", Provider: domain.ProviderChat},
	}
	if _, err := NewCatalog(dup); err == nil {
		t.Fatalf("duplicate id accepted")
	}
}

func TestVisionUpgradePrefersSameProvider(t *testing.T) {
	catalog, err := NewCatalog([]domain.ModelInfo{
		{ID: "claude-vision", Provider: domain.ProviderAnthropic, Vision: true},
		{ID: "gpt-4o", Provider: domain.ProviderChat, Vision: true},
		{ID: "gpt-text", Provider: domain.ProviderChat},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	m, _ := catalog.Lookup("gpt-text")
	upgraded := catalog.VisionUpgrade(m)
	if upgraded.ID != "gpt-4o" {
		t.Fatalf("same-provider upgrade not preferred: %s", upgraded.ID)
	}

	// Already vision-capable models stay put.
	v, _ := catalog.Lookup("gpt-4o")
	if got := catalog.VisionUpgrade(v); got.ID != "gpt-4o" {
		t.Fatalf("vision model replaced: %s", got.ID)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `models:
  - id: custom-model
    provider: chat
    vision: true
    supportsTemperature: true
    supportsSystemRole: true
    maxOutputTokens: 2048
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	m, ok := catalog.Lookup("custom-model")
	if !ok || m.Provider != domain.ProviderChat || m.MaxOutputTokens != 2048 {
		t.Fatalf("unexpected model: %+v", m)
	}
}

func TestLoadCatalogBuiltin(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(catalog.Models()) == 0 {
		t.Fatalf("builtin catalog empty")
	}
	for _, m := range catalog.Models() {
		if !m.Provider.Valid() {
			t.Fatalf("builtin model %s has invalid provider", m.ID)
		}
	}
}
