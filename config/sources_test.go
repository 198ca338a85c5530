package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSourcesMissingFileUsesDefaults(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if !sources.Arxiv.Enabled {
		t.Error("arxiv should default to enabled")
	}
	if sources.Arxiv.MaxResults != 50 {
		t.Errorf("arxiv max_results = %d, want 50", sources.Arxiv.MaxResults)
	}
	if len(sources.Helm.AllowedScenarios) == 0 {
		t.Error("helm allowed_scenarios defaults missing")
	}
}

func TestLoadSourcesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
arxiv:
  enabled: false
  max_results: 10
github:
  min_stars: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if sources.Arxiv.Enabled {
		t.Error("arxiv enabled should be overridden to false")
	}
	if sources.Arxiv.MaxResults != 10 {
		t.Errorf("arxiv max_results = %d, want 10", sources.Arxiv.MaxResults)
	}
	if sources.GitHub.MinStars != 200 {
		t.Errorf("github min_stars = %d, want 200", sources.GitHub.MinStars)
	}
	// Untouched sections keep their defaults.
	if sources.DBEngines.MaxResults != 50 {
		t.Errorf("dbengines max_results = %d, want 50", sources.DBEngines.MaxResults)
	}
}

func TestLoadSourcesEnvPlaceholder(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "ghp_secret")

	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := "github:\n  token: ${TEST_GH_TOKEN}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if sources.GitHub.Token != "ghp_secret" {
		t.Errorf("token = %q, want resolved env value", sources.GitHub.Token)
	}
}

func TestLoadSourcesInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("arxiv: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSources(path); err == nil {
		t.Error("expected parse error")
	}
}
