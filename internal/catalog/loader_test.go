package catalog

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/terra-clan/estimate-engine/internal/estimate"
)

var _ estimate.SectionCatalog = (*Loader)(nil)

func TestNewLoader_Defaults(t *testing.T) {
	loader := NewLoader()

	want := []string{
		"pre-production",
		"production",
		"show-execution",
		"project-teams",
		"extra-expenses",
		"equipment-rental",
	}
	if got := loader.Order(); !slices.Equal(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}

	title, ok := loader.Lookup("show-execution")
	if !ok || title != "Show Execution" {
		t.Errorf("expected 'Show Execution', got '%s' (found=%v)", title, ok)
	}

	if _, ok := loader.Lookup("catering"); ok {
		t.Error("catering should not be in the default catalog")
	}

	headers := loader.Headers()
	if len(headers) != 14 {
		t.Fatalf("expected 14 headers, got %d", len(headers))
	}
	if headers[13] != "Profitability %" {
		t.Errorf("expected last header 'Profitability %%', got '%s'", headers[13])
	}
}

func TestLoadFromFile_Config(t *testing.T) {
	// Use the shipped catalog
	path := filepath.Join("..", "..", "configs", "sections.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("configs/sections.yaml not found, skipping")
	}

	loader := NewLoader()
	if err := loader.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if got := len(loader.List()); got != len(DefaultSections) {
		t.Errorf("expected %d sections, got %d", len(DefaultSections), got)
	}
	if !slices.Equal(loader.Headers(), DefaultHeaders) {
		t.Errorf("expected default headers, got %v", loader.Headers())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
sections:
  - id: venue
    title: Venue
  - id: catering
    title: Catering
`)

	loader := NewLoader()
	if err := loader.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if got := loader.Order(); !slices.Equal(got, []string{"venue", "catering"}) {
		t.Errorf("expected [venue catering], got %v", got)
	}

	catering := loader.Get("catering")
	if catering == nil {
		t.Fatal("catering section not found")
	}
	if catering.Title != "Catering" {
		t.Errorf("expected title 'Catering', got '%s'", catering.Title)
	}

	if loader.Get("production") != nil {
		t.Error("production should be replaced by the file")
	}

	// Headers fall back to the defaults when the file has none
	if !slices.Equal(loader.Headers(), DefaultHeaders) {
		t.Errorf("expected default headers, got %v", loader.Headers())
	}

	list := loader.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(list))
	}
	if list[0].ID != "venue" {
		t.Errorf("expected first section 'venue', got '%s'", list[0].ID)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "sections: [unclosed"},
		{"no sections", "headers: [A]"},
		{"missing title", "sections:\n  - id: venue\n"},
		{"duplicate", "sections:\n  - {id: a, title: A}\n  - {id: a, title: B}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader()
			if err := loader.LoadFromFile(writeFile(t, tt.content)); err == nil {
				t.Error("expected an error")
			}

			if got := len(loader.Order()); got != len(DefaultSections) {
				t.Errorf("catalog should be unchanged, got %d sections", got)
			}
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if err := NewLoader().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sections.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
