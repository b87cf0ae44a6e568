package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSourceCatalogLoadValidSource(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "espn", `
url: "https://www.espn.com/espn/rss/nfl/news"

settings:
  enabled: true
  max_items: 25
  timeout: 10
  extract_content: true
`)

	catalog := NewSourceCatalog(tempDir)
	if err := catalog.Run(); err != nil {
		t.Fatal(err)
	}

	if catalog.Count() != 1 {
		t.Errorf("Expected 1 source, got %d", catalog.Count())
	}

	source, err := catalog.Get("espn")
	if err != nil {
		t.Fatal(err)
	}

	if source.Name != "espn" {
		t.Errorf("Expected name 'espn', got '%s'", source.Name)
	}
	if source.Settings.MaxItems != 25 {
		t.Errorf("Expected max items 25, got %d", source.Settings.MaxItems)
	}
	if !source.Settings.ExtractContent {
		t.Errorf("Expected extract_content enabled")
	}
	if source.Settings.TimeoutDuration().Seconds() != 10 {
		t.Errorf("Expected 10s timeout, got %v", source.Settings.TimeoutDuration())
	}
}

func TestSourceCatalogDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeSource(t, tempDir, "pft", `url: "https://example.com/feed"`)

	catalog := NewSourceCatalog(tempDir)
	if err := catalog.Run(); err != nil {
		t.Fatal(err)
	}

	source, err := catalog.Get("pft")
	if err != nil {
		t.Fatal(err)
	}
	if source.Settings.MaxItems != 50 {
		t.Errorf("Expected default max items 50, got %d", source.Settings.MaxItems)
	}
	if source.Settings.Timeout != 30 {
		t.Errorf("Expected default timeout 30, got %d", source.Settings.Timeout)
	}
	if source.Settings.Enabled {
		t.Errorf("Expected sources to be disabled unless enabled explicitly")
	}
}

func TestSourceCatalogInvalidSource(t *testing.T) {
	tests := map[string]string{
		"missing url": `settings: {enabled: true}`,
		"bad scheme":  `url: "ftp://example.com/feed"`,
		"bad yaml":    `url: [`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeSource(t, tempDir, "bad", content)
			if err := NewSourceCatalog(tempDir).Run(); err == nil {
				t.Error("Expected error for invalid source")
			}
		})
	}
}

func TestSourceCatalogMissingDir(t *testing.T) {
	catalog := NewSourceCatalog(filepath.Join(t.TempDir(), "nope"))
	if err := catalog.Run(); err != nil {
		t.Errorf("Expected missing directory to be tolerated, got %v", err)
	}
	if catalog.Count() != 0 {
		t.Errorf("Expected empty catalog")
	}
	_, err := catalog.Get("x")
	if err == nil {
		t.Fatal("Expected error for unknown source")
	}
	if err.Error() != `source with name "x" not found` {
		t.Errorf("Unexpected error message: %v", err)
	}
	if len(eris.Unpack(err).ErrRoot.Stack) == 0 {
		t.Error("Expected error to carry a stack trace")
	}
}

func TestSourceCatalogEnabledSorted(t *testing.T) {
	catalog := NewSourceCatalog("")
	catalog.Add(&Source{Name: "zeta", Settings: SourceSettings{Enabled: true}})
	catalog.Add(&Source{Name: "alpha", Settings: SourceSettings{Enabled: true}})
	catalog.Add(&Source{Name: "off"})

	enabled := catalog.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "alpha" || enabled[1].Name != "zeta" {
		t.Errorf("Expected [alpha zeta], got %+v", enabled)
	}
}
