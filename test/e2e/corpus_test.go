package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/stemrag/internal/parser"
)

func TestBuildCorpus_uniqueNames(t *testing.T) {
	c := BuildCorpus()
	if len(c.Documents) != 2*len(topics) {
		t.Fatalf("got %d documents, want %d", len(c.Documents), 2*len(topics))
	}
	seen := make(map[string]bool)
	for _, d := range c.Documents {
		if seen[d.Name] {
			t.Errorf("duplicate name %s", d.Name)
		}
		seen[d.Name] = true
	}
}

func TestCorpus_textMatchesParser(t *testing.T) {
	dir := t.TempDir()
	c := BuildCorpus()
	if err := c.WriteTo(dir); err != nil {
		t.Fatal(err)
	}
	p := parser.NewParser()
	for _, d := range c.Documents {
		got, _, err := p.ParseFile(filepath.Join(dir, d.Name))
		if err != nil {
			t.Fatalf("%s: %v", d.Name, err)
		}
		if strings.TrimSpace(got) != d.Text {
			t.Errorf("%s: parsed %q, want %q", d.Name, got, d.Text)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(c.Documents) {
		t.Errorf("wrote %d files, want %d", len(entries), len(c.Documents))
	}
}
