package categories

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/concierge/internal/config"
)

func TestNewValidation(t *testing.T) {
	ok := Category{ID: "general", Prompt: "p"}

	tests := []struct {
		name      string
		defaultID string
		cats      []Category
		wantErr   string
	}{
		{"valid", "general", []Category{ok}, ""},
		{"no categories", "general", nil, "at least one"},
		{"empty id", "general", []Category{ok, {ID: " ", Prompt: "p"}}, "id is required"},
		{"duplicate after normalization", "general", []Category{ok, {ID: " General ", Prompt: "p"}}, "duplicate id"},
		{"empty prompt", "general", []Category{{ID: "general", Prompt: "  \n"}}, "prompt is empty"},
		{"missing default", "other", []Category{ok}, `default category "other"`},
		{"blank default", "", []Category{ok}, "default category id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defaultID, tt.cats...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := New("General", Category{ID: "General", Prompt: "p", Aliases: []string{" Policy ", ""}}, Category{ID: "ertc", Prompt: "q"})
	if err != nil {
		t.Fatal(err)
	}

	cat, err := r.Lookup("GENERAL")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if cat.ID != "general" {
		t.Errorf("ID = %q, want normalized", cat.ID)
	}
	if len(cat.Aliases) != 1 || cat.Aliases[0] != "policy" {
		t.Errorf("Aliases = %v", cat.Aliases)
	}

	cat.Aliases[0] = "mutated"
	again, _ := r.Lookup("general")
	if again.Aliases[0] != "policy" {
		t.Error("Lookup must return a copy")
	}

	if _, err := r.Lookup("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrNotFound", err)
	}
	if r.DefaultID() != "general" || r.Default().ID != "general" {
		t.Errorf("default = %q", r.DefaultID())
	}
	if !r.Has("ERTC") || r.Has("nope") {
		t.Error("Has() mismatch")
	}
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	r := Builtin()
	all := r.All()
	want := []string{"general", "ertc", "competitors"}
	if len(all) != len(want) {
		t.Fatalf("All() = %d categories", len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("All()[%d] = %q, want %q", i, all[i].ID, id)
		}
	}
	all[0].ID = "changed"
	if r.All()[0].ID != "general" {
		t.Error("All must return a copy")
	}
	if ids := r.IDs(); strings.Join(ids, ",") != "general,ertc,competitors" {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestRouterInstructions(t *testing.T) {
	r, _ := New("a",
		Category{ID: "a", Description: "first", Prompt: "p"},
		Category{ID: "b", Description: "second", Prompt: "p"},
	)
	got := r.RouterInstructions()
	want := RouterPreamble + "\n\n- 'a': first\n- 'b': second"
	if got != want {
		t.Errorf("RouterInstructions() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuiltin(t *testing.T) {
	r := Builtin()
	for _, cat := range r.All() {
		if strings.TrimSpace(cat.Prompt) == "" {
			t.Errorf("%s: empty prompt", cat.ID)
		}
		if cat.ContextPrefix == "" || cat.Description == "" || len(cat.Aliases) == 0 {
			t.Errorf("%s: incomplete definition %+v", cat.ID, cat)
		}
	}
	ertc, _ := r.Lookup("ertc")
	if ertc.Aliases[3] != "employee retention" {
		t.Errorf("ertc aliases = %v", ertc.Aliases)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "prompts", "hr.txt"), "HR prompt")
	mustWrite(t, filepath.Join(dir, "kb", "hr.txt"), "Holidays: 12")

	r, err := Load(config.CategoriesConfig{
		Default: "hr",
		Definitions: []config.CategoryConfig{
			{ID: "hr", Description: "people", PromptFile: "prompts/hr.txt", KnowledgeBaseFile: "kb/hr.txt", ContextPrefix: "**HR**"},
			{ID: "it", Prompt: "inline IT prompt"},
		},
	}, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	hr, _ := r.Lookup("hr")
	if hr.Prompt != "HR prompt" || hr.KnowledgeBase != "Holidays: 12" || hr.ContextPrefix != "**HR**" {
		t.Errorf("hr = %+v", hr)
	}
	it, _ := r.Lookup("it")
	if it.Prompt != "inline IT prompt" || it.KnowledgeBase != "" {
		t.Errorf("it = %+v", it)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "empty.txt"), "   ")

	tests := []struct {
		name string
		cfg  config.CategoriesConfig
		want string
	}{
		{"missing prompt file", config.CategoriesConfig{Default: "a", Definitions: []config.CategoryConfig{{ID: "a", PromptFile: "nope.txt"}}}, "prompt"},
		{"empty prompt file", config.CategoriesConfig{Default: "a", Definitions: []config.CategoryConfig{{ID: "a", PromptFile: "empty.txt"}}}, "prompt is empty"},
		{"missing kb file", config.CategoriesConfig{Default: "a", Definitions: []config.CategoryConfig{{ID: "a", Prompt: "p", KnowledgeBaseFile: "kb.txt"}}}, "knowledge base"},
		{"unknown default", config.CategoriesConfig{Default: "b", Definitions: []config.CategoryConfig{{ID: "a", Prompt: "p"}}}, "default category"},
		{"builtin with foreign default", config.CategoriesConfig{Default: "hr"}, "built-in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.cfg, dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadFallsBackToBuiltin(t *testing.T) {
	r, err := Load(config.CategoriesConfig{Default: "general"}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(r.All()) != 3 {
		t.Errorf("expected builtin registry, got %v", r.IDs())
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
