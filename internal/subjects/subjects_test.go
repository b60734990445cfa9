package subjects

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSubjectFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeSubjectFile(t, t.TempDir(), "site.json",
		`{"page": {"title": "Hello", "h1_count": 1}, "schema": {"has_faq_schema": true}}`)

	subject, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	page, ok := subject["page"].(map[string]interface{})
	if !ok {
		t.Fatal("page should be a nested mapping")
	}
	if page["title"] != "Hello" {
		t.Errorf("page.title = %v, want Hello", page["title"])
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeSubjectFile(t, t.TempDir(), "site.yaml", `page:
  title: Hello
content:
  word_count: 850
`)

	subject, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	content, ok := subject["content"].(map[string]interface{})
	if !ok {
		t.Fatal("content should be a nested mapping")
	}
	if content["word_count"] != 850 {
		t.Errorf("content.word_count = %v, want 850", content["word_count"])
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "site.txt", "title: x"},
		{"malformed json", "bad.json", `{"page": `},
		{"top-level list", "list.yaml", "- one\n- two\n"},
		{"empty document", "empty.yaml", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSubjectFile(t, dir, tt.file, tt.content)
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%s) should fail", tt.file)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSubjectFile(t, dir, "beta.json", `{"page": {"title": "b"}}`)
	writeSubjectFile(t, dir, "alpha.yaml", "page:\n  title: a\n")
	writeSubjectFile(t, dir, "gamma.yml", "page:\n  title: g\n")
	writeSubjectFile(t, dir, "broken.json", `{{{`)
	writeSubjectFile(t, dir, "README.md", "not a subject")

	loader := NewLoader()
	loader.SetConcurrency(2)

	loaded, errs, err := loader.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d subjects, want 3", len(loaded))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if loaded[i].Name != want {
			t.Errorf("subject %d = %q, want %q", i, loaded[i].Name, want)
		}
	}
	if len(errs) != 1 {
		t.Fatalf("got %d error records, want 1", len(errs))
	}
	if errs[0].Operation != "load_subject" || !strings.Contains(errs[0].Path, "broken.json") {
		t.Errorf("error record = %+v", errs[0])
	}
}

func TestWriteErrorsToFile(t *testing.T) {
	loader := NewLoader()
	dir := t.TempDir()
	writeSubjectFile(t, dir, "broken.yaml", "{{{")

	_, errs, err := loader.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d error records, want 1", len(errs))
	}

	out := filepath.Join(dir, "errors.txt")
	if err := WriteErrorsToFile(out, errs); err != nil {
		t.Fatalf("WriteErrorsToFile failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read error file: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "TIMESTAMP|PATH|OPERATION|ERROR\n") {
		t.Error("error file missing header line")
	}
	if !strings.Contains(text, "broken.yaml") {
		t.Error("error file missing the failed path")
	}
}
