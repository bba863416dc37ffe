package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuestionsPrintsDefaultSchema(t *testing.T) {
	out, err := run(t, "questions", "--config", "")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	for _, id := range []string{"id: title", "id: delivery", "kind: file", "image/"} {
		if !strings.Contains(out, id) {
			t.Fatalf("output missing %q:\n%s", id, out)
		}
	}
}

func TestQuestionsRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	if err := os.WriteFile(path, []byte("questions:\n  - id: a\n    kind: radio\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "questions", "--file", path); err == nil {
		t.Fatalf("expected radio without options to fail")
	}
}

func TestMigrateSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	body := `{"databases": {"sqlite3": {"dsn": "listings.db"}}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := run(t, "migrate", "--config", cfgPath, "--db", "sqlite3")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "migrated sqlite3") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "listings.db")); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}
