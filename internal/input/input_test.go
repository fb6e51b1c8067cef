package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandValuePassthrough(t *testing.T) {
	got, err := expandValue(`{"a":1}`, strings.NewReader("ignored"))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestExpandValueStdin(t *testing.T) {
	got, err := expandValue("-", strings.NewReader("  {\"a\":1}\n"))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestExpandValueFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.json")
	if err := os.WriteFile(path, []byte(`{"b":2}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := expandValue("@"+path, strings.NewReader(""))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != `{"b":2}` {
		t.Errorf("got %q", got)
	}

	if _, err := expandValue("@"+path+".missing", strings.NewReader("")); err == nil {
		t.Error("missing file should error")
	}
}
