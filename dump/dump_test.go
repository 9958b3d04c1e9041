package dump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/rewrite/unit"
)

func sampleUnit() *unit.Unit {
	u := unit.New("app/Main", "")
	r := u.AddRoutine("run", "()V", true)
	r.Append(unit.Op(unit.OpReturnNil))
	return u
}

func TestDirSinkClearsStaleDump(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, Version, "old.dis")
	if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(keep, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewDirSink(root)
	if err != nil {
		t.Fatalf("NewDirSink: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale dump survived: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("files outside the versioned directory must be kept: %v", err)
	}
	if s.Dir() != filepath.Join(root, Version) {
		t.Errorf("Dir = %q", s.Dir())
	}
}

func TestDirSinkDump(t *testing.T) {
	s, err := NewDirSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Dump("app/Main", sampleUnit()); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), "app", "Main.dis"))
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if !strings.Contains(string(data), "unit app/Main") || !strings.Contains(string(data), "RETURN_NIL") {
		t.Errorf("unexpected dump:\n%s", data)
	}
}

func TestDirSinkRejectsEscapingNames(t *testing.T) {
	s, err := NewDirSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../evil", "/abs/path", "a/../../b"} {
		if err := s.Dump(name, sampleUnit()); err == nil {
			t.Errorf("Dump(%q) should fail", name)
		}
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"on", true},
		{"maybe", false},
	}
	for _, tt := range tests {
		if got := Enabled(tt.in); got != tt.want {
			t.Errorf("Enabled(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvDump, "")
	if s := FromEnv(); s != nil {
		t.Fatalf("disabled: got %v", s)
	}

	root := t.TempDir()
	t.Setenv(EnvDump, "1")
	t.Setenv(EnvDir, root)
	s := FromEnv()
	ds, ok := s.(*DirSink)
	if !ok {
		t.Fatalf("got %T", s)
	}
	if ds.Dir() != filepath.Join(root, Version) {
		t.Errorf("Dir = %q", ds.Dir())
	}
}

func TestFromEnvUnwritableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDump, "1")
	t.Setenv(EnvDir, filepath.Join(file, "dump"))
	if s := FromEnv(); s != nil {
		t.Errorf("got %v, want nil sink for a root under a regular file", s)
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"app/Main", filepath.Join("app", "Main"), true},
		{"Main", "Main", true},
		{"app/../Main", "Main", true},
		{"", "", false},
		{"..", "", false},
		{"../../escaped", "", false},
		{"app/../../escaped", "", false},
		{"/etc/passwd", "", false},
	}
	for _, tt := range tests {
		got, err := RelPath(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("RelPath(%q) error = %v, want ok=%v", tt.name, err, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("RelPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
