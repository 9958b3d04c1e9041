package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/rewrite/dump"
	"github.com/chazu/rewrite/unit"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[pipeline]
disabled = ["deadcode"]
check-metadata = true
workers = 8

[index]
literals = true

[dump]
enabled = true
dir = "out/dump"

[log]
verbosity = 2

[constfold]
arithmetic = true
funcs = ["math"]

[hierarchy]
"app/Child" = "app/Parent"
"app/Parent" = "Object"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(c.Pipeline.Disabled) != 1 || c.Pipeline.Disabled[0] != "deadcode" {
		t.Errorf("disabled = %v, want [deadcode]", c.Pipeline.Disabled)
	}
	if !c.Pipeline.CheckMetadata {
		t.Error("check-metadata = false, want true")
	}
	if c.Pipeline.Workers != 8 {
		t.Errorf("workers = %d, want 8", c.Pipeline.Workers)
	}
	if !c.Index.Literals {
		t.Error("index literals = false, want true")
	}
	if !c.Dump.Enabled || c.Dump.Dir != "out/dump" {
		t.Errorf("dump = %+v, want enabled out/dump", c.Dump)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}
	if !c.Constfold.Arithmetic || len(c.Constfold.Funcs) != 1 {
		t.Errorf("constfold = %+v", c.Constfold)
	}
	if c.Hierarchy["app/Child"] != "app/Parent" {
		t.Errorf("hierarchy = %v", c.Hierarchy)
	}
	if c.Dir == "" || !filepath.IsAbs(c.Dir) {
		t.Errorf("Dir = %q, want absolute path", c.Dir)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Dump.Dir != dump.DefaultDir {
		t.Errorf("default dump dir = %q, want %q", c.Dump.Dir, dump.DefaultDir)
	}
	if c.Dump.Enabled {
		t.Error("dump enabled by default")
	}
	if c.Pipeline.Workers != 4 {
		t.Errorf("default workers = %d, want 4", c.Pipeline.Workers)
	}
	if len(c.Constfold.Funcs) != 2 {
		t.Errorf("default funcs = %v, want [math strings]", c.Constfold.Funcs)
	}
}

func TestLoadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[pipeline\n")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing rewrite.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[log]\nverbosity = 1\n")

	// Should find the file when starting from a deep subdirectory
	c, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", c.Log.Verbosity)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if c != nil {
		t.Error("expected nil config when no rewrite.toml exists")
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	t.Setenv(dump.EnvDump, "on")
	t.Setenv(dump.EnvDir, "/tmp/elsewhere")
	c.ApplyEnv()
	if !c.Dump.Enabled {
		t.Error("REWRITE_DUMP=on did not enable dumping")
	}
	if c.Dump.Dir != "/tmp/elsewhere" {
		t.Errorf("dump dir = %q, want /tmp/elsewhere", c.Dump.Dir)
	}

	t.Setenv(dump.EnvDump, "0")
	c.ApplyEnv()
	if c.Dump.Enabled {
		t.Error("REWRITE_DUMP=0 did not disable dumping")
	}
}

func TestDumpDir(t *testing.T) {
	c := &Config{Dir: "/proj", Dump: Dump{Dir: "out"}}
	if got := c.DumpDir(); got != "/proj/out" {
		t.Errorf("DumpDir = %q, want /proj/out", got)
	}
	c.Dump.Dir = "/abs"
	if got := c.DumpDir(); got != "/abs" {
		t.Errorf("DumpDir = %q, want /abs", got)
	}
}

func TestPassEnabled(t *testing.T) {
	c := &Config{Pipeline: Pipeline{Disabled: []string{"constfold"}}}
	if c.PassEnabled("constfold") {
		t.Error("constfold should be disabled")
	}
	if !c.PassEnabled("deadcode") {
		t.Error("deadcode should be enabled")
	}
}

func TestClassHierarchy(t *testing.T) {
	c := &Config{Hierarchy: map[string]string{"app/Child": "app/Parent"}}
	h := c.ClassHierarchy()
	if super, ok := h.Superclass("app/Child"); !ok || super != "app/Parent" {
		t.Errorf("Superclass(app/Child) = %q, %v", super, ok)
	}
	if super, ok := h.Superclass(unit.StringClass); !ok || super != unit.ObjectClass {
		t.Errorf("built-in String entry lost: %q, %v", super, ok)
	}
}

func TestPipelineOptions(t *testing.T) {
	dir := t.TempDir()
	c := Default()
	c.Dir = dir
	c.Index.Literals = true
	c.Pipeline.CheckMetadata = true

	opts := c.PipelineOptions()
	if !opts.Index.Literals || !opts.CheckMetadata {
		t.Errorf("options = %+v", opts)
	}
	if opts.Sink != nil {
		t.Error("sink set while dumping is off")
	}

	c.Dump.Enabled = true
	opts = c.PipelineOptions()
	if opts.Sink == nil {
		t.Fatal("sink not set while dumping is on")
	}
	if _, err := os.Stat(filepath.Join(dir, dump.DefaultDir, dump.Version)); err != nil {
		t.Errorf("dump dir not created: %v", err)
	}
}

func TestUnwritableDumpDirDisablesSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	c := Default()
	c.Dump.Enabled = true
	c.Dump.Dir = filepath.Join(file, "dump")

	if opts := c.PipelineOptions(); opts.Sink != nil {
		t.Errorf("sink = %v, want nil when the dump dir cannot be created", opts.Sink)
	}
}
