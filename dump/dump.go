// Package dump writes the rewritten tree form of units to disk for
// inspection. It is a debugging aid: callers log its errors and carry on.
package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.dump")

const (
	// EnvDump switches dumping on when set to a true value.
	EnvDump = "REWRITE_DUMP"
	// EnvDir overrides the dump root.
	EnvDir = "REWRITE_DUMP_DIR"
	// DefaultDir is the dump root when EnvDir is unset.
	DefaultDir = ".rewrite/dump"
	// Version names the layout directory under the root. Bump it when the
	// disassembly format changes so stale dumps never mix with new ones.
	Version = "v1"
)

// Sink receives the final tree form of every changed unit.
type Sink interface {
	Dump(name string, u *unit.Unit) error
}

// DirSink writes one disassembly file per unit under <root>/<Version>.
type DirSink struct {
	dir string
	mu  sync.Mutex
}

// NewDirSink prepares <root>/<Version>, deleting anything a previous run
// left there.
func NewDirSink(root string) (*DirSink, error) {
	dir := filepath.Join(root, Version)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("dump: clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("dump: create %s: %w", dir, err)
	}
	log.Infof("dumping rewritten units to %s", dir)
	return &DirSink{dir: dir}, nil
}

// Dir returns the versioned directory files are written to.
func (s *DirSink) Dir() string {
	return s.dir
}

// Path returns the file a unit named name is written to. Slashes in the
// name become directories.
func (s *DirSink) Path(name string) (string, error) {
	rel, err := RelPath(name)
	if err != nil {
		return "", fmt.Errorf("dump: %w", err)
	}
	return filepath.Join(s.dir, rel+".dis"), nil
}

// RelPath turns a unit name into a relative file path, slashes becoming
// directories. Names that are empty, absolute or climb out of the
// directory they are joined to are rejected.
func RelPath(name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unit name %q escapes the output directory", name)
	}
	return rel, nil
}

// Dump implements Sink.
func (s *DirSink) Dump(name string, u *unit.Unit) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	text := unit.Disassemble(u)

	// Units in one package share directories.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	log.Debugf("dumped %s to %s", name, path)
	return nil
}

// Enabled reports whether v turns dumping on: any value strconv.ParseBool
// accepts as true, or "yes"/"on".
func Enabled(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v == "yes" || v == "on"
}

// Open returns a DirSink under root. A root that cannot be prepared is
// logged and yields nil: dumping is never worth failing a transform.
func Open(root string) Sink {
	s, err := NewDirSink(root)
	if err != nil {
		log.Warningf("dumping disabled: %s", err)
		return nil
	}
	return s
}

// FromEnv returns a DirSink when EnvDump is true, or nil when dumping is
// off or its directory cannot be prepared.
func FromEnv() Sink {
	if !Enabled(os.Getenv(EnvDump)) {
		return nil
	}
	root := os.Getenv(EnvDir)
	if root == "" {
		root = DefaultDir
	}
	return Open(root)
}
