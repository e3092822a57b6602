// Package inventory discovers the scripts below a directory tree and
// the configuration they are run with.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var skipDirs = map[string]struct{}{
	".build":       {},
	"__pycache__":  {},
	".git":         {},
	".svn":         {},
	".hg":          {},
	"node_modules": {},
	".vscode":      {},
	".idea":        {},
}

// ShouldSkip reports whether a directory is a build, VCS or cache
// directory that never contains scripts.
func ShouldSkip(name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}

	return strings.HasSuffix(name, ".build")
}

type Params struct {
	// ScriptsDir is the root of the script tree
	ScriptsDir string

	// ConfigsDir holds the saved configurations
	ConfigsDir string

	Log *zap.Logger
}

type Inventory struct {
	root       string
	configsDir string
	log        *zap.Logger
}

func New(params Params) (*Inventory, error) {
	root, err := filepath.Abs(params.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("invalid scripts dir: %w", err)
	}

	configsDir, err := filepath.Abs(params.ConfigsDir)
	if err != nil {
		return nil, fmt.Errorf("invalid configs dir: %w", err)
	}

	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Inventory{
		root:       root,
		configsDir: configsDir,
		log:        log.Named("inventory"),
	}, nil
}

func (i *Inventory) Root() string {
	return i.root
}

// Resolve maps a script id to its entry point.
func (i *Inventory) Resolve(id string) (Entry, error) {
	native := filepath.FromSlash(id)
	dir := filepath.Join(i.root, native)

	// ids must stay inside the script tree
	if id == "" || !filepath.IsLocal(native) {
		return Entry{}, &NotFoundError{Dir: dir}
	}

	entryPath, kind, ok := findEntryPoint(dir)
	if !ok {
		return Entry{}, &NotFoundError{Dir: dir}
	}

	entry := Entry{
		ID:   filepath.ToSlash(filepath.Clean(native)),
		Dir:  dir,
		Path: entryPath,
		Kind: kind,
	}

	entry.Readme = optionalFile(dir, "README.md")
	entry.Schema = optionalFile(dir, "schema.json")
	entry.Form = optionalFile(dir, "form.yaml")

	return entry, nil
}

// List returns the sorted ids of all scripts. Directories holding an
// entry point are not searched for nested scripts.
func (i *Inventory) List() ([]string, error) {
	var ids []string

	err := filepath.WalkDir(i.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == i.root {
				return err
			}

			i.log.Debug("skipping unreadable entry", zap.String("path", p), zap.Error(err))
			return nil
		}

		if !d.IsDir() || p == i.root {
			return nil
		}

		if ShouldSkip(d.Name()) {
			return filepath.SkipDir
		}

		if _, _, ok := findEntryPoint(p); !ok {
			return nil
		}

		rel, err := filepath.Rel(i.root, p)
		if err != nil {
			return err
		}

		ids = append(ids, filepath.ToSlash(rel))

		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	sort.Strings(ids)

	return ids, nil
}

func findEntryPoint(dir string) (string, Kind, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, false
	}

	names := make(map[string]fs.DirEntry, len(entries))
	for _, e := range entries {
		names[e.Name()] = e
	}

	if e, ok := names["main.py"]; ok && !e.IsDir() {
		return filepath.Join(dir, e.Name()), KindSource, true
	}

	// os.ReadDir returns entries sorted by name
	for _, e := range entries {
		if !e.IsDir() && isCompiledModule(e.Name()) {
			return filepath.Join(dir, e.Name()), KindCompiled, true
		}
	}

	if e, ok := names["main.sh"]; ok && !e.IsDir() {
		return filepath.Join(dir, e.Name()), KindShell, true
	}

	if e, ok := names["main"]; ok && e.Type().IsRegular() {
		if info, err := e.Info(); err == nil && info.Mode()&0o111 != 0 {
			return filepath.Join(dir, e.Name()), KindBinary, true
		}
	}

	return "", 0, false
}

// isCompiledModule matches extension modules importable as "main", e.g.
// main.cpython-311-x86_64-linux-gnu.so, main.abi3.so or main.cp311-win_amd64.pyd.
func isCompiledModule(name string) bool {
	ext := path.Ext(name)
	if ext != ".so" && ext != ".pyd" {
		return false
	}

	tag, ok := strings.CutPrefix(strings.TrimSuffix(name, ext), "main.")

	return ok && tag != "" && !strings.Contains(tag, ".")
}

func optionalFile(dir, name string) string {
	p := filepath.Join(dir, name)

	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p
	}

	return ""
}

func baseName(id string) string {
	return path.Base(id)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
