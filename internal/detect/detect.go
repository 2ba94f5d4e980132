// Package detect finds which project files were added, updated, or removed
// since the last completed indexing run.
package detect

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are never descended into, in addition to hidden directories.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Config lists the roots to scan. Source and include roots carry their own
// extension filters; an empty filter accepts every file.
type Config struct {
	SourceRoots       []string
	IncludeRoots      []string
	SourceExtensions  []string
	IncludeExtensions []string
}

// Signature identifies one version of a file's content.
type Signature struct {
	Hash    string // hex SHA-256 of the content
	ModTime time.Time
	Size    int64
}

// Scan maps every discovered path to its signature.
type Scan map[string]Signature

// Paths returns the scanned paths, sorted.
func (s Scan) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diff classifies paths relative to the remembered snapshot. All slices are sorted.
type Diff struct {
	Added     []string
	Updated   []string
	Removed   []string
	Unchanged []string
}

// WorkList returns Added and Updated merged and sorted. Removed files are never parsed.
func (d Diff) WorkList() []string {
	out := make([]string, 0, len(d.Added)+len(d.Updated))
	out = append(out, d.Added...)
	out = append(out, d.Updated...)
	sort.Strings(out)
	return out
}

// Invalidated returns every path whose previous contributions must be withdrawn.
func (d Diff) Invalidated() []string {
	out := make([]string, 0, len(d.Added)+len(d.Updated)+len(d.Removed))
	out = append(out, d.Added...)
	out = append(out, d.Updated...)
	out = append(out, d.Removed...)
	sort.Strings(out)
	return out
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// AccessError reports that the project files could not be enumerated or read.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("file access %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Detector computes diffs against a remembered snapshot. It is safe for
// concurrent use, though the engine only drives it from one run at a time.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	snapshot Scan
}

// New returns a Detector with an empty snapshot.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, snapshot: Scan{}}
}

// HasRoots reports whether any source root is configured.
func (d *Detector) HasRoots() bool {
	return len(d.cfg.SourceRoots) > 0
}

// Roots returns source roots followed by include roots.
func (d *Detector) Roots() []string {
	out := make([]string, 0, len(d.cfg.SourceRoots)+len(d.cfg.IncludeRoots))
	out = append(out, d.cfg.SourceRoots...)
	out = append(out, d.cfg.IncludeRoots...)
	return out
}

// Scan walks every root and signs each matching file. Files whose modification
// time and size match the snapshot reuse the remembered hash.
func (d *Detector) Scan(ctx context.Context) (Scan, error) {
	prev := d.Snapshot()
	scan := make(Scan)

	walk := func(roots, exts []string) error {
		for _, root := range roots {
			if err := d.walkRoot(ctx, root, normalizeExts(exts), prev, scan); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(d.cfg.SourceRoots, d.cfg.SourceExtensions); err != nil {
		return nil, err
	}
	if err := walk(d.cfg.IncludeRoots, d.cfg.IncludeExtensions); err != nil {
		return nil, err
	}
	return scan, nil
}

func (d *Detector) walkRoot(ctx context.Context, root string, exts map[string]bool, prev, scan Scan) error {
	info, err := os.Stat(root)
	if err != nil {
		return &AccessError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return &AccessError{Path: root, Err: errors.New("not a directory")}
	}

	var gi *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(root, ".gitignore")); err == nil {
		gi, err = ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
		if err != nil {
			return &AccessError{Path: filepath.Join(root, ".gitignore"), Err: err}
		}
	}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return &AccessError{Path: path, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return &AccessError{Path: path, Err: relErr}
		}
		if entry.IsDir() {
			if path == root {
				return nil
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if len(exts) > 0 && !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
			return nil
		}
		if _, dup := scan[path]; dup {
			return nil
		}
		sig, err := sign(path, entry, prev[path])
		if err != nil {
			return err
		}
		scan[path] = sig
		return nil
	})
	if err != nil {
		var ae *AccessError
		if errors.As(err, &ae) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &AccessError{Path: root, Err: err}
	}
	return nil
}

func sign(path string, entry fs.DirEntry, prev Signature) (Signature, error) {
	info, err := entry.Info()
	if err != nil {
		return Signature{}, &AccessError{Path: path, Err: err}
	}
	sig := Signature{ModTime: info.ModTime(), Size: info.Size()}
	if prev.Hash != "" && prev.Size == sig.Size && prev.ModTime.Equal(sig.ModTime) {
		sig.Hash = prev.Hash
		return sig, nil
	}
	sig.Hash, err = HashFile(path)
	if err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &AccessError{Path: path, Err: err}
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &AccessError{Path: path, Err: err}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func normalizeExts(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = true
	}
	return out
}

// Diff compares scan with the remembered snapshot.
func (d *Detector) Diff(scan Scan) Diff {
	prev := d.Snapshot()
	var diff Diff
	for path, sig := range scan {
		old, ok := prev[path]
		switch {
		case !ok:
			diff.Added = append(diff.Added, path)
		case old.Hash != sig.Hash:
			diff.Updated = append(diff.Updated, path)
		default:
			diff.Unchanged = append(diff.Unchanged, path)
		}
	}
	for path := range prev {
		if _, ok := scan[path]; !ok {
			diff.Removed = append(diff.Removed, path)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Updated)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Unchanged)
	return diff
}

// Commit makes scan the remembered snapshot. Call it only after a run completes.
func (d *Detector) Commit(scan Scan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = copyScan(scan)
}

// Snapshot returns a copy of the remembered snapshot.
func (d *Detector) Snapshot() Scan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyScan(d.snapshot)
}

// Prime seeds the snapshot with known hashes, typically restored file records.
// Modification times are unknown, so the next Scan rehashes every file.
func (d *Detector) Prime(hashes map[string]string) {
	scan := make(Scan, len(hashes))
	for path, h := range hashes {
		scan[path] = Signature{Hash: h}
	}
	d.Commit(scan)
}

// Clear forgets the snapshot so the next diff reports every file as added.
func (d *Detector) Clear() {
	d.Commit(nil)
}

func copyScan(s Scan) Scan {
	out := make(Scan, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
