package thicket

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FrontEnd turns source files into graph contributions. ParseFiles must
// report everything through client, attributing each call to the file being
// processed, and should call FinishFile for every file it handles. Per-file
// problems belong in error records. A returned error (or a panic) turns every
// file left unfinished into a parse failure record; only context
// cancellation fails the run.
type FrontEnd interface {
	ParseFiles(ctx context.Context, files, searchPaths []string, client Client) error
}

// FrontEndFunc adapts a function to FrontEnd.
type FrontEndFunc func(ctx context.Context, files, searchPaths []string, client Client) error

// ParseFiles calls f.
func (f FrontEndFunc) ParseFiles(ctx context.Context, files, searchPaths []string, client Client) error {
	return f(ctx, files, searchPaths, client)
}

// Mux routes work-list files to front ends by file extension. Each front end
// receives its share of the work list in one call; the calls run
// concurrently, and one failing front end does not stop the others.
type Mux struct {
	byExt    map[string]int // extension -> index into handlers
	handlers []FrontEnd
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{byExt: make(map[string]int)}
}

// Handle routes files with any of exts to fe. Later registrations for the same
// extension win.
func (m *Mux) Handle(fe FrontEnd, exts ...string) *Mux {
	idx := len(m.handlers)
	m.handlers = append(m.handlers, fe)
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.byExt[ext] = idx
	}
	return m
}

// Extensions returns every routed extension, sorted.
func (m *Mux) Extensions() []string {
	out := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ParseFiles implements FrontEnd. Files no front end handles get a parse
// failure record and are finished here.
func (m *Mux) ParseFiles(ctx context.Context, files, searchPaths []string, client Client) error {
	groups := make([][]string, len(m.handlers))
	for _, path := range files {
		idx, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			client.ReportError(path, fmt.Sprintf("%sno front end for %q", ParseFailurePrefix, filepath.Ext(path)), nil)
			if err := client.FinishFile(path); err != nil {
				return fmt.Errorf("thicket: mux: finish %s: %w", path, err)
			}
			continue
		}
		groups[idx] = append(groups[idx], path)
	}

	var g errgroup.Group
	for i, fe := range m.handlers {
		batch := groups[i]
		if len(batch) == 0 {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fe.ParseFiles(ctx, batch, searchPaths, client)
		})
	}
	return g.Wait()
}
