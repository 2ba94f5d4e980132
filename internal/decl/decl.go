// Package decl is a front end for a small line-oriented graph description
// format. It is used for fixtures and for projects that generate their graph
// with external tools.
//
// Each non-blank line not starting with '#' is one directive:
//
//	node <kind> <name> [key=value ...]
//	edge <kind> <srcKind>:<srcName> <dstKind>:<dstName>
//	error <message...>
//
// Edge lines upsert both endpoints. Every node and edge gets a location
// spanning its line.
package decl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jward/thicket/internal/graph"
)

// Extensions handled by this front end.
var Extensions = []string{".graph", ".txt"}

// FrontEnd parses declaration files into a graph.Client.
type FrontEnd struct {
	logger *slog.Logger
}

// Option configures a FrontEnd.
type Option func(*FrontEnd)

// WithLogger sets the logger for per-file failures.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FrontEnd) {
		f.logger = logger
	}
}

// New creates a FrontEnd.
func New(opts ...Option) *FrontEnd {
	f := &FrontEnd{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseFiles parses each file in order. Unreadable files and malformed lines
// become error records; every file is finished.
func (f *FrontEnd) ParseFiles(ctx context.Context, files, _ []string, client graph.Client) error {
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			f.logger.Warn("read declaration file", "file", path, "error", err)
			client.ReportError(path, graph.ParseFailurePrefix+err.Error(), nil)
		} else {
			Parse(path, data, client)
		}
		if err := client.FinishFile(path); err != nil {
			return fmt.Errorf("decl: finish %s: %w", path, err)
		}
	}
	return nil
}

// Parse reports the directives in data as contributions of file. It never
// fails; problems are recorded as error records.
func Parse(file string, data []byte, client graph.Client) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		span := graph.Span{StartLine: line, StartCol: 1, EndLine: line, EndCol: max(len(text), 1)}
		if err := directive(file, trimmed, span, client); err != nil {
			client.ReportError(file, err.Error(), &span)
		}
	}
	if err := sc.Err(); err != nil {
		client.ReportError(file, fmt.Sprintf("%sline %d: %v", graph.ParseFailurePrefix, line+1, err), nil)
	}
}

func directive(file, text string, span graph.Span, client graph.Client) error {
	fields := strings.Fields(text)
	switch fields[0] {
	case "node":
		if len(fields) < 3 {
			return fmt.Errorf("node: expected kind and name")
		}
		attrs, err := parseAttrs(fields[3:])
		if err != nil {
			return err
		}
		id, err := client.ReportNode(file, fields[1], fields[2], attrs)
		if err != nil {
			return err
		}
		_, err = client.ReportLocation(file, id, span)
		return err

	case "edge":
		if len(fields) != 4 {
			return fmt.Errorf("edge: expected kind, source and target")
		}
		src, err := endpoint(file, fields[2], client)
		if err != nil {
			return err
		}
		dst, err := endpoint(file, fields[3], client)
		if err != nil {
			return err
		}
		id, err := client.ReportEdge(file, fields[1], src, dst)
		if err != nil {
			return err
		}
		_, err = client.ReportLocation(file, id, span)
		return err

	case "error":
		msg := strings.TrimSpace(strings.TrimPrefix(text, "error"))
		if msg == "" {
			msg = "error"
		}
		client.ReportError(file, msg, &span)
		return nil

	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
}

func endpoint(file, ref string, client graph.Client) (graph.ID, error) {
	kind, name, ok := strings.Cut(ref, ":")
	if !ok || kind == "" || name == "" {
		return 0, fmt.Errorf("edge endpoint %q: expected kind:name", ref)
	}
	return client.ReportNode(file, kind, name, nil)
}

func parseAttrs(fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attribute %q: expected key=value", f)
		}
		attrs[k] = v
	}
	return attrs, nil
}
