package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/thicket/internal/graph"
)

// nodeFinder is implemented by clients that can also look nodes up, such as
// *graph.Store. Scripts use it to link against symbols from other files.
type nodeFinder interface {
	NodeByKindName(kind, name string) (graph.Node, bool)
}

// Every report_* function is bound to the file the script is extracting.
// A dangling reference is not a script failure: it is recorded as an error
// record for the file and the call returns nil so extraction continues.

// report_node(kind, name[, attrs]) → id
func makeReportNodeFn(c graph.Client, file string) *object.Builtin {
	return object.NewBuiltin("report_node", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.NewArgsRangeError("report_node", 2, 3, len(args))
		}
		kind, err := toString(args[0])
		if err != nil {
			return object.Errorf("report_node: kind: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("report_node: name: %v", err)
		}
		var attrs map[string]string
		if len(args) == 3 && args[2] != object.Nil {
			m, err := extractMap(args[2])
			if err != nil {
				return object.Errorf("report_node: attrs: %v", err)
			}
			attrs = toStringMap(m)
		}

		id, reportErr := c.ReportNode(file, kind, name, attrs)
		if reportErr != nil {
			return object.Errorf("report_node: %v", reportErr)
		}
		return object.NewInt(int64(id))
	})
}

// report_edge(kind, source_id, target_id) → id or nil
func makeReportEdgeFn(c graph.Client, file string) *object.Builtin {
	return object.NewBuiltin("report_edge", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("report_edge", 3, len(args))
		}
		kind, err := toString(args[0])
		if err != nil {
			return object.Errorf("report_edge: kind: %v", err)
		}
		src, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("report_edge: source: %v", err)
		}
		dst, err := toInt64(args[2])
		if err != nil {
			return object.Errorf("report_edge: target: %v", err)
		}

		id, reportErr := c.ReportEdge(file, kind, graph.ID(src), graph.ID(dst))
		if errors.Is(reportErr, graph.ErrDanglingReference) {
			c.ReportError(file, reportErr.Error(), nil)
			return object.Nil
		}
		if reportErr != nil {
			return object.Errorf("report_edge: %v", reportErr)
		}
		return object.NewInt(int64(id))
	})
}

// report_location(owner_id, span_or_node) → id or nil
// report_location(owner_id, start_line, start_col, end_line, end_col) → id or nil
func makeReportLocationFn(c graph.Client, file string) *object.Builtin {
	return object.NewBuiltin("report_location", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 && len(args) != 5 {
			return object.Errorf("report_location: expected 2 or 5 arguments, got %d", len(args))
		}
		owner, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("report_location: owner: %v", err)
		}
		span, err := toSpan(args[1:])
		if err != nil {
			return object.Errorf("report_location: %v", err)
		}

		id, reportErr := c.ReportLocation(file, graph.ID(owner), span)
		if errors.Is(reportErr, graph.ErrDanglingReference) {
			c.ReportError(file, reportErr.Error(), &span)
			return object.Nil
		}
		if reportErr != nil {
			return object.Errorf("report_location: %v", reportErr)
		}
		return object.NewInt(int64(id))
	})
}

// report_error(message[, span_or_node]) → id
// report_error(message, start_line, start_col, end_line, end_col) → id
func makeReportErrorFn(c graph.Client, file string) *object.Builtin {
	return object.NewBuiltin("report_error", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 && len(args) != 2 && len(args) != 5 {
			return object.Errorf("report_error: expected 1, 2 or 5 arguments, got %d", len(args))
		}
		msg, err := toString(args[0])
		if err != nil {
			return object.Errorf("report_error: message: %v", err)
		}
		var span *graph.Span
		if len(args) > 1 && args[1] != object.Nil {
			sp, err := toSpan(args[1:])
			if err != nil {
				return object.Errorf("report_error: %v", err)
			}
			span = &sp
		}
		return object.NewInt(int64(c.ReportError(file, msg, span)))
	})
}

// find_node(kind, name) → {id, kind, name, attributes} or nil
func makeFindNodeFn(f nodeFinder) *object.Builtin {
	return object.NewBuiltin("find_node", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("find_node", 2, len(args))
		}
		kind, err := toString(args[0])
		if err != nil {
			return object.Errorf("find_node: kind: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("find_node: name: %v", err)
		}
		n, ok := f.NodeByKindName(kind, name)
		if !ok {
			return object.Nil
		}
		attrs := make(map[string]object.Object, len(n.Attributes))
		for k, v := range n.Attributes {
			attrs[k] = object.NewString(v)
		}
		return object.NewMap(map[string]object.Object{
			"id":         object.NewInt(int64(n.ID)),
			"kind":       object.NewString(n.Kind),
			"name":       object.NewString(n.Name),
			"attributes": object.NewMap(attrs),
		})
	})
}

// toSpan accepts a tree-sitter node, a span map, or four 1-based ints.
func toSpan(args []object.Object) (graph.Span, error) {
	if len(args) == 4 {
		var vals [4]int64
		for i, a := range args {
			v, err := toInt64(a)
			if err != nil {
				return graph.Span{}, fmt.Errorf("span[%d]: %v", i, err)
			}
			vals[i] = v
		}
		return graph.Span{StartLine: int(vals[0]), StartCol: int(vals[1]), EndLine: int(vals[2]), EndCol: int(vals[3])}, nil
	}
	if len(args) != 1 {
		return graph.Span{}, fmt.Errorf("span: expected node, map or 4 ints")
	}
	if p, ok := args[0].(*object.Proxy); ok {
		if node, ok := p.Interface().(*sitter.Node); ok && node != nil {
			return spanOfNode(node), nil
		}
	}
	m, err := extractMap(args[0])
	if err != nil {
		return graph.Span{}, fmt.Errorf("span: %v", err)
	}
	return graph.Span{
		StartLine: getInt(m, "start_line"),
		StartCol:  getInt(m, "start_col"),
		EndLine:   getInt(m, "end_line"),
		EndCol:    getInt(m, "end_col"),
	}, nil
}

func spanToMap(s graph.Span) object.Object {
	return object.NewMap(map[string]object.Object{
		"start_line": object.NewInt(int64(s.StartLine)),
		"start_col":  object.NewInt(int64(s.StartCol)),
		"end_line":   object.NewInt(int64(s.EndLine)),
		"end_col":    object.NewInt(int64(s.EndCol)),
	})
}

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

// toStringMap flattens a Risor map into string attributes. Non-string
// values use their Risor representation.
func toStringMap(m map[string]object.Object) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(*object.String); ok {
			out[k] = s.Value()
			continue
		}
		out[k] = v.Inspect()
	}
	return out
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return int(i.Value())
	}
	if f, ok := v.(*object.Float); ok {
		return int(f.Value())
	}
	return 0
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
