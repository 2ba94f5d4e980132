package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/thicket/internal/graph"
)

// parsedTree is a syntax tree with the source and grammar it came from.
type parsedTree struct {
	tree *sitter.Tree
	src  []byte
	lang *sitter.Language
}

// treeSet holds the trees parsed during one script run. Nodes from
// smacker/go-tree-sitter carry no link back to their tree, so lookups walk a
// node up to its root and key on the root's address.
type treeSet struct {
	mu    sync.Mutex
	trees map[uintptr]parsedTree
}

func newTreeSet() *treeSet {
	return &treeSet{trees: make(map[uintptr]parsedTree)}
}

// parse parses src with the named grammar and keeps the tree until release.
func (ts *treeSet) parse(ctx context.Context, src []byte, language string) (*sitter.Tree, error) {
	lang, ok := ParserForLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	ts.trees[rootKey(tree.RootNode())] = parsedTree{tree: tree, src: src, lang: lang}
	ts.mu.Unlock()
	return tree, nil
}

// lookup finds the tree node belongs to.
func (ts *treeSet) lookup(node *sitter.Node) (parsedTree, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	ts.mu.Lock()
	pt, ok := ts.trees[rootKey(node)]
	ts.mu.Unlock()
	return pt, ok
}

// release closes every tree. Nodes obtained from them must not be used
// afterwards.
func (ts *treeSet) release() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for key, pt := range ts.trees {
		pt.tree.Close()
		delete(ts.trees, key)
	}
}

func (ts *treeSet) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.trees)
}

func rootKey(root *sitter.Node) uintptr {
	return uintptr(unsafe.Pointer(root))
}

// syntaxGlobals returns the tree-sitter host functions:
//
//	parse(path, language) → Tree
//	parse_src(source, language) → Tree
//	node_text(node) → string
//	node_child(node, field) → Node or nil
//	node_span(node) → {start_line, start_col, end_line, end_col}
//	query(pattern, node) → [{capture: Node}]
func syntaxGlobals(ts *treeSet) map[string]any {
	return map[string]any{
		"parse": object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
			s, errObj := stringArgs("parse", args, "path", "language")
			if errObj != nil {
				return errObj
			}
			src, err := os.ReadFile(s[0])
			if err != nil {
				return object.Errorf("parse: %v", err)
			}
			return parseToProxy(ctx, ts, "parse", src, s[1])
		}),
		"parse_src": object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
			s, errObj := stringArgs("parse_src", args, "source", "language")
			if errObj != nil {
				return errObj
			}
			return parseToProxy(ctx, ts, "parse_src", []byte(s[0]), s[1])
		}),
		"node_text": object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("node_text", 1, len(args))
			}
			node, err := toNode(args[0])
			if err != nil {
				return object.Errorf("node_text: %v", err)
			}
			pt, ok := ts.lookup(node)
			if !ok {
				return object.Errorf("node_text: node does not belong to a parsed tree")
			}
			return object.NewString(node.Content(pt.src))
		}),
		"node_child": object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewArgsError("node_child", 2, len(args))
			}
			node, err := toNode(args[0])
			if err != nil {
				return object.Errorf("node_child: %v", err)
			}
			field, err := toString(args[1])
			if err != nil {
				return object.Errorf("node_child: field: %v", err)
			}
			// A proxied nil *Node would look non-nil to the script.
			child := node.ChildByFieldName(field)
			if child == nil {
				return object.Nil
			}
			return proxyOrError("node_child", child)
		}),
		"node_span": object.NewBuiltin("node_span", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("node_span", 1, len(args))
			}
			node, err := toNode(args[0])
			if err != nil {
				return object.Errorf("node_span: %v", err)
			}
			return spanToMap(spanOfNode(node))
		}),
		"query": object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewArgsError("query", 2, len(args))
			}
			pattern, err := toString(args[0])
			if err != nil {
				return object.Errorf("query: pattern: %v", err)
			}
			node, err := toNode(args[1])
			if err != nil {
				return object.Errorf("query: %v", err)
			}
			pt, ok := ts.lookup(node)
			if !ok {
				return object.Errorf("query: node does not belong to a parsed tree")
			}
			return runQuery(pattern, node, pt)
		}),
	}
}

func parseToProxy(ctx context.Context, ts *treeSet, name string, src []byte, language string) object.Object {
	tree, err := ts.parse(ctx, src, language)
	if err != nil {
		return object.Errorf("%s: %v", name, err)
	}
	return proxyOrError(name, tree)
}

// runQuery returns one map per match, keyed by capture name. Predicates
// such as #eq? are applied against the tree's source.
func runQuery(pattern string, node *sitter.Node, pt parsedTree) object.Object {
	q, err := sitter.NewQuery([]byte(pattern), pt.lang)
	if err != nil {
		return object.Errorf("query: invalid pattern: %v", err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, node)

	results := []object.Object{}
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, pt.src)
		if len(match.Captures) == 0 {
			continue
		}
		captures := make(map[string]object.Object, len(match.Captures))
		for _, c := range match.Captures {
			p, err := object.NewProxy(c.Node)
			if err != nil {
				return object.Errorf("query: capture %q: %v", q.CaptureNameForId(c.Index), err)
			}
			captures[q.CaptureNameForId(c.Index)] = p
		}
		results = append(results, object.NewMap(captures))
	}
	return object.NewList(results)
}

// spanOfNode converts tree-sitter's 0-based, end-exclusive points into a
// 1-based inclusive span.
func spanOfNode(node *sitter.Node) graph.Span {
	start, end := node.StartPoint(), node.EndPoint()
	return graph.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    max(int(end.Column), 1),
	}
}

func toNode(obj object.Object) (*sitter.Node, error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, fmt.Errorf("expected Node, got %s", obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("expected Node, got %T", proxy.Interface())
	}
	return node, nil
}

// stringArgs checks that args holds exactly one string per name.
func stringArgs(fn string, args []object.Object, names ...string) ([]string, object.Object) {
	if len(args) != len(names) {
		return nil, object.NewArgsError(fn, len(names), len(args))
	}
	out := make([]string, len(args))
	for i, a := range args {
		s, err := toString(a)
		if err != nil {
			return nil, object.Errorf("%s: %s: %v", fn, names[i], err)
		}
		out[i] = s
	}
	return out, nil
}

func proxyOrError(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return p
}

// scriptLog is the log global: log.Debug/Info/Warn/Error(msg).
type scriptLog struct {
	logger *slog.Logger
}

func (l *scriptLog) Debug(msg string) { l.logger.Debug(msg) }
func (l *scriptLog) Info(msg string)  { l.logger.Info(msg) }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg) }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg) }
