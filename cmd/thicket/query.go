package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/graph"
	"github.com/jward/thicket/internal/store"
)

var (
	flagLimit     int
	flagOffset    int
	flagKinds     []string
	flagDirection string
	flagDepth     int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the saved graph",
	Long:  "Run queries against the graph saved by the last 'thicket index'. All line and column numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringSliceVar(&flagKinds, "kind", nil, "restrict to these node or edge kinds")

	edgesCmd.Flags().StringVar(&flagDirection, "direction", "out", "edge direction: out|in")
	edgesCmd.Flags().IntVar(&flagDepth, "depth", 1, "traversal depth (max 100)")

	queryCmd.AddCommand(nodeCmd)
	queryCmd.AddCommand(findCmd)
	queryCmd.AddCommand(atCmd)
	queryCmd.AddCommand(edgesCmd)
	queryCmd.AddCommand(errorsCmd)
	queryCmd.AddCommand(statsCmd)
}

// --- Helpers ---

// savedGraph is a graph loaded from the database for read-only queries.
type savedGraph struct {
	graph     thicket.GraphView
	locations thicket.LocationView
	store     *store.Store
}

// loadGraph opens the database from the --db flag (or project default) and
// restores its snapshot into a fresh graph.
func loadGraph(ctx context.Context) (*savedGraph, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	proj, err := loadProject(findRepoRoot(cwd))
	if err != nil {
		return nil, err
	}
	st, err := openStore(proj.dbPath, false)
	if err != nil {
		return nil, err
	}
	snap, err := st.LoadSnapshot(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		st.Close()
		return nil, fmt.Errorf("no graph saved in %s (run 'thicket index' first)", proj.dbPath)
	}
	if err != nil {
		st.Close()
		return nil, err
	}
	g := graph.NewStore()
	if err := g.Restore(snap); err != nil {
		st.Close()
		return nil, err
	}
	return &savedGraph{
		graph:     thicket.NewGraphView(g),
		locations: thicket.NewLocationView(g),
		store:     st,
	}, nil
}

// Close releases the database.
func (sg *savedGraph) Close() error {
	return sg.store.Close()
}

// resolveNodes resolves a node argument: "#<id>" or a qualified name,
// optionally narrowed to kinds.
func resolveNodes(v thicket.GraphView, arg string, kinds []string) ([]thicket.Node, error) {
	if rest, ok := strings.CutPrefix(arg, "#"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q", arg)
		}
		n, found := v.Node(thicket.ID(id))
		if !found {
			return nil, nil
		}
		return []thicket.Node{n}, nil
	}
	var out []thicket.Node
	for _, n := range v.NodesNamed(arg) {
		if kindWanted(kinds, n.Kind) {
			out = append(out, n)
		}
	}
	return out, nil
}

// resolveNode is resolveNodes for commands that need exactly one node.
func resolveNode(v thicket.GraphView, arg string) (thicket.Node, error) {
	nodes, err := resolveNodes(v, arg, nil)
	if err != nil {
		return thicket.Node{}, err
	}
	switch len(nodes) {
	case 0:
		return thicket.Node{}, fmt.Errorf("node not found: %s", arg)
	case 1:
		return nodes[0], nil
	default:
		return thicket.Node{}, fmt.Errorf("ambiguous name %q: %d nodes match, use #<id>", arg, len(nodes))
	}
}

func kindWanted(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parsePositionArg parses a 1-based line or column argument.
func parsePositionArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %q: lines and columns start at 1", name, value)
	}
	return n, nil
}

func buildPagination() thicket.Pagination {
	return thicket.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

func nodeToCLI(n thicket.Node, files []string) CLINode {
	return CLINode{
		ID:         int64(n.ID),
		Kind:       n.Kind,
		Name:       n.Name,
		Attributes: n.Attributes,
		Files:      files,
	}
}

func nodesToCLI(nodes []thicket.Node) []CLINode {
	out := make([]CLINode, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToCLI(n, nil)
	}
	return out
}

func edgesToCLI(v thicket.GraphView, edges []thicket.Edge) []CLIEdge {
	out := make([]CLIEdge, len(edges))
	for i, e := range edges {
		out[i] = CLIEdge{
			ID:         int64(e.ID),
			Kind:       e.Kind,
			SourceID:   int64(e.SourceID),
			SourceName: lookupNodeName(v, e.SourceID),
			TargetID:   int64(e.TargetID),
			TargetName: lookupNodeName(v, e.TargetID),
		}
	}
	return out
}

func lookupNodeName(v thicket.GraphView, id thicket.ID) string {
	if n, ok := v.Node(id); ok {
		return n.Name
	}
	return ""
}

func locationsToCLI(locs []thicket.Location) []CLILocation {
	out := make([]CLILocation, len(locs))
	for i, l := range locs {
		out[i] = CLILocation{
			File:      l.File,
			StartLine: l.Span.StartLine,
			StartCol:  l.Span.StartCol,
			EndLine:   l.Span.EndLine,
			EndCol:    l.Span.EndCol,
			OwnerID:   int64(l.OwnerID),
		}
	}
	return out
}

func errorsToCLI(recs []thicket.ErrorRecord) []CLIError {
	out := make([]CLIError, len(recs))
	for i, r := range recs {
		out[i] = CLIError{File: r.File, Message: r.Message}
		if r.Span != nil {
			out[i].Line = r.Span.StartLine
			out[i].Col = r.Span.StartCol
		}
	}
	return out
}

func completionToCLI(c thicket.Completion) CLICompletion {
	return CLICompletion{
		RunID:          c.RunID,
		FilesProcessed: c.FilesProcessed,
		Added:          c.Added,
		Updated:        c.Updated,
		Removed:        c.Removed,
		ErrorCount:     c.ErrorCount,
		ElapsedSeconds: c.ElapsedSeconds(),
	}
}

// --- node ---

var nodeCmd = &cobra.Command{
	Use:   "node <name|#id>",
	Short: "Show nodes with their edges, locations and contributing files",
	Args:  cobra.ExactArgs(1),
	RunE:  runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("node", err)
	}
	defer sg.Close()

	nodes, err := resolveNodes(sg.graph, args[0], flagKinds)
	if err != nil {
		return outputError("node", err)
	}
	details := make([]CLINodeDetail, 0, len(nodes))
	for _, n := range nodes {
		d, ok := sg.graph.Detail(n.ID)
		if !ok {
			continue
		}
		details = append(details, CLINodeDetail{
			Node:      nodeToCLI(d.Node, d.Contributors),
			Outgoing:  edgesToCLI(sg.graph, d.Outgoing),
			Incoming:  edgesToCLI(sg.graph, d.Incoming),
			Locations: locationsToCLI(d.Locations),
		})
	}
	return outputResult(CLIResult{Command: "node", Results: details})
}

// --- find ---

var findCmd = &cobra.Command{
	Use:   "find [pattern]",
	Short: "Find nodes whose qualified name matches a glob",
	Long:  "Find nodes by glob on the qualified name: '*' stays within one '/'-separated segment, '**' crosses segments. No pattern matches everything.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFind,
}

func runFind(cmd *cobra.Command, args []string) error {
	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("find", err)
	}
	defer sg.Close()

	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}
	res, err := sg.graph.Find(pattern, flagKinds, buildPagination())
	if err != nil {
		return outputError("find", err)
	}
	total := res.TotalCount
	return outputResult(CLIResult{
		Command:    "find",
		Results:    nodesToCLI(res.Items),
		TotalCount: &total,
	})
}

// --- at ---

var atCmd = &cobra.Command{
	Use:   "at <file> <line> <col>",
	Short: "Show the nodes annotated at a source position, narrowest first",
	Args:  cobra.ExactArgs(3),
	RunE:  runAt,
}

func runAt(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("at", err)
	}
	line, err := parsePositionArg(args[1], "line")
	if err != nil {
		return outputError("at", err)
	}
	col, err := parsePositionArg(args[2], "col")
	if err != nil {
		return outputError("at", err)
	}

	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("at", err)
	}
	defer sg.Close()

	return outputResult(CLIResult{
		Command: "at",
		Results: nodesToCLI(sg.locations.NodesAt(file, line, col)),
	})
}

// --- edges ---

var edgesCmd = &cobra.Command{
	Use:   "edges <name|#id>",
	Short: "Walk edges from a node",
	Long:  "Walk edges breadth-first from a node, following outgoing or incoming edges up to --depth levels. --kind filters edge kinds.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdges,
}

func runEdges(cmd *cobra.Command, args []string) error {
	var dir thicket.Direction
	switch flagDirection {
	case "out":
		dir = thicket.Outgoing
	case "in":
		dir = thicket.Incoming
	default:
		return outputError("edges", fmt.Errorf("invalid direction %q: must be out or in", flagDirection))
	}

	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("edges", err)
	}
	defer sg.Close()

	// --kind filters edges here, not the root.
	root, err := resolveNode(sg.graph, args[0])
	if err != nil {
		return outputError("edges", err)
	}
	sub, err := sg.graph.Reachable(root.ID, dir, flagKinds, flagDepth)
	if err != nil {
		return outputError("edges", err)
	}
	return outputResult(CLIResult{Command: "edges", Results: edgesToCLI(sg.graph, sub.Edges)})
}

// --- errors ---

var errorsCmd = &cobra.Command{
	Use:   "errors [file]",
	Short: "List error records, optionally for one file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runErrors,
}

func runErrors(cmd *cobra.Command, args []string) error {
	file := ""
	if len(args) > 0 {
		var err error
		if file, err = resolveFilePath(args[0]); err != nil {
			return outputError("errors", err)
		}
	}

	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("errors", err)
	}
	defer sg.Close()

	return outputResult(CLIResult{Command: "errors", Results: errorsToCLI(sg.locations.Errors(file))})
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the saved graph",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	sg, err := loadGraph(cmd.Context())
	if err != nil {
		return outputError("stats", err)
	}
	defer sg.Close()

	st := sg.graph.Stats()
	out := CLIStats{
		Nodes:     st.Nodes,
		Edges:     st.Edges,
		Locations: st.Locations,
		Errors:    st.Errors,
		Files:     st.Files,
	}
	if saved, err := sg.store.SavedAt(cmd.Context()); err == nil {
		out.SavedAt = saved.UTC().Format(time.RFC3339)
	}
	return outputResult(CLIResult{Command: "stats", Results: out})
}
