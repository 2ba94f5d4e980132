package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatNodesText formats CLINode results as aligned columns.
func formatNodesText(w io.Writer, nodes []CLINode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tATTRIBUTES")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.ID, n.Kind, n.Name, formatAttrs(n.Attributes))
	}
	tw.Flush()
}

// formatAttrs renders attributes as sorted key=value pairs.
func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + attrs[k]
	}
	return strings.Join(pairs, " ")
}

// formatEdgesText formats CLIEdge results as aligned columns.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSOURCE\tTARGET")
	for _, e := range edges {
		src := fmt.Sprintf("%s (#%d)", e.SourceName, e.SourceID)
		dst := fmt.Sprintf("%s (#%d)", e.TargetName, e.TargetID)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Kind, src, dst)
	}
	tw.Flush()
}

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\t#%d\n", loc.File, loc.StartLine, loc.StartCol, loc.OwnerID)
	}
}

// formatErrorsText formats CLIError results compiler-style.
func formatErrorsText(w io.Writer, errs []CLIError) {
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(w, "%s:%d:%d: %s\n", e.File, e.Line, e.Col, e.Message)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", e.File, e.Message)
	}
}

// formatDetailText formats a CLINodeDetail as readable text.
func formatDetailText(w io.Writer, d CLINodeDetail) {
	fmt.Fprintf(w, "%s %s (#%d)\n", d.Node.Kind, d.Node.Name, d.Node.ID)
	if attrs := formatAttrs(d.Node.Attributes); attrs != "" {
		fmt.Fprintf(w, "Attributes: %s\n", attrs)
	}
	if len(d.Node.Files) > 0 {
		fmt.Fprintf(w, "Files: %s\n", strings.Join(d.Node.Files, ", "))
	}
	if len(d.Locations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Locations:")
		formatLocationsText(w, d.Locations)
	}
	if len(d.Outgoing) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Outgoing:")
		formatEdgesText(w, d.Outgoing)
	}
	if len(d.Incoming) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Incoming:")
		formatEdgesText(w, d.Incoming)
	}
}

// formatStatsText formats CLIStats as readable text.
func formatStatsText(w io.Writer, s CLIStats) {
	fmt.Fprintln(w, "Graph Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Files:     %d\n", s.Files)
	fmt.Fprintf(w, "Nodes:     %d\n", s.Nodes)
	fmt.Fprintf(w, "Edges:     %d\n", s.Edges)
	fmt.Fprintf(w, "Locations: %d\n", s.Locations)
	fmt.Fprintf(w, "Errors:    %d\n", s.Errors)
	if s.SavedAt != "" {
		fmt.Fprintf(w, "Saved at:  %s\n", s.SavedAt)
	}
}

// formatCompletionText formats a CLICompletion as one summary line.
func formatCompletionText(w io.Writer, c CLICompletion) {
	fmt.Fprintf(w, "run %s: %d files (+%d ~%d -%d), %d errors, %.3fs\n",
		c.RunID, c.FilesProcessed, c.Added, c.Updated, c.Removed, c.ErrorCount, c.ElapsedSeconds)
}

// writeResultText dispatches to the appropriate text formatter based on the
// result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLINode:
		formatNodesText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLIError:
		formatErrorsText(w, v)
	case []CLINodeDetail:
		for i, d := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatDetailText(w, d)
		}
	case CLIStats:
		formatStatsText(w, v)
	case CLICompletion:
		formatCompletionText(w, v)
	case nil:
		// No output for nil results (e.g., node with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLINode:
		return len(r)
	case []CLIEdge:
		return len(r)
	case []CLILocation:
		return len(r)
	case []CLIError:
		return len(r)
	case []CLINodeDetail:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// writeResult writes result to w in the given format.
func writeResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return writeResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputResult writes result to stdout in the selected format.
func outputResult(result CLIResult) error {
	return writeResult(os.Stdout, flagFormat, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeResult(os.Stdout, "json", CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
