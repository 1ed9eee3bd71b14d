package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

// FormatResult renders a function result as compact text for the
// oracle. Empty results say so explicitly; the synthesizer's grounding
// contract depends on that.
func FormatResult(result any) string {
	switch v := result.(type) {
	case graph.Node:
		return formatNode(v)
	case []graph.Node:
		return formatNodes(v)
	case *traverse.Result:
		return formatTraversal(v)
	case *traverse.Path:
		return formatPath(v)
	case Owner:
		if !v.Found {
			return "No owning team found."
		}
		return "Owned by " + formatNode(*v.Team)
	case Oncall:
		if !v.Found {
			return "No on-call contact found."
		}
		return fmt.Sprintf("On-call: %s (from %s)", v.Contact, v.Source)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatNode(node graph.Node) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (%s)", node.Type, node.ID, node.Name)
	if len(node.Properties) > 0 {
		keys := make([]string, 0, len(node.Properties))
		for k := range node.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, node.Properties[k]))
		}
		sb.WriteString(" {" + strings.Join(parts, ", ") + "}")
	}
	return sb.String()
}

func formatNodes(nodes []graph.Node) string {
	if len(nodes) == 0 {
		return "No matching nodes found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d nodes:\n", len(nodes))
	for _, node := range nodes {
		sb.WriteString("- " + formatNode(node) + "\n")
	}
	return sb.String()
}

func formatTraversal(result *traverse.Result) string {
	if len(result.Nodes) == 0 {
		return fmt.Sprintf("No nodes reachable from %s.", result.Origin)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d nodes reachable from %s:\n", len(result.Nodes), result.Origin)
	for _, reached := range result.Nodes {
		fmt.Fprintf(&sb, "- depth %d: [%s] %s via %s\n",
			reached.Depth, reached.Node.Type, reached.Node.ID, formatEdgePath(reached.Path))
	}
	if result.Truncated {
		fmt.Fprintf(&sb, "(truncated: more nodes exist beyond the depth bound)\n")
	}
	return sb.String()
}

func formatPath(path *traverse.Path) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Path of length %d: ", path.Len())
	for i, node := range path.Nodes {
		if i > 0 {
			fmt.Fprintf(&sb, " -[%s]-> ", path.Edges[i-1].Type)
		}
		sb.WriteString(node.ID)
	}
	return sb.String()
}

// formatEdgePath lists each hop with its true direction. Downstream
// paths walk edges against their direction, so hops are rendered
// individually rather than as one chain.
func formatEdgePath(edges []graph.Edge) string {
	if len(edges) == 0 {
		return "origin"
	}
	parts := make([]string, 0, len(edges))
	for _, edge := range edges {
		parts = append(parts, fmt.Sprintf("%s -[%s]-> %s", edge.Source, edge.Type, edge.Target))
	}
	return strings.Join(parts, "; ")
}
