package connectors

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph/internal/graph"
)

// yamlAny captures YAML fields that legitimately appear in more than
// one shape (compose allows both list and map forms for labels,
// environment and depends_on).
type yamlAny struct {
	value any
}

func (y *yamlAny) UnmarshalYAML(node *yaml.Node) error {
	return node.Decode(&y.value)
}

// asMap normalizes either a mapping or a ["KEY=value", ...] list into
// a string map.
func (y yamlAny) asMap() map[string]string {
	out := map[string]string{}
	switch v := y.value.(type) {
	case map[string]any:
		for key, value := range v {
			if s, ok := value.(string); ok {
				out[key] = s
			}
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if key, value, found := strings.Cut(s, "="); found {
				out[key] = value
			}
		}
	}
	return out
}

// keysOrList normalizes a list of names or a map keyed by name into a
// sorted name list.
func (y yamlAny) keysOrList() []string {
	var out []string
	switch v := y.value.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case map[string]any:
		for key := range v {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// buildPath resolves compose's string-or-object build field.
func (y yamlAny) buildPath() string {
	switch v := y.value.(type) {
	case string:
		return v
	case map[string]any:
		if ctx, ok := v["context"].(string); ok {
			return ctx
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortEdges(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}
