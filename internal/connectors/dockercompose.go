package connectors

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph/internal/graph"
)

// DockerCompose extracts services, databases and caches from a
// docker-compose file, plus dependency edges from depends_on and from
// connection URLs in environment variables.
type DockerCompose struct{}

// NewDockerCompose returns the docker-compose connector.
func NewDockerCompose() *DockerCompose { return &DockerCompose{} }

func (c *DockerCompose) Name() string { return "docker_compose" }

type composeFile struct {
	Services map[string]*composeService `yaml:"services"`
}

// composeService tolerates the format's list-or-map fields.
type composeService struct {
	Image       string   `yaml:"image"`
	Build       yamlAny  `yaml:"build"`
	Ports       []string `yaml:"ports"`
	Labels      yamlAny  `yaml:"labels"`
	Environment yamlAny  `yaml:"environment"`
	DependsOn   yamlAny  `yaml:"depends_on"`
}

func (c *DockerCompose) Parse(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file composeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("no services found in %s", path)
	}

	result := &Result{}
	for _, name := range sortedKeys(file.Services) {
		svc := file.Services[name]
		nodeType := c.nodeType(name, svc)
		nodeID := nodeType + ":" + name

		result.Nodes = append(result.Nodes, graph.Node{
			ID:         nodeID,
			Type:       nodeType,
			Name:       name,
			Properties: c.properties(svc),
		})

		if svc == nil {
			continue
		}
		for _, dep := range svc.DependsOn.keysOrList() {
			depType := c.nodeType(dep, file.Services[dep])
			result.Edges = append(result.Edges, graph.Edge{
				ID:     fmt.Sprintf("edge:%s-depends_on-%s", name, dep),
				Type:   graph.EdgeDependsOn,
				Source: nodeID,
				Target: depType + ":" + dep,
			})
		}
		result.Edges = append(result.Edges, c.envEdges(name, nodeID, svc, file.Services)...)
	}
	sortEdges(result.Edges)
	return result, nil
}

// nodeType classifies a compose service as database, cache or plain
// service, from labels first, then image, then name heuristics.
func (c *DockerCompose) nodeType(name string, svc *composeService) string {
	if svc != nil {
		labels := svc.Labels.asMap()
		switch labels["type"] {
		case "database":
			return graph.TypeDatabase
		case "cache":
			return graph.TypeCache
		case "queue":
			return graph.TypeQueue
		}
		image := strings.ToLower(svc.Image)
		for _, db := range []string{"postgres", "mysql", "mariadb", "mongo", "sqlite"} {
			if strings.Contains(image, db) {
				return graph.TypeDatabase
			}
		}
		for _, cache := range []string{"redis", "memcached", "hazelcast"} {
			if strings.Contains(image, cache) {
				return graph.TypeCache
			}
		}
		for _, queue := range []string{"rabbitmq", "kafka", "nats"} {
			if strings.Contains(image, queue) {
				return graph.TypeQueue
			}
		}
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "-db") || strings.Contains(lower, "database") {
		return graph.TypeDatabase
	}
	if strings.Contains(lower, "redis") || strings.Contains(lower, "cache") || strings.Contains(lower, "memcached") {
		return graph.TypeCache
	}
	return graph.TypeService
}

func (c *DockerCompose) properties(svc *composeService) map[string]any {
	props := map[string]any{}
	if svc == nil {
		return props
	}
	if len(svc.Ports) > 0 {
		mapping := svc.Ports[0]
		host := mapping
		if idx := strings.Index(mapping, ":"); idx >= 0 {
			host = mapping[:idx]
		}
		if port, err := strconv.Atoi(host); err == nil {
			props["port"] = port
		}
	}
	labels := svc.Labels.asMap()
	if team := labels["team"]; team != "" {
		props["team"] = team
	}
	if oncall := labels["oncall"]; oncall != "" {
		props["oncall"] = oncall
	}
	if pci := labels["pci_compliant"]; pci != "" {
		props["pci_compliant"] = pci == "true"
	}
	if enc := labels["encrypted"]; enc != "" {
		props["encrypted"] = enc == "true"
	}
	if svc.Image != "" {
		props["image"] = svc.Image
	}
	if build := svc.Build.buildPath(); build != "" {
		props["build_path"] = build
	}
	return props
}

var urlHostPattern = regexp.MustCompile(`//(?:[^@/]*@)?([a-zA-Z0-9_-]+)[:/]`)

// envEdges derives calls/uses edges from connection URLs in the
// service environment, the same way an SRE would read them.
func (c *DockerCompose) envEdges(name, nodeID string, svc *composeService, all map[string]*composeService) []graph.Edge {
	var edges []graph.Edge
	for key, value := range svc.Environment.asMap() {
		host := extractHost(value)
		if host == "" {
			continue
		}
		if _, known := all[host]; !known {
			continue
		}
		switch {
		case key == "DATABASE_URL":
			edges = append(edges, graph.Edge{
				ID:         fmt.Sprintf("edge:%s-uses-%s", name, host),
				Type:       graph.EdgeUses,
				Source:     nodeID,
				Target:     graph.TypeDatabase + ":" + host,
				Properties: map[string]any{"connection_type": "database"},
			})
		case strings.Contains(key, "REDIS_URL") || key == "CACHE_URL":
			edges = append(edges, graph.Edge{
				ID:         fmt.Sprintf("edge:%s-uses-%s", name, host),
				Type:       graph.EdgeUses,
				Source:     nodeID,
				Target:     graph.TypeCache + ":" + host,
				Properties: map[string]any{"connection_type": "cache"},
			})
		case strings.HasSuffix(key, "_URL"):
			targetType := c.nodeType(host, all[host])
			edges = append(edges, graph.Edge{
				ID:         fmt.Sprintf("edge:%s-calls-%s", name, host),
				Type:       graph.EdgeCalls,
				Source:     nodeID,
				Target:     targetType + ":" + host,
				Properties: map[string]any{"via": key},
			})
		}
	}
	return edges
}

// extractHost pulls the hostname out of a connection URL such as
// http://payment-service:8083 or postgresql://u:p@users-db:5432/users.
func extractHost(url string) string {
	if match := urlHostPattern.FindStringSubmatch(url); match != nil {
		return match[1]
	}
	return ""
}
